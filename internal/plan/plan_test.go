package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore_Create_AssignsIDsAndDefaultStatus(t *testing.T) {
	s := NewStore(nil)

	p, err := s.Create("conv-1", "Ship feature", []Todo{{Title: "write code"}}, "overview", nil)

	require.NoError(t, err)
	require.Len(t, p.Todos, 1)
	assert.NotEmpty(t, p.Todos[0].ID)
	assert.Equal(t, StatusPending, p.Todos[0].Status)
}

func TestStore_Create_RejectsDuplicate(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create("conv-1", "first", []Todo{{Title: "a"}}, "", nil)
	require.NoError(t, err)

	_, err = s.Create("conv-1", "second", []Todo{{Title: "b"}}, "", nil)

	assert.ErrorIs(t, err, ErrPlanExists)
}

func TestStore_Update_TransitionsStatusAndTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(fixedClock(now))
	p, _ := s.Create("conv-1", "plan", []Todo{{Title: "step"}}, "", nil)

	updated, guidance, err := s.Update("conv-1", p.Todos[0].ID, StatusInProgress, "")

	require.NoError(t, err)
	assert.Nil(t, guidance)
	assert.Equal(t, StatusInProgress, updated.Todos[0].Status)
	assert.Equal(t, now, updated.UpdatedAt)
}

func TestStore_Update_CompletingAllTodosSetsCompletedAt(t *testing.T) {
	s := NewStore(nil)
	p, _ := s.Create("conv-1", "plan", []Todo{{Title: "only step"}}, "", nil)

	updated, _, err := s.Update("conv-1", p.Todos[0].ID, StatusCompleted, "done")

	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.AllCompleted())
}

func TestStore_Update_FailureReturnsGuidanceAndIncrementsCount(t *testing.T) {
	s := NewStore(nil)
	p, _ := s.Create("conv-1", "plan", []Todo{{Title: "step"}}, "", nil)

	_, guidance1, err := s.Update("conv-1", p.Todos[0].ID, StatusFailed, "")
	require.NoError(t, err)
	require.NotNil(t, guidance1)
	assert.Equal(t, 1, guidance1.FailureCount)

	_, guidance2, err := s.Update("conv-1", p.Todos[0].ID, StatusFailed, "")
	require.NoError(t, err)
	assert.Equal(t, 2, guidance2.FailureCount)
}

func TestStore_Update_SuccessResetsFailureCount(t *testing.T) {
	s := NewStore(nil)
	p, _ := s.Create("conv-1", "plan", []Todo{{Title: "a"}, {Title: "b"}}, "", nil)
	_, _, _ = s.Update("conv-1", p.Todos[0].ID, StatusFailed, "")
	_, _, _ = s.Update("conv-1", p.Todos[0].ID, StatusCompleted, "")

	_, guidance, _ := s.Update("conv-1", p.Todos[1].ID, StatusFailed, "")

	assert.Equal(t, 1, guidance.FailureCount)
}

func TestStore_Update_UnknownConversation(t *testing.T) {
	s := NewStore(nil)

	_, _, err := s.Update("missing", "todo-1", StatusCompleted, "")

	assert.ErrorIs(t, err, ErrNoPlan)
}

func TestStore_Update_UnknownTodo(t *testing.T) {
	s := NewStore(nil)
	s.Create("conv-1", "plan", []Todo{{Title: "a"}}, "", nil)

	_, _, err := s.Update("conv-1", "missing-todo", StatusCompleted, "")

	assert.ErrorIs(t, err, ErrTodoNotFound)
}

func TestStore_Rewrite_PreservesCreatedAtAndResetsFails(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(fixedClock(created))
	p, _ := s.Create("conv-1", "plan", []Todo{{Title: "a"}}, "", nil)
	s.Update("conv-1", p.Todos[0].ID, StatusFailed, "")

	rewritten, err := s.Rewrite("conv-1", "plan v2", []Todo{{Title: "b"}}, "new overview", []string{"engineering"})

	require.NoError(t, err)
	assert.Equal(t, created, rewritten.CreatedAt)
	assert.Equal(t, "new overview", rewritten.Overview)
	_, guidance, _ := s.Update("conv-1", rewritten.Todos[0].ID, StatusFailed, "")
	assert.Equal(t, 1, guidance.FailureCount, "rewrite must reset the consecutive-failure counter")
}

func TestPlan_AllCompleted_EmptyPlanIsNotComplete(t *testing.T) {
	p := &Plan{}
	assert.False(t, p.AllCompleted())
}

func TestFormatBlock_NilPlan(t *testing.T) {
	assert.Empty(t, FormatBlock(nil, nil))
}

func TestFormatBlock_CollapsesOldCompletedSteps(t *testing.T) {
	p := &Plan{
		Name: "big plan",
		Todos: []Todo{
			{Title: "1", Status: StatusCompleted},
			{Title: "2", Status: StatusCompleted},
			{Title: "3", Status: StatusCompleted},
			{Title: "4", Status: StatusCompleted},
			{Title: "5", Status: StatusPending},
		},
	}

	block := FormatBlock(p, nil)

	assert.Contains(t, block, "1 earlier steps completed")
	assert.NotContains(t, block, "[x] 1")
	assert.Contains(t, block, "[x] 4")
}

func TestFormatBlock_SummarizesFutureStepsBeyondTwo(t *testing.T) {
	p := &Plan{
		Name: "plan",
		Todos: []Todo{
			{Title: "a", Status: StatusPending},
			{Title: "b", Status: StatusPending},
			{Title: "c", Status: StatusPending},
		},
	}

	block := FormatBlock(p, nil)

	assert.Contains(t, block, "1 more")
}

func TestFormatBlock_ShowsFailureGuidanceParagraph(t *testing.T) {
	p := &Plan{Name: "plan", Todos: []Todo{{Title: "a", Status: StatusFailed}}}

	block := FormatBlock(p, nil)

	assert.Contains(t, block, "One or more steps failed")
}

func TestFormatBlock_SafetyNoticeShownOnce(t *testing.T) {
	p := &Plan{Name: "plan", Overview: "delete the old files", Todos: []Todo{{Title: "a"}}}
	shown := false

	first := FormatBlock(p, &shown)
	assert.Contains(t, first, "this plan modifies files")
	assert.True(t, shown)

	second := FormatBlock(p, &shown)
	assert.NotContains(t, second, "this plan modifies files")
}
