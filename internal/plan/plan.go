// Package plan implements the Plan/Todo State Machine: a
// per-conversation plan mutated only through the `plan` tool, driving
// completion detection and progress events.
package plan

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a todo's lifecycle state. Permitted transitions: pending ->
// in_progress -> {completed, failed}; failed -> pending (via rewrite).
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Todo is one ordered step of a Plan.
type Todo struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	Status  Status `json:"status"`
	Result  string `json:"result,omitempty"`
}

// Plan is bound to exactly one conversation.
type Plan struct {
	Name           string     `json:"name"`
	Overview       string     `json:"overview,omitempty"`
	LongDoc        string     `json:"plan,omitempty"`
	RequiredSkills []string   `json:"required_skills,omitempty"`
	Todos          []Todo     `json:"todos"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// AllCompleted reports whether every todo is StatusCompleted.
func (p *Plan) AllCompleted() bool {
	if len(p.Todos) == 0 {
		return false
	}
	for _, t := range p.Todos {
		if t.Status != StatusCompleted {
			return false
		}
	}
	return true
}

func (p *Plan) todoIndex(id string) int {
	for i, t := range p.Todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// FailureGuidance is the deterministic payload attached to an update
// response when a step transitions to failed.
type FailureGuidance struct {
	FailedStepTitle string   `json:"failed_step_title"`
	FailureCount    int      `json:"failure_count"`
	Options         []string `json:"options"`
}

var failureOptions = []string{"try a different approach", "skip this step", "report to the user"}

// Store holds one Plan per conversation.
type Store struct {
	mu    sync.Mutex
	plans map[string]*Plan
	fails map[string]int // conversation_id -> consecutive failure count
	now   func() time.Time
}

// NewStore builds an empty Store. now defaults to time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{plans: make(map[string]*Plan), fails: make(map[string]int), now: now}
}

// ErrPlanExists is returned by Create when a plan already exists.
var ErrPlanExists = fmt.Errorf("plan already exists for this conversation")

// ErrNoPlan is returned when an operation targets a conversation with no
// plan.
var ErrNoPlan = fmt.Errorf("no plan exists for this conversation")

// ErrTodoNotFound is returned when todo_id does not match any todo.
var ErrTodoNotFound = fmt.Errorf("todo not found")

// Create requires name and todos; fails if a plan already exists on this
// conversation.
func (s *Store) Create(conversationID, name string, todos []Todo, overview string, requiredSkills []string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[conversationID]; ok {
		return nil, ErrPlanExists
	}
	now := s.now().UTC()
	for i := range todos {
		if todos[i].ID == "" {
			todos[i].ID = uuid.NewString()
		}
		if todos[i].Status == "" {
			todos[i].Status = StatusPending
		}
	}
	p := &Plan{
		Name:           name,
		Overview:       overview,
		RequiredSkills: requiredSkills,
		Todos:          todos,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.plans[conversationID] = p
	return p, nil
}

// Get returns the plan bound to conversationID, if any.
func (s *Store) Get(conversationID string) (*Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[conversationID]
	return p, ok
}

// Update applies a status transition to todoID, sets updated_at, and
// sets completed_at iff all todos become completed. Returns failure
// guidance when the transition is to failed.
func (s *Store) Update(conversationID, todoID string, status Status, result string) (*Plan, *FailureGuidance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[conversationID]
	if !ok {
		return nil, nil, ErrNoPlan
	}
	idx := p.todoIndex(todoID)
	if idx < 0 {
		return nil, nil, ErrTodoNotFound
	}
	p.Todos[idx].Status = status
	if result != "" {
		p.Todos[idx].Result = result
	}
	p.UpdatedAt = s.now().UTC()

	var guidance *FailureGuidance
	if status == StatusFailed {
		s.fails[conversationID]++
		guidance = &FailureGuidance{
			FailedStepTitle: p.Todos[idx].Title,
			FailureCount:    s.fails[conversationID],
			Options:         append([]string(nil), failureOptions...),
		}
	} else if status == StatusCompleted {
		s.fails[conversationID] = 0
	}

	if p.AllCompleted() {
		now := s.now().UTC()
		p.CompletedAt = &now
	} else {
		p.CompletedAt = nil
	}
	return p, guidance, nil
}

// Rewrite requires name and todos; preserves created_at.
func (s *Store) Rewrite(conversationID, name string, todos []Todo, overview string, requiredSkills []string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.plans[conversationID]
	if !ok {
		return nil, ErrNoPlan
	}
	for i := range todos {
		if todos[i].ID == "" {
			todos[i].ID = uuid.NewString()
		}
		if todos[i].Status == "" {
			todos[i].Status = StatusPending
		}
	}
	p := &Plan{
		Name:           name,
		Overview:       overview,
		RequiredSkills: requiredSkills,
		Todos:          todos,
		CreatedAt:      existing.CreatedAt,
		UpdatedAt:      s.now().UTC(),
	}
	s.plans[conversationID] = p
	s.fails[conversationID] = 0
	return p, nil
}

// fileModifyingKeywords trigger the one-time safety notice appended to
// the formatted block.
var fileModifyingKeywords = []string{"delete", "remove", "overwrite", "rm -rf", "drop table", "truncate"}

// FormatBlock renders the progressively-disclosed prompt block for a
// plan: completed steps older than the last three collapse to a summary
// line, future steps beyond the next two summarise as "... N more", a
// reflection-guidance paragraph appears when any step is failed, and a
// safety notice appears once when file-modifying keywords are present
//.
func FormatBlock(p *Plan, safetyNoticeShown *bool) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Plan: %s\n", p.Name)
	if p.Overview != "" {
		fmt.Fprintf(&b, "%s\n", p.Overview)
	}

	completedIdx := make([]int, 0)
	var nextIdx []int
	var failedIdx []int
	for i, t := range p.Todos {
		switch t.Status {
		case StatusCompleted:
			completedIdx = append(completedIdx, i)
		case StatusFailed:
			failedIdx = append(failedIdx, i)
			nextIdx = append(nextIdx, i)
		default:
			nextIdx = append(nextIdx, i)
		}
	}

	if n := len(completedIdx); n > 3 {
		fmt.Fprintf(&b, "- (%d earlier steps completed)\n", n-3)
		completedIdx = completedIdx[n-3:]
	}
	for _, i := range completedIdx {
		fmt.Fprintf(&b, "- [x] %s\n", p.Todos[i].Title)
	}

	shown := 0
	for _, i := range nextIdx {
		if shown >= 2 {
			break
		}
		t := p.Todos[i]
		mark := " "
		if t.Status == StatusInProgress {
			mark = "~"
		} else if t.Status == StatusFailed {
			mark = "!"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", mark, t.Title)
		shown++
	}
	if remaining := len(nextIdx) - shown; remaining > 0 {
		fmt.Fprintf(&b, "- … %d more\n", remaining)
	}

	if len(failedIdx) > 0 {
		b.WriteString("\nOne or more steps failed. Consider a different approach, skipping the step, or reporting back to the user before continuing.\n")
	}

	if safetyNoticeShown != nil && !*safetyNoticeShown {
		lower := strings.ToLower(p.Overview + " " + p.LongDoc)
		for _, kw := range fileModifyingKeywords {
			if strings.Contains(lower, kw) {
				b.WriteString("\nNote: this plan modifies files; confirm scope before destructive steps.\n")
				*safetyNoticeShown = true
				break
			}
		}
	}

	return b.String()
}
