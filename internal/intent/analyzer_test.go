package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	raw []byte
	err error
}

func (f fakeLLM) Classify(ctx context.Context, query string, history []Message, planSummary string) ([]byte, error) {
	return f.raw, f.err
}

type fakeSkillNamer struct {
	names  []string
	groups map[string]string
}

func (f fakeSkillNamer) SkillNames() []string { return f.names }
func (f fakeSkillNamer) GroupForSkill(name string) string { return f.groups[name] }

func TestAnalyzer_Analyze_ParsesValidLLMOutput(t *testing.T) {
	a := New(fakeLLM{raw: []byte(`{"complexity":"complex","needs_plan":true,"relevant_skill_groups":["research"]}`)}, nil)

	result := a.Analyze(context.Background(), "find me a flight", nil, "")

	assert.Equal(t, ComplexityComplex, result.Complexity)
	assert.True(t, result.NeedsPlan)
	assert.Equal(t, []string{"research"}, result.RelevantSkillGroups)
	assert.True(t, result.SkillGroupsSet)
}

func TestAnalyzer_Analyze_LLMErrorFallsBackToDefault(t *testing.T) {
	a := New(fakeLLM{err: errors.New("timeout")}, nil)

	result := a.Analyze(context.Background(), "anything", nil, "")

	assert.Equal(t, DefaultResult().Complexity, result.Complexity)
	assert.Equal(t, DefaultResult().NeedsPlan, result.NeedsPlan)
}

func TestAnalyzer_Analyze_MalformedJSONFallsBackToDefault(t *testing.T) {
	a := New(fakeLLM{raw: []byte(`not json`)}, nil)

	result := a.Analyze(context.Background(), "anything", nil, "")

	assert.Equal(t, DefaultResult(), result)
}

func TestAnalyzer_Analyze_MissingComplexityFallsBackToDefault(t *testing.T) {
	a := New(fakeLLM{raw: []byte(`{"needs_plan":false}`)}, nil)

	result := a.Analyze(context.Background(), "anything", nil, "")

	assert.Equal(t, DefaultResult(), result)
}

func TestAnalyzer_Analyze_NilLLMUsesDefault(t *testing.T) {
	a := New(nil, nil)

	result := a.Analyze(context.Background(), "anything", nil, "")

	assert.Equal(t, DefaultResult(), result)
}

func TestAnalyzer_SupplementSkills_UnionsMatchedGroups(t *testing.T) {
	skills := fakeSkillNamer{
		names:  []string{"web-search", "code-review"},
		groups: map[string]string{"web-search": "research", "code-review": "engineering"},
	}
	a := New(fakeLLM{raw: []byte(`{"complexity":"simple","relevant_skill_groups":["research"]}`)}, skills)

	result := a.Analyze(context.Background(), "please run code review on this", nil, "")

	assert.ElementsMatch(t, []string{"research", "engineering"}, result.RelevantSkillGroups)
	assert.True(t, result.SkillGroupsSet)
}

func TestAnalyzer_SupplementSkills_NoMatchLeavesResultUnchanged(t *testing.T) {
	skills := fakeSkillNamer{names: []string{"web-search"}, groups: map[string]string{"web-search": "research"}}
	a := New(fakeLLM{raw: []byte(`{"complexity":"simple"}`)}, skills)

	result := a.Analyze(context.Background(), "totally unrelated text", nil, "")

	assert.Empty(t, result.RelevantSkillGroups)
	assert.False(t, result.SkillGroupsSet)
}

func TestAnalyzer_SupplementSkills_NilSkillNamerNoOp(t *testing.T) {
	a := New(fakeLLM{raw: []byte(`{"complexity":"simple"}`)}, nil)

	result := a.Analyze(context.Background(), "web-search please", nil, "")

	require.False(t, result.SkillGroupsSet)
}
