// Package intent implements the Intent Analyzer: it classifies a
// user turn using the Intent LLM, falling back to a safe default on
// malformed output, then applies a deterministic skill-token supplement
// pass.
package intent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// Complexity is the coarse task-complexity classification.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Result is the Intent Analyzer's output.
type Result struct {
	Complexity          Complexity `json:"complexity"`
	NeedsPlan           bool       `json:"needs_plan"`
	RelevantSkillGroups []string   `json:"relevant_skill_groups"`
	// SkillGroupsSet distinguishes a nil (unset) RelevantSkillGroups from
	// an explicit empty list — the tool-provider injector's fallback
	// logic depends on this distinction.
	SkillGroupsSet bool       `json:"-"`
	IsFollowUp     bool       `json:"is_follow_up"`
	SkipMemory     bool       `json:"skip_memory"`
	TaskType       string     `json:"task_type,omitempty"`
}

// DefaultResult is the safe fallback used when the Intent LLM returns
// malformed JSON.
func DefaultResult() Result {
	return Result{
		Complexity:     ComplexityMedium,
		NeedsPlan:      true,
		SkillGroupsSet: false,
		IsFollowUp:     false,
		SkipMemory:     false,
	}
}

// Message is the minimal shape of recent history the analyzer consults.
type Message struct {
	Role    string
	Content string
}

// LLM is the Intent LLM collaborator: given a query, history, and an
// optional running plan summary, it returns raw JSON matching Result's
// schema (or malformed/empty output, which the analyzer treats as a
// parse failure).
type LLM interface {
	Classify(ctx context.Context, query string, history []Message, planSummary string) ([]byte, error)
}

// SkillNamer exposes the known skill names the supplement pass matches
// against (registered capability names from C3).
type SkillNamer interface {
	SkillNames() []string
	// GroupForSkill returns the skill-group a skill name belongs to.
	GroupForSkill(name string) string
}

// Analyzer runs the Intent LLM and the deterministic supplement pass.
type Analyzer struct {
	llm    LLM
	skills SkillNamer
}

// New builds an Analyzer.
func New(llm LLM, skills SkillNamer) *Analyzer {
	return &Analyzer{llm: llm, skills: skills}
}

// Analyze classifies one turn.
func (a *Analyzer) Analyze(ctx context.Context, query string, history []Message, planSummary string) Result {
	result := DefaultResult()

	if a.llm != nil {
		raw, err := a.llm.Classify(ctx, query, history, planSummary)
		if err == nil {
			var parsed struct {
				Complexity          Complexity `json:"complexity"`
				NeedsPlan           bool       `json:"needs_plan"`
				RelevantSkillGroups *[]string  `json:"relevant_skill_groups"`
				IsFollowUp          bool       `json:"is_follow_up"`
				SkipMemory          bool       `json:"skip_memory"`
				TaskType            string     `json:"task_type"`
			}
			if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil && parsed.Complexity != "" {
				result = Result{
					Complexity: parsed.Complexity,
					NeedsPlan:  parsed.NeedsPlan,
					IsFollowUp: parsed.IsFollowUp,
					SkipMemory: parsed.SkipMemory,
					TaskType:   parsed.TaskType,
				}
				if parsed.RelevantSkillGroups != nil {
					result.RelevantSkillGroups = *parsed.RelevantSkillGroups
					result.SkillGroupsSet = true
				}
			}
		}
	}

	result = a.supplementSkills(query, result)
	return result
}

var tokenSplit = regexp.MustCompile(`[\s_-]+`)

// supplementSkills scans query for exact skill-name token matches
// (hyphenated and space-separated forms) and unions their groups into
// RelevantSkillGroups — never inferential.
func (a *Analyzer) supplementSkills(query string, result Result) Result {
	if a.skills == nil {
		return result
	}
	normalizedQuery := normalizeTokens(query)

	seen := make(map[string]struct{})
	for _, g := range result.RelevantSkillGroups {
		seen[g] = struct{}{}
	}

	matched := false
	for _, name := range a.skills.SkillNames() {
		needle := normalizeTokens(name)
		if needle == "" {
			continue
		}
		if strings.Contains(" "+normalizedQuery+" ", " "+needle+" ") {
			group := a.skills.GroupForSkill(name)
			if group == "" {
				continue
			}
			if _, ok := seen[group]; !ok {
				seen[group] = struct{}{}
				result.RelevantSkillGroups = append(result.RelevantSkillGroups, group)
			}
			matched = true
		}
	}
	if matched {
		result.SkillGroupsSet = true
	}
	return result
}

func normalizeTokens(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return tokenSplit.ReplaceAllString(s, " ")
}
