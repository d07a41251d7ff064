package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/agentrt/core/internal/eventlog"
	"github.com/agentrt/core/internal/toolexec"
)

// Action is the plan tool's action discriminator.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionRewrite Action = "rewrite"
)

// Input is the plan tool's typed input.
type Input struct {
	Action         Action `json:"action"`
	Name           string `json:"name,omitempty"`
	Overview       string `json:"overview,omitempty"`
	Todos          []Todo `json:"todos,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	TodoID         string `json:"todo_id,omitempty"`
	Status         Status `json:"status,omitempty"`
	Result         string `json:"result,omitempty"`
}

// Tool is the single mutator for Plan state: every plan mutation is
// routed through this type's Execute so there is exactly one write path.
type Tool struct {
	store       *Store
	broadcaster *eventlog.Broadcaster
}

// NewTool builds the plan tool.
func NewTool(store *Store, broadcaster *eventlog.Broadcaster) *Tool {
	return &Tool{store: store, broadcaster: broadcaster}
}

// Execute implements toolexec.Handler.
func (t *Tool) Execute(_ context.Context, inv toolexec.Invocation) (any, toolexec.CompressionHint, error) {
	var in Input
	if v, ok := inv.ToolInput["action"]; ok {
		if s, ok := v.(string); ok {
			in.Action = Action(s)
		}
	}
	decodeTodoInput(inv.ToolInput, &in)

	switch in.Action {
	case ActionCreate:
		p, err := t.store.Create(inv.ConversationID, in.Name, in.Todos, in.Overview, in.RequiredSkills)
		if err != nil {
			return nil, toolexec.HintSkip, &toolexec.ToolError{Type: toolexec.ErrInputInvalid, Err: err}
		}
		return map[string]any{"success": true, "plan": p}, toolexec.HintSkip, nil

	case ActionUpdate:
		p, guidance, err := t.store.Update(inv.ConversationID, in.TodoID, in.Status, in.Result)
		if err != nil {
			return nil, toolexec.HintSkip, &toolexec.ToolError{Type: toolexec.ErrInputInvalid, Err: err}
		}
		if t.broadcaster != nil {
			t.broadcaster.MessageDelta(inv.SessionID, "", eventlog.MessageDeltaProgress, friendlyProgress(p))
		}
		resp := map[string]any{"success": true, "plan": p, "all_completed": p.AllCompleted()}
		if guidance != nil {
			resp["guidance"] = guidance
		}
		return resp, toolexec.HintSkip, nil

	case ActionRewrite:
		p, err := t.store.Rewrite(inv.ConversationID, in.Name, in.Todos, in.Overview, in.RequiredSkills)
		if err != nil {
			return nil, toolexec.HintSkip, &toolexec.ToolError{Type: toolexec.ErrInputInvalid, Err: err}
		}
		return map[string]any{"success": true, "plan": p}, toolexec.HintSkip, nil

	default:
		return nil, toolexec.HintSkip, &toolexec.ToolError{Type: toolexec.ErrInputInvalid, Err: fmt.Errorf("unknown plan action: %s", in.Action)}
	}
}

// ExecutionTimeout implements toolexec.Handler. Plan mutation is a pure
// in-memory operation; the executor default applies.
func (t *Tool) ExecutionTimeout() time.Duration { return 0 }

func friendlyProgress(p *Plan) string {
	if p == nil {
		return ""
	}
	done := 0
	for _, t := range p.Todos {
		if t.Status == StatusCompleted {
			done++
		}
	}
	return fmt.Sprintf("%s: %d/%d steps done", p.Name, done, len(p.Todos))
}

func decodeTodoInput(raw map[string]any, in *Input) {
	if v, ok := raw["name"].(string); ok {
		in.Name = v
	}
	if v, ok := raw["overview"].(string); ok {
		in.Overview = v
	}
	if v, ok := raw["todo_id"].(string); ok {
		in.TodoID = v
	}
	if v, ok := raw["status"].(string); ok {
		in.Status = Status(v)
	}
	if v, ok := raw["result"].(string); ok {
		in.Result = v
	}
	if list, ok := raw["todos"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			var td Todo
			if v, ok := m["id"].(string); ok {
				td.ID = v
			}
			if v, ok := m["title"].(string); ok {
				td.Title = v
			}
			if v, ok := m["content"].(string); ok {
				td.Content = v
			}
			in.Todos = append(in.Todos, td)
		}
	}
	if list, ok := raw["required_skills"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				in.RequiredSkills = append(in.RequiredSkills, s)
			}
		}
	}
}
