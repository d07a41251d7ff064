// Package orchestrator implements the Agent Orchestrator: the turn
// loop that takes intent analysis, prompt injection, LLM streaming, tool
// dispatch, event emission, and the termination decision and wires them
// into one user-turn round trip.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentrt/core/internal/agent"
	"github.com/agentrt/core/internal/capability"
	"github.com/agentrt/core/internal/eventlog"
	"github.com/agentrt/core/internal/injection"
	"github.com/agentrt/core/internal/intent"
	"github.com/agentrt/core/internal/llmclient"
	"github.com/agentrt/core/internal/observability"
	"github.com/agentrt/core/internal/plan"
	"github.com/agentrt/core/internal/promptcache"
	"github.com/agentrt/core/internal/snapshot"
	"github.com/agentrt/core/internal/toolexec"
	"github.com/agentrt/core/pkg/models"
)

// Config wires every collaborator the orchestrator drives.
type Config struct {
	Store       eventlog.Store
	Broadcaster *eventlog.Broadcaster
	Intent      *intent.Analyzer
	Injection   *injection.Orchestrator
	PromptCache *promptcache.Cache
	Tools       *toolexec.Executor
	Capability  *capability.Registry
	Plan        *plan.Store
	Snapshot    *snapshot.Manager
	LLM         llmclient.Client

	// Logger and Metrics are optional; when nil, the corresponding
	// observability calls are skipped.
	Logger  *observability.Logger
	Metrics *observability.Metrics

	Terminator        TerminatorConfig
	ToolConcurrency   int
	DefaultModel      string
}

// Orchestrator is the turn loop.
type Orchestrator struct {
	cfg Config
}

// New builds an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.ToolConcurrency <= 0 {
		cfg.ToolConcurrency = 4
	}
	if cfg.Terminator == (TerminatorConfig{}) {
		cfg.Terminator = DefaultTerminatorConfig()
	}
	return &Orchestrator{cfg: cfg}
}

// TurnInput is one user turn.
type TurnInput struct {
	SessionID      string
	ConversationID string
	UserID         string
	InstanceID     string
	Message        string
	History        []injection.Message
}

// TurnOutcome summarizes how the turn ended.
type TurnOutcome struct {
	Status TerminationReason
	Turns  int
}

// Run executes the full turn loop until the adaptive terminator (or an
// explicit stop) ends it.
func (o *Orchestrator) Run(ctx context.Context, in TurnInput) (TurnOutcome, error) {
	b := o.cfg.Broadcaster
	b.ConversationStart(in.SessionID, in.ConversationID)
	b.MessageStart(in.SessionID, "")

	turnStart := time.Now()
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.TurnStarted()
	}
	if o.cfg.Logger != nil {
		o.cfg.Logger.Info(ctx, "turn started", "session_id", in.SessionID, "instance_id", in.InstanceID)
	}

	term := newTerminator(o.cfg.Terminator, nil)
	safetyShown := false

	currentPlan, _ := o.cfg.Plan.Get(in.ConversationID)

	// Step 1: run the Intent Analyzer and store the result on the
	// injection context.
	intentResult := o.cfg.Intent.Analyze(ctx, in.Message, nil, planOverview(currentPlan))
	b.MessageDelta(in.SessionID, "", eventlog.MessageDeltaIntent, intentResult)

	history := append([]injection.Message(nil), in.History...)
	userMessage := in.Message

	for {
		select {
		case <-ctx.Done():
			b.SessionStopped(in.SessionID, string(ReasonCancelled))
			b.Done(in.SessionID)
			o.finishTurn(ctx, in, string(ReasonCancelled), turnStart, term.turns)
			return TurnOutcome{Status: ReasonCancelled, Turns: term.turns}, ctx.Err()
		default:
		}

		tier, enableThinking := selectTier(intentResult)

		injCtx := injection.Context{
			SessionID:      in.SessionID,
			ConversationID: in.ConversationID,
			UserMessage:    userMessage,
			Intent:         intentResult,
			Plan:           currentPlan,
			TaskComplexity: string(tier),
			PromptCache:    o.cfg.PromptCache,
		}

		systemBlocks := o.cfg.Injection.BuildSystemBlocks(injCtx)
		messages := o.cfg.Injection.BuildMessages(injCtx, history, userMessage)

		req := llmclient.Request{
			Model:                o.cfg.DefaultModel,
			System:               toLLMSystemBlocks(systemBlocks),
			Messages:             toLLMMessages(messages),
			EnableThinking:       enableThinking,
			ThinkingBudgetTokens: 4096,
		}
		if o.cfg.Capability != nil {
			for _, ts := range o.cfg.Capability.GetToolSchemas() {
				req.Tools = append(req.Tools, schemaToAgentTool(ts))
			}
		}

		llmStart := time.Now()
		stream, err := o.cfg.LLM.Stream(ctx, req)
		if err != nil {
			b.Error(in.SessionID, err, string(ReasonLLMStreamError))
			b.SessionEnd(in.SessionID, "failed")
			b.Done(in.SessionID)
			if o.cfg.Metrics != nil {
				o.cfg.Metrics.RecordLLMRequest("anthropic", o.cfg.DefaultModel, "error", time.Since(llmStart).Seconds(), 0, 0)
			}
			o.finishTurn(ctx, in, string(ReasonLLMStreamError), turnStart, term.turns)
			return TurnOutcome{Status: ReasonLLMStreamError, Turns: term.turns}, err
		}

		toolCalls, assistantText, stopReason, promptTokens, completionTokens, streamErr := o.consumeStream(in.SessionID, stream)
		if streamErr != nil {
			b.Error(in.SessionID, streamErr, string(ReasonLLMStreamError))
			b.SessionEnd(in.SessionID, "failed")
			b.Done(in.SessionID)
			if o.cfg.Metrics != nil {
				o.cfg.Metrics.RecordLLMRequest("anthropic", o.cfg.DefaultModel, "error", time.Since(llmStart).Seconds(), promptTokens, completionTokens)
			}
			o.finishTurn(ctx, in, string(ReasonLLMStreamError), turnStart, term.turns)
			return TurnOutcome{Status: ReasonLLMStreamError, Turns: term.turns}, streamErr
		}
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.RecordLLMRequest("anthropic", o.cfg.DefaultModel, "success", time.Since(llmStart).Seconds(), promptTokens, completionTokens)
		}

		if assistantText != "" {
			history = append(history, injection.Message{Role: "assistant", Content: assistantText})
		}

		if len(toolCalls) > 0 {
			results := o.dispatchTools(ctx, in, toolCalls)
			for i, tc := range toolCalls {
				res := results[i]
				history = append(history, injection.Message{Role: "tool", Content: resultContent(res)})
				term.recordToolOutcome(res.Success)

				if tc.Name == "plan" {
					currentPlan, _ = o.cfg.Plan.Get(in.ConversationID)
					if currentPlan != nil && currentPlan.AllCompleted() {
						b.MessageDelta(in.SessionID, "", eventlog.MessageDeltaProgress, "all steps completed")
					}
				}
				if o.cfg.Snapshot != nil {
					if sig := o.cfg.Snapshot.CheckPostTask(res.Success, res.ErrorType == toolexec.ErrPermanent); sig != nil {
						b.MessageDelta(in.SessionID, "", eventlog.MessageDeltaHITL, sig)
					}
				}
			}
			userMessage = "" // subsequent iterations continue from tool results, not a fresh user message
		}

		term.recordTurn()
		reason, stop, longRunning := term.shouldStop(stopReason)
		if longRunning && !safetyShown {
			b.MessageDelta(in.SessionID, "", eventlog.MessageDeltaProgress, "long_running_confirm")
			safetyShown = true
		}
		if stop {
			status := "completed"
			if reason != ReasonLLMStop {
				status = string(reason)
			}
			b.MessageStop(in.SessionID, "")
			b.SessionEnd(in.SessionID, status)
			b.Done(in.SessionID)
			o.finishTurn(ctx, in, status, turnStart, term.turns)
			return TurnOutcome{Status: reason, Turns: term.turns}, nil
		}

		if len(toolCalls) == 0 {
			// No tools requested and no stop reason: avoid spinning.
			b.MessageStop(in.SessionID, "")
			b.SessionEnd(in.SessionID, "completed")
			b.Done(in.SessionID)
			o.finishTurn(ctx, in, "completed", turnStart, term.turns)
			return TurnOutcome{Status: ReasonLLMStop, Turns: term.turns}, nil
		}
	}
}

// finishTurn records turn-lifecycle metrics and a structured log line.
// Safe to call with a nil Metrics or Logger (both are optional).
func (o *Orchestrator) finishTurn(ctx context.Context, in TurnInput, status string, start time.Time, turns int) {
	duration := time.Since(start).Seconds()
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.TurnEnded(status, duration, turns)
	}
	if o.cfg.Logger != nil {
		o.cfg.Logger.Info(ctx, "turn finished",
			"session_id", in.SessionID, "instance_id", in.InstanceID,
			"status", status, "turns", turns, "duration_ms", duration*1000,
		)
	}
}

func planOverview(p *plan.Plan) string {
	if p == nil {
		return ""
	}
	return p.Overview
}

// selectTier picks the prompt-cache tier and whether a plan is required.
func selectTier(r intent.Result) (promptcache.Tier, bool) {
	if r.NeedsPlan || r.Complexity == intent.ComplexityComplex {
		return promptcache.TierComplex, true
	}
	if r.Complexity == intent.ComplexitySimple {
		return promptcache.TierSimple, false
	}
	return promptcache.TierMedium, true
}

func toLLMSystemBlocks(blocks []injection.SystemBlock) []llmclient.SystemBlock {
	out := make([]llmclient.SystemBlock, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, llmclient.SystemBlock{Text: b.Content, CacheLayer: b.CacheLayer})
	}
	return out
}

func toLLMMessages(msgs []injection.Message) []llmclient.Message {
	out := make([]llmclient.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llmclient.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func schemaToAgentTool(ts capability.ToolSchema) agentTool {
	raw, _ := json.Marshal(ts.InputSchema)
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	return agentTool{name: ts.Name, description: ts.Description, schema: raw}
}

// agentTool satisfies agent.Tool's descriptor surface for schema
// advertisement only; execution is always routed through
// toolexec.Executor, never through this type's Execute.
type agentTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (t agentTool) Name() string            { return t.name }
func (t agentTool) Description() string     { return t.description }
func (t agentTool) Schema() json.RawMessage { return t.schema }

func (t agentTool) Execute(context.Context, json.RawMessage) (*agent.ToolResult, error) {
	return nil, fmt.Errorf("agentTool %q is schema-only: dispatch via toolexec.Executor", t.name)
}

// consumeStream drains one LLM stream, emitting content events and
// collecting tool_use blocks and the final assistant text.
func (o *Orchestrator) consumeStream(sessionID string, stream <-chan llmclient.StreamEvent) (toolCalls []models.ToolCall, text string, stopReason string, promptTokens int, completionTokens int, err error) {
	b := o.cfg.Broadcaster

	for evt := range stream {
		switch evt.Kind {
		case llmclient.EventError:
			return toolCalls, text, stopReason, promptTokens, completionTokens, evt.Err
		case llmclient.EventContentStart:
			b.ContentStart(sessionID, "", evt.Index, eventlog.ContentBlockType(evt.Block))
			if evt.Block == llmclient.BlockToolUse && evt.ToolCall != nil {
				toolCalls = append(toolCalls, *evt.ToolCall)
			}
		case llmclient.EventContentDelta:
			b.ContentDelta(sessionID, "", evt.Index, evt.Delta)
			if evt.Block == llmclient.BlockText {
				text += evt.Delta
			}
		case llmclient.EventContentStop:
			b.ContentStop(sessionID, "", evt.Index)
		case llmclient.EventStop:
			stopReason = evt.StopReason
			promptTokens = evt.InputTokens
			completionTokens = evt.OutputTokens
			b.MessageDelta(sessionID, "", eventlog.MessageDeltaUsage, map[string]any{
				"input_tokens": evt.InputTokens, "output_tokens": evt.OutputTokens,
			})
		}
	}
	return toolCalls, text, stopReason, promptTokens, completionTokens, nil
}

// dispatchTools runs toolCalls concurrently when more than one is
// present and none is serial_only; otherwise sequentially.
func (o *Orchestrator) dispatchTools(ctx context.Context, in TurnInput, toolCalls []models.ToolCall) []toolexec.Result {
	results := make([]toolexec.Result, len(toolCalls))

	serial := false
	if o.cfg.Capability != nil {
		for _, tc := range toolCalls {
			if o.cfg.Capability.IsSerialOnly(tc.Name) {
				serial = true
				break
			}
		}
	}

	invoke := func(i int, tc models.ToolCall) {
		b := o.cfg.Broadcaster
		b.ContentStart(in.SessionID, "", i, eventlog.ContentToolUse)
		var toolInput map[string]any
		_ = json.Unmarshal(tc.Input, &toolInput)
		toolStart := time.Now()
		res := o.cfg.Tools.Execute(ctx, toolexec.Invocation{
			ToolName:       tc.Name,
			ToolInput:      toolInput,
			ToolID:         tc.ID,
			SessionID:      in.SessionID,
			ConversationID: in.ConversationID,
			UserID:         in.UserID,
			InstanceID:     in.InstanceID,
		})
		if o.cfg.Metrics != nil {
			status := "success"
			if !res.Success {
				status = string(res.ErrorType)
				if status == "" {
					status = "error"
				}
			}
			o.cfg.Metrics.RecordToolExecution(tc.Name, status, time.Since(toolStart).Seconds())
			o.cfg.Metrics.RecordEventAppend(string(eventlog.ContentToolUse))
		}
		results[i] = res
		b.ContentStop(in.SessionID, "", i)
	}

	if serial || len(toolCalls) <= 1 {
		for i, tc := range toolCalls {
			invoke(i, tc)
		}
		return results
	}

	sem := make(chan struct{}, o.cfg.ToolConcurrency)
	var wg sync.WaitGroup
	for i, tc := range toolCalls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, tc models.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			invoke(i, tc)
		}(i, tc)
	}
	wg.Wait()
	return results
}

func resultContent(res toolexec.Result) string {
	if !res.Success {
		return fmt.Sprintf(`{"success":false,"error":%q,"error_type":%q}`, res.Error, res.ErrorType)
	}
	if s, ok := res.Content.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", res.Content)
}
