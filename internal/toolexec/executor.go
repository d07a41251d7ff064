// Package toolexec resolves a named tool, runs it under a per-tool
// deadline, classifies failures into a closed error taxonomy, and hands
// successful results to the result compactor.
package toolexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentrt/core/internal/compactor"
	"github.com/agentrt/core/internal/ratelimit"
)

// ErrorType is the closed taxonomy tool failures are classified into.
type ErrorType string

const (
	ErrPermissionDenied  ErrorType = "permission_denied"
	ErrDependencyMissing ErrorType = "dependency_missing"
	ErrTimeout           ErrorType = "timeout"
	ErrInputInvalid      ErrorType = "input_invalid"
	ErrRateLimited       ErrorType = "rate_limited"
	ErrAuthExpired       ErrorType = "auth_expired"
	ErrTransient         ErrorType = "transient"
	ErrPermanent         ErrorType = "permanent"
)

// ToolError wraps a raw failure with its classified type.
type ToolError struct {
	Type            ErrorType
	Err             error
	RecoveryHint    string
	RetryAfterSecs  int
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Type, e.Err)
	}
	return string(e.Type)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Result is the outcome of a single tool invocation, on the wire.
type Result struct {
	Success             bool
	Content             any
	Compressed          bool
	CompressionMetadata *compactor.Envelope
	Error               string
	ErrorType           ErrorType
	RecoveryHint        string
	RetryAfterSeconds   int
}

// CompressionHint is the tool-declared annotation consulted before
// compaction. It is an out-of-band field on the tool's
// return value, never a magical payload key.
type CompressionHint string

const (
	HintNormal CompressionHint = "normal"
	HintSkip   CompressionHint = "skip"
	HintForce  CompressionHint = "force"
	HintSearch CompressionHint = "search"
)

// Invocation is the typed input to Execute.
type Invocation struct {
	ToolName        string
	ToolInput       map[string]any
	ToolID          string
	SkipCompaction  bool
	SessionID       string
	ConversationID  string
	UserID          string
	InstanceID      string
}

// Handler is an in-process tool implementation.
type Handler interface {
	Execute(ctx context.Context, inv Invocation) (any, CompressionHint, error)
	// ExecutionTimeout is the declared per-call deadline; zero means use
	// the executor default (60s).
	ExecutionTimeout() time.Duration
}

// SystemProvider resolves capability-backed "system" provider tools:
// these return their input verbatim wrapped in success.
type SystemProvider interface {
	// IsSystemProvided reports whether name is a capability whose
	// provider is "system".
	IsSystemProvided(name string) bool
}

const (
	// DefaultExecutionTimeout is used when a tool declares none.
	DefaultExecutionTimeout = 60 * time.Second
	// DefaultForceThreshold is the compaction threshold used for the
	// "force" hint.
	DefaultForceThreshold = 500
	// DefaultCompactionThreshold is the default head/tail threshold.
	DefaultCompactionThreshold = 1500
)

// UsageTracker fire-and-forget records (tool_name, success) for adaptive
// ordering. Implementations must never block the caller.
type UsageTracker interface {
	Record(toolName string, success bool)
}

// Executor is the Tool Executor.
type Executor struct {
	handlers   map[string]Handler
	system     SystemProvider
	compactor  *compactor.Compactor
	tracker    UsageTracker
	limiter    *ratelimit.Limiter
	forceThreshold   int
	defaultThreshold int

	mu sync.RWMutex
}

// New builds an Executor. limiter may be nil to disable per-tool rate
// limiting.
func New(system SystemProvider, compact *compactor.Compactor, tracker UsageTracker, limiter *ratelimit.Limiter) *Executor {
	return &Executor{
		handlers:         make(map[string]Handler),
		system:           system,
		compactor:        compact,
		tracker:          tracker,
		limiter:          limiter,
		forceThreshold:   DefaultForceThreshold,
		defaultThreshold: DefaultCompactionThreshold,
	}
}

// Register adds an in-process handler.
func (e *Executor) Register(name string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
}

// Execute resolves and runs a single tool call, applying timeout,
// classification, and compaction.
func (e *Executor) Execute(ctx context.Context, inv Invocation) Result {
	if e.limiter != nil && !e.limiter.Allow(inv.ToolName) {
		wait := e.limiter.WaitTime(inv.ToolName)
		return e.classify(inv.ToolName, &ToolError{
			Type:           ErrRateLimited,
			Err:            fmt.Errorf("tool %q rate limited", inv.ToolName),
			RetryAfterSecs: int(wait.Seconds() + 0.5),
		})
	}

	e.mu.RLock()
	handler, ok := e.handlers[inv.ToolName]
	e.mu.RUnlock()

	if !ok {
		if e.system != nil && e.system.IsSystemProvided(inv.ToolName) {
			return Result{Success: true, Content: inv.ToolInput}
		}
		return e.classify(inv.ToolName, &ToolError{Type: ErrDependencyMissing, Err: fmt.Errorf("no tool registered: %s", inv.ToolName)})
	}

	timeout := handler.ExecutionTimeout()
	if timeout <= 0 {
		timeout = DefaultExecutionTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		content any
		hint    CompressionHint
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		content, hint, err := handler.Execute(runCtx, inv)
		select {
		case ch <- outcome{content, hint, err}:
		default:
		}
	}()

	select {
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			e.track(inv.ToolName, false)
			return e.classify(inv.ToolName, &ToolError{Type: ErrTimeout, Err: runCtx.Err()})
		}
		e.track(inv.ToolName, false)
		return Result{Success: false, Error: "cancelled", ErrorType: ErrTransient}
	case out := <-ch:
		if out.err != nil {
			e.track(inv.ToolName, false)
			return e.classify(inv.ToolName, Classify(out.err))
		}
		e.track(inv.ToolName, true)
		return e.compact(inv, out.content, out.hint)
	}
}

func (e *Executor) track(name string, success bool) {
	if e.tracker == nil {
		return
	}
	go e.tracker.Record(name, success)
}

func (e *Executor) classify(_ string, te *ToolError) Result {
	return Result{
		Success:           false,
		Error:             te.Error(),
		ErrorType:         te.Type,
		RecoveryHint:      te.RecoveryHint,
		RetryAfterSeconds: te.RetryAfterSecs,
	}
}

// compact applies the compaction contract after a successful call.
// Lists are multimodal content blocks and are returned verbatim.
func (e *Executor) compact(inv Invocation, content any, hint CompressionHint) Result {
	if _, isList := content.([]any); isList {
		return Result{Success: true, Content: content}
	}
	if inv.SkipCompaction || hint == HintSkip || e.compactor == nil {
		return Result{Success: true, Content: content}
	}

	text, isText := content.(string)
	if !isText {
		return Result{Success: true, Content: content}
	}

	threshold := e.defaultThreshold
	if hint == HintForce {
		threshold = e.forceThreshold
	}
	if hint != HintSearch && len(text) <= threshold {
		return Result{Success: true, Content: content}
	}

	if hint == HintSearch {
		rendered, env, err := e.compactor.CompactSearch(inv.ToolName, inv.ToolID, []byte(text))
		if err != nil {
			return Result{Success: true, Content: content}
		}
		return Result{Success: true, Compressed: true, Content: rendered, CompressionMetadata: &env}
	}

	rendered, env, err := e.compactor.Compact(inv.ToolName, inv.ToolID, text)
	if err != nil {
		return Result{Success: true, Content: content}
	}
	return Result{Success: true, Compressed: true, Content: rendered, CompressionMetadata: &env}
}
