package orchestrator

import "time"

// TerminationReason explains why the turn loop stopped.
type TerminationReason string

const (
	ReasonLLMStop            TerminationReason = "llm_stop_reason"
	ReasonMaxTurns           TerminationReason = "max_turns"
	ReasonMaxDuration        TerminationReason = "max_duration"
	ReasonIdleTimeout        TerminationReason = "idle_timeout"
	ReasonConsecutiveFailure TerminationReason = "consecutive_failure_limit"
	ReasonUserStop           TerminationReason = "user_requested"
	ReasonCancelled          TerminationReason = "cancelled"
	ReasonLLMStreamError     TerminationReason = "llm_stream_error"
)

// TerminatorConfig mirrors the adaptive terminator's named knobs.
type TerminatorConfig struct {
	MaxTurns                     int
	MaxDuration                  time.Duration
	IdleTimeout                  time.Duration
	ConsecutiveFailureLimit      int
	LongRunningConfirmAfterTurns int
}

// DefaultTerminatorConfig returns the terminator's documented defaults.
func DefaultTerminatorConfig() TerminatorConfig {
	return TerminatorConfig{
		MaxTurns:                     100,
		MaxDuration:                  30 * time.Minute,
		IdleTimeout:                  120 * time.Second,
		ConsecutiveFailureLimit:      5,
		LongRunningConfirmAfterTurns: 20,
	}
}

// terminator is the adaptive (default) termination policy.
type terminator struct {
	cfg             TerminatorConfig
	startedAt       time.Time
	lastActivity    time.Time
	turns           int
	consecutiveFail int
	now             func() time.Time
}

func newTerminator(cfg TerminatorConfig, now func() time.Time) *terminator {
	if now == nil {
		now = time.Now
	}
	n := now()
	return &terminator{cfg: cfg, startedAt: n, lastActivity: n, now: now}
}

func (t *terminator) recordTurn() {
	t.turns++
	t.lastActivity = t.now()
}

func (t *terminator) recordToolOutcome(success bool) {
	if success {
		t.consecutiveFail = 0
		return
	}
	t.consecutiveFail++
}

// shouldStop evaluates the adaptive policy, returning a reason if the
// loop should stop, plus whether a long-running confirmation should be
// raised.
func (t *terminator) shouldStop(llmStopReason string) (TerminationReason, bool, bool) {
	longRunning := t.cfg.LongRunningConfirmAfterTurns > 0 && t.turns >= t.cfg.LongRunningConfirmAfterTurns

	if t.cfg.MaxTurns > 0 && t.turns >= t.cfg.MaxTurns {
		return ReasonMaxTurns, true, longRunning
	}
	if t.cfg.MaxDuration > 0 && t.now().Sub(t.startedAt) >= t.cfg.MaxDuration {
		return ReasonMaxDuration, true, longRunning
	}
	if t.cfg.IdleTimeout > 0 && t.now().Sub(t.lastActivity) >= t.cfg.IdleTimeout {
		return ReasonIdleTimeout, true, longRunning
	}
	if t.cfg.ConsecutiveFailureLimit > 0 && t.consecutiveFail >= t.cfg.ConsecutiveFailureLimit {
		return ReasonConsecutiveFailure, true, longRunning
	}
	if llmStopReason != "" {
		return ReasonLLMStop, true, longRunning
	}
	return "", false, longRunning
}
