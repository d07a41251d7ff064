package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agentrt/core/internal/agent/providers"
	"github.com/agentrt/core/internal/capability"
	"github.com/agentrt/core/internal/clipboard"
	"github.com/agentrt/core/internal/compactor"
	"github.com/agentrt/core/internal/config"
	"github.com/agentrt/core/internal/cron"
	"github.com/agentrt/core/internal/eventlog"
	"github.com/agentrt/core/internal/injection"
	"github.com/agentrt/core/internal/intent"
	"github.com/agentrt/core/internal/llmclient"
	"github.com/agentrt/core/internal/observability"
	"github.com/agentrt/core/internal/orchestrator"
	"github.com/agentrt/core/internal/plan"
	"github.com/agentrt/core/internal/promptcache"
	"github.com/agentrt/core/internal/ratelimit"
	"github.com/agentrt/core/internal/snapshot"
	"github.com/agentrt/core/internal/toolexec"
)

// instance bundles every wired collaborator for one running agentd
// process, so serve/run commands share one construction path.
type instance struct {
	cfg             *config.Config
	store           eventlog.Store
	broadcaster     *eventlog.Broadcaster
	capabilities    *capability.Registry
	manifestWatcher *capability.Watcher
	executor        *toolexec.Executor
	orchestrator    *orchestrator.Orchestrator
	scheduler       *cron.Scheduler
	logger          *observability.Logger
	metrics         *observability.Metrics
	tracer          *observability.Tracer
	tracerShutdown  func(context.Context) error
}

// buildInstance wires config, storage, capability catalog, tool
// execution, and the orchestrator per the runtime's component map.
func buildInstance(cfg *config.Config) (*instance, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	tracer, tracerShutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "agentd",
		ServiceVersion: version,
		Environment:    cfg.Instance.ID,
		Endpoint:       traceEndpoint(cfg.Observability.Tracing),
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableInsecure: cfg.Observability.Tracing.Insecure,
		Attributes:     cfg.Observability.Tracing.Attributes,
	})

	store := eventlog.NewMemoryStore(cfg.Storage.MaxEventsPerSession)
	broadcaster := eventlog.NewBroadcaster(store)

	var caps []capability.Capability
	if cfg.Capabilities.ManifestFile != "" {
		loaded, err := capability.LoadManifest(cfg.Capabilities.ManifestFile)
		if err != nil {
			return nil, fmt.Errorf("load capability manifest: %w", err)
		}
		caps = loaded
	}
	registry := capability.New(caps)

	var watcher *capability.Watcher
	if cfg.Capabilities.ManifestFile != "" {
		watcher = capability.NewWatcher(cfg.Capabilities.ManifestFile, registry, nil)
	}

	compactCfg := compactor.DefaultConfig(cfg.Storage.ToolResultsDir)
	compactCfg.HeadLines = cfg.Compaction.HeadLines
	compactCfg.TailLines = cfg.Compaction.TailLines
	compactCfg.SanitizeSecrets = cfg.Compaction.SanitizeSecrets
	compact := compactor.New(compactCfg, nil)

	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	executor := toolexec.New(&systemProviderAdapter{registry: registry}, compact, nil, limiter)
	executor.Register("plan", plan.NewTool(plan.NewStore(nil), broadcaster))

	provider, err := providers.NewAnthropicProvider(anthropicConfigFromLLM(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("init anthropic provider: %w", err)
	}
	llm := llmclient.FromProvider(provider)

	promptCache := promptcache.New()
	promptCache.Load(loadPromptTiers(cfg.PromptCache), promptcache.AgentSchema{
		Model:                        cfg.Agent.DefaultModel,
		MaxTurns:                     cfg.Agent.MaxTurns,
		MaxDurationSeconds:           int(cfg.Agent.MaxDuration.Seconds()),
		IdleTimeoutSeconds:           int(cfg.Agent.IdleTimeout.Seconds()),
		ConsecutiveFailureLimit:      cfg.Agent.ConsecutiveFailureLimit,
		LongRunningConfirmAfterTurns: cfg.Agent.LongRunningConfirmAfterTurns,
		PlanEnabled:                  true,
		IntentEnabled:                true,
	})

	intentAnalyzer := intent.New(&intentLLMAdapter{llm: llm, model: cfg.Agent.DefaultModel}, &skillNamer{registry: registry})
	injector := injection.NewOrchestrator()
	planStore := plan.NewStore(nil)

	snapCfg := snapshot.Config{
		SnapshotDir:             cfg.Snapshot.SnapshotDir,
		RetentionCap:            cfg.Snapshot.RetentionCapBytes,
		ConsecutiveFailureLimit: cfg.Snapshot.ConsecutiveFailureLimit,
		Enabled:                 cfg.Snapshot.Enabled,
	}
	snapMgr := snapshot.New(snapCfg, clipboardReader{}, nil)

	orch := orchestrator.New(orchestrator.Config{
		Store:       store,
		Broadcaster: broadcaster,
		Intent:      intentAnalyzer,
		Injection:   injector,
		PromptCache: promptCache,
		Tools:       executor,
		Capability:  registry,
		Plan:        planStore,
		Snapshot:    snapMgr,
		LLM:         llm,
		Terminator: orchestrator.TerminatorConfig{
			MaxTurns:                     cfg.Agent.MaxTurns,
			MaxDuration:                  cfg.Agent.MaxDuration,
			IdleTimeout:                  cfg.Agent.IdleTimeout,
			ConsecutiveFailureLimit:      cfg.Agent.ConsecutiveFailureLimit,
			LongRunningConfirmAfterTurns: cfg.Agent.LongRunningConfirmAfterTurns,
		},
		ToolConcurrency: cfg.Agent.ToolConcurrency,
		DefaultModel:    cfg.Agent.DefaultModel,
		Logger:          logger,
		Metrics:         metrics,
	})

	sched, err := cron.NewScheduler(cfg.Cron, cron.WithAgentRunner(agentRunner{orch: orch, instanceID: cfg.Instance.ID}))
	if err != nil {
		return nil, fmt.Errorf("init cron scheduler: %w", err)
	}

	return &instance{
		cfg:             cfg,
		store:           store,
		broadcaster:     broadcaster,
		capabilities:    registry,
		manifestWatcher: watcher,
		executor:        executor,
		orchestrator:    orch,
		scheduler:       sched,
		logger:          logger,
		metrics:         metrics,
		tracer:          tracer,
		tracerShutdown:  tracerShutdown,
	}, nil
}

// traceEndpoint returns the OTLP collector endpoint when tracing is
// enabled, or "" (which NewTracer treats as a no-op tracer) otherwise.
func traceEndpoint(cfg config.TracingConfig) string {
	if !cfg.Enabled {
		return ""
	}
	return cfg.Endpoint
}

func anthropicConfigFromLLM(cfg config.LLMConfig) providers.AnthropicConfig {
	p := cfg.Providers[cfg.DefaultProvider]
	return providers.AnthropicConfig{
		APIKey:       firstNonEmpty(p.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
		BaseURL:      p.BaseURL,
		DefaultModel: p.DefaultModel,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// loadPromptTiers reads the configured prompt files, tolerating missing
// files (an instance may not configure every tier).
func loadPromptTiers(cfg config.PromptCacheConfig) map[promptcache.Tier]string {
	out := make(map[promptcache.Tier]string, 3)
	files := map[promptcache.Tier]string{
		promptcache.TierSimple:  cfg.SimplePromptFile,
		promptcache.TierMedium:  cfg.MediumPromptFile,
		promptcache.TierComplex: cfg.ComplexPromptFile,
	}
	for tier, path := range files {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		out[tier] = string(data)
	}
	return out
}

// systemProviderAdapter answers the Tool Executor's resolution-step-2
// question: is this name a capability whose provider is "system"?
type systemProviderAdapter struct {
	registry *capability.Registry
}

func (s *systemProviderAdapter) IsSystemProvided(name string) bool {
	c, ok := s.registry.Get(name)
	return ok && c.Provider == "system"
}

// skillNamer projects the capability catalog's skill-kind entries into
// the Intent Analyzer's SkillNamer collaborator.
type skillNamer struct {
	registry *capability.Registry
}

func (s *skillNamer) SkillNames() []string {
	skills := s.registry.FindByKind(capability.KindSkill)
	out := make([]string, 0, len(skills))
	for _, c := range skills {
		out = append(out, c.Name)
	}
	return out
}

func (s *skillNamer) GroupForSkill(name string) string {
	c, ok := s.registry.Get(name)
	if !ok || len(c.Tags) == 0 {
		return ""
	}
	return c.Tags[0]
}

// intentLLMAdapter drives the Intent LLM classification call through the
// pinned llmclient.Client surface, collecting the streamed text deltas
// into the raw JSON payload the Intent Analyzer parses.
type intentLLMAdapter struct {
	llm   llmclient.Client
	model string
}

const intentSystemPrompt = `Classify the user's message. Respond with JSON only, matching:
{"complexity":"simple|medium|complex","needs_plan":bool,"relevant_skill_groups":[string],"is_follow_up":bool,"skip_memory":bool,"task_type":string}`

func (a *intentLLMAdapter) Classify(ctx context.Context, query string, history []intent.Message, planSummary string) ([]byte, error) {
	msgs := make([]llmclient.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llmclient.Message{Role: m.Role, Content: m.Content})
	}
	userContent := query
	if planSummary != "" {
		userContent = fmt.Sprintf("Current plan:\n%s\n\nMessage:\n%s", planSummary, query)
	}
	msgs = append(msgs, llmclient.Message{Role: "user", Content: userContent})

	events, err := a.llm.Stream(ctx, llmclient.Request{
		Model:     a.model,
		System:    []llmclient.SystemBlock{{Text: intentSystemPrompt}},
		Messages:  msgs,
		MaxTokens: 512,
	})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for evt := range events {
		if evt.Err != nil {
			return nil, evt.Err
		}
		if evt.Kind == llmclient.EventContentDelta {
			sb.WriteString(evt.Delta)
		}
	}
	return []byte(sb.String()), nil
}

// clipboardReader adapts the cross-platform clipboard package to the
// snapshot manager's narrow ClipboardReader collaborator.
type clipboardReader struct{}

func (clipboardReader) Read() (string, error) { return clipboard.ReadFromClipboard() }

// agentRunner drives a scheduled cron job's rendered message through one
// orchestrator turn.
type agentRunner struct {
	orch       *orchestrator.Orchestrator
	instanceID string
}

func (r agentRunner) Run(ctx context.Context, job *cron.Job) error {
	_, err := r.orch.Run(ctx, orchestrator.TurnInput{
		SessionID:      "cron:" + job.ID,
		ConversationID: "cron:" + job.ID,
		InstanceID:     r.instanceID,
		Message:        job.Message.Content,
	})
	return err
}
