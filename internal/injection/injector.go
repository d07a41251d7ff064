// Package injection implements the Injection Orchestrator: it runs
// registered Injectors across three phases, respecting per-Injector cache
// strategy and priority, and assembles either layered system blocks or
// appended message content.
package injection

import (
	"sort"
	"strings"

	"github.com/agentrt/core/internal/intent"
	"github.com/agentrt/core/internal/plan"
	"github.com/agentrt/core/internal/promptcache"
)

// Phase is one of the three injection phases.
type Phase string

const (
	PhaseSystem      Phase = "system"
	PhaseUserContext Phase = "user_context"
	PhaseRuntime     Phase = "runtime"
)

// CacheStrategy maps to a `_cache_layer` integer on emitted system
// blocks.
type CacheStrategy string

const (
	CacheStable  CacheStrategy = "stable"
	CacheSession CacheStrategy = "session"
	CacheDynamic CacheStrategy = "dynamic"
)

// Context is the plain per-turn data record injectors read from. It is
// produced by the orchestrator and never calls back into it, breaking
// what would otherwise be a package import cycle.
type Context struct {
	SessionID      string
	ConversationID string
	UserMessage    string

	Intent intent.Result
	Plan   *plan.Plan

	TaskComplexity string // simple | medium | complex

	PromptCache *promptcache.Cache

	// UserProfile, Playbook, Knowledge, Todos, EditorContext are
	// collaborator-supplied data the built-in injectors format; nil/empty
	// means "nothing to inject".
	UserProfile   string
	Playbook      *PlaybookHint
	Knowledge     []KnowledgeSnippet
	EditorContext string

	// HistorySummary is pre-computed by the orchestrator (or left empty
	// for the injector to decide based on message count).
	HistorySummary     string
	RecentMessageCount int

	// ToolSchemas lists admissible tool descriptors for the tool-provider
	// injector to render; APIDocs and StaticSkillsPrompt back its
	// fallback paths.
	ToolSchemas       []ToolDescriptor
	APIDocs           string
	StaticSkillsPrompt string

	// UIAutomation indicates the turn involves desktop/UI automation,
	// triggering the desktop-operation protocol appendix.
	UIAutomation bool
}

// ToolDescriptor is the minimal shape the tool-provider injector renders.
type ToolDescriptor struct {
	Name        string
	Description string
}

// PlaybookHint is the single best-matching past-success record.
type PlaybookHint struct {
	Summary    string
	Confidence float64
}

// KnowledgeSnippet is a retrieved local-knowledge chunk.
type KnowledgeSnippet struct {
	Text string
}

// Result is what Inject returns: exactly the content to splice plus
// optional XML tagging and metadata. An Injector returning an empty
// Result is dropped with no side effect.
type Result struct {
	Content  string
	XMLTag   string
	Metadata map[string]any
}

func (r Result) Empty() bool { return strings.TrimSpace(r.Content) == "" }

// Injector is a named producer of a prompt fragment.
type Injector interface {
	Name() string
	Phase() Phase
	CacheStrategy() CacheStrategy
	Priority() int
	ShouldInject(ctx Context) bool
	Inject(ctx Context) Result
}

// SystemBlock is one phase-1 emission, annotated with its cache layer.
type SystemBlock struct {
	Name       string
	Content    string
	XMLTag     string
	CacheLayer int
}

// Orchestrator runs the registered Injectors.
type Orchestrator struct {
	injectors []Injector
}

// NewOrchestrator builds an Orchestrator from a set of injectors.
func NewOrchestrator(injectors ...Injector) *Orchestrator {
	o := &Orchestrator{injectors: append([]Injector(nil), injectors...)}
	return o
}

// Register adds an injector.
func (o *Orchestrator) Register(inj Injector) {
	o.injectors = append(o.injectors, inj)
}

func (o *Orchestrator) phaseInjectors(phase Phase) []Injector {
	var out []Injector
	for _, inj := range o.injectors {
		if inj.Phase() == phase {
			out = append(out, inj)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() > out[j].Priority() })
	return out
}

// BuildSystemBlocks runs phase-1 (system) injectors and returns ordered
// records with `_cache_layer` set. Cache layer assignment: `stable`
// consumes a monotonically increasing stable layer assigned in priority
// order; `session` gets stable+1; `dynamic` gets 0.
func (o *Orchestrator) BuildSystemBlocks(ctx Context) []SystemBlock {
	var blocks []SystemBlock
	stableLayer := 0
	for _, inj := range o.phaseInjectors(PhaseSystem) {
		if !inj.ShouldInject(ctx) {
			continue
		}
		res := inj.Inject(ctx)
		if res.Empty() {
			continue
		}
		var layer int
		switch inj.CacheStrategy() {
		case CacheStable:
			stableLayer++
			layer = stableLayer
		case CacheSession:
			layer = stableLayer + 1
		default:
			layer = 0
		}
		blocks = append(blocks, SystemBlock{Name: inj.Name(), Content: res.Content, XMLTag: res.XMLTag, CacheLayer: layer})
	}
	return blocks
}

// BuildUserContextContent runs phase-2 (user_context) injectors and
// joins their output with blank lines, or returns nil if none fired.
func (o *Orchestrator) BuildUserContextContent(ctx Context) *string {
	var parts []string
	for _, inj := range o.phaseInjectors(PhaseUserContext) {
		if !inj.ShouldInject(ctx) {
			continue
		}
		res := inj.Inject(ctx)
		if res.Empty() {
			continue
		}
		parts = append(parts, res.Content)
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, "\n\n")
	return &joined
}

// BuildRuntimeContent runs phase-3 (runtime) injectors and joins their
// output, or returns nil if none fired.
func (o *Orchestrator) BuildRuntimeContent(ctx Context) *string {
	var parts []string
	for _, inj := range o.phaseInjectors(PhaseRuntime) {
		if !inj.ShouldInject(ctx) {
			continue
		}
		res := inj.Inject(ctx)
		if res.Empty() {
			continue
		}
		parts = append(parts, res.Content)
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, "\n\n")
	return &joined
}

// Message is one entry in the final ordered sequence BuildMessages
// produces.
type Message struct {
	Role           string
	Content        string
	SystemInjected bool
}

// BuildMessages composes the final ordered message sequence: optional
// phase-2 user message (flagged system-injection), carried history, then
// a final user message combining userMessage and phase-3 content when
// both are present.
func (o *Orchestrator) BuildMessages(ctx Context, history []Message, userMessage string) []Message {
	var out []Message
	if uc := o.BuildUserContextContent(ctx); uc != nil {
		out = append(out, Message{Role: "user", Content: *uc, SystemInjected: true})
	}
	out = append(out, history...)

	final := userMessage
	if rc := o.BuildRuntimeContent(ctx); rc != nil {
		final = userMessage + "\n\n---\n\n" + *rc
	}
	out = append(out, Message{Role: "user", Content: final})
	return out
}
