// Package promptcache implements the Prompt Cache: per-instance
// pre-rendered system prompts at three complexity tiers plus a mutable
// runtime-context dictionary, assembled once at instance load.
package promptcache

import "sync"

// Tier is a pre-rendered system prompt complexity tier.
type Tier string

const (
	TierSimple  Tier = "simple"
	TierMedium  Tier = "medium"
	TierComplex Tier = "complex"
)

// AgentSchema is the structured description of the instance consulted by
// injectors (chosen model, turn/termination knobs, plan/intent settings).
type AgentSchema struct {
	Model                       string
	MaxTurns                    int
	MaxDurationSeconds          int
	IdleTimeoutSeconds          int
	ConsecutiveFailureLimit     int
	LongRunningConfirmAfterTurns int
	PlanEnabled                 bool
	IntentEnabled               bool
}

// RuntimeContext is a small typed struct in place of a loosely-typed
// mutable map: apis/framework/environment/skills prompts plus the two
// registry handles phase-1 injectors consume by reference.
type RuntimeContext struct {
	APIsPrompt        string
	FrameworkPrompt   string
	EnvironmentPrompt string
	SkillsPrompt      string

	mu                   sync.RWMutex
	skillGroups          map[string][]string // group -> skill names
	lastNonEmptySelection []string
}

// NewRuntimeContext builds an empty, ready-to-populate RuntimeContext.
func NewRuntimeContext() *RuntimeContext {
	return &RuntimeContext{skillGroups: make(map[string][]string)}
}

// SetSkillGroups replaces the group->skills reverse-mapping used by the
// tool-provider injector's two-source union.
func (r *RuntimeContext) SetSkillGroups(groups map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skillGroups = groups
}

// SkillsForGroups reverse-maps plan.required_skills-style group names
// into concrete skill names.
func (r *RuntimeContext) SkillsForGroups(groups []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, g := range groups {
		for _, skill := range r.skillGroups[g] {
			if _, ok := seen[skill]; ok {
				continue
			}
			seen[skill] = struct{}{}
			out = append(out, skill)
		}
	}
	return out
}

// RememberSelection stores the last non-empty relevant_skill_groups
// selection, consulted by the follow-up continuity guard so a turn with
// no clear skill signal of its own can fall back to the prior one.
func (r *RuntimeContext) RememberSelection(groups []string) {
	if len(groups) == 0 {
		return
	}
	r.mu.Lock()
	r.lastNonEmptySelection = append([]string(nil), groups...)
	r.mu.Unlock()
}

// LastNonEmptySelection returns the most recently remembered non-empty
// selection.
func (r *RuntimeContext) LastNonEmptySelection() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.lastNonEmptySelection...)
}

// Cache is the per-instance Prompt Cache.
type Cache struct {
	mu      sync.RWMutex
	loaded  bool
	prompts map[Tier]string
	schema  AgentSchema
	runtime *RuntimeContext
}

// New constructs an unloaded Cache.
func New() *Cache {
	return &Cache{prompts: make(map[Tier]string), runtime: NewRuntimeContext()}
}

// Load renders and stores the three system prompt tiers plus schema; it
// is the single-writer initialization path guarded by Cache's lock (SPEC
// §5: "Prompt Cache is read-mostly with a single-writer initialization
// path").
func (c *Cache) Load(prompts map[Tier]string, schema AgentSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tier, text := range prompts {
		c.prompts[tier] = text
	}
	c.schema = schema
	c.loaded = true
}

// Loaded reports whether Load has run.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Prompt returns the rendered prompt for tier.
func (c *Cache) Prompt(tier Tier) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts[tier]
}

// Schema returns the instance's AgentSchema.
func (c *Cache) Schema() AgentSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schema
}

// Runtime returns the mutable runtime-context dictionary, read by
// reference by phase-1 injectors.
func (c *Cache) Runtime() *RuntimeContext {
	return c.runtime
}
