// Package capability implements the read-only capability catalog: a
// unifying descriptor for tools, skills, and inline code runners, loaded
// once per process from declarative YAML config.
package capability

import (
	"strings"
	"sync"
)

// Kind is the capability discriminator.
type Kind string

const (
	KindTool Kind = "tool"
	KindSkill Kind = "skill"
	KindCode Kind = "code"
)

// Layer distinguishes always-loaded core capabilities from dynamically
// gated ones.
type Layer int

const (
	// LayerCore capabilities are always admitted regardless of instance
	// configuration.
	LayerCore Layer = 1
	// LayerDynamic capabilities are subject to the enable map.
	LayerDynamic Layer = 2
)

// Cost describes the declared resource cost of invoking a capability.
type Cost struct {
	Time  float64 `yaml:"time"`
	Money float64 `yaml:"money"`
}

// Constraints gates admissibility of a capability in a given context.
type Constraints struct {
	RequiresAPI     string `yaml:"requires_api,omitempty"`
	RequiresNetwork bool   `yaml:"requires_network,omitempty"`
	RequiresAuth    bool   `yaml:"requires_auth,omitempty"`
	InternalUseOnly bool   `yaml:"internal_use_only,omitempty"`
}

// Capability is the unified descriptor.
type Capability struct {
	Name        string            `yaml:"name"`
	Kind        Kind              `yaml:"kind"`
	Subtype     string            `yaml:"subtype,omitempty"`
	Provider    string            `yaml:"provider,omitempty"`
	Tags        []string          `yaml:"tags,omitempty"`
	Priority    int               `yaml:"priority"`
	Cost        Cost              `yaml:"cost"`
	Constraints Constraints       `yaml:"constraints"`
	InputSchema map[string]any    `yaml:"input_schema,omitempty"`
	FallbackTool string          `yaml:"fallback_tool,omitempty"`
	SkillPath   string            `yaml:"skill_path,omitempty"`
	Layer       Layer             `yaml:"layer"`
	CacheStable bool              `yaml:"cache_stable"`
}

// ToolSchema is the LLM-API-facing projection of a tool-kind capability.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Context is the admissibility context a caller supplies to Filter.
type Context struct {
	AvailableAPIs map[string]bool
	HasNetwork    bool
	Authenticated bool
	Internal      bool
}

// Admissible evaluates a Capability's Constraints against ctx, per SPEC
// §4.3: all declared requirements must hold.
func (c Constraints) Admissible(ctx Context) bool {
	if c.RequiresAPI != "" && !ctx.AvailableAPIs[c.RequiresAPI] {
		return false
	}
	if c.RequiresNetwork && !ctx.HasNetwork {
		return false
	}
	if c.RequiresAuth && !ctx.Authenticated {
		return false
	}
	if c.InternalUseOnly && !ctx.Internal {
		return false
	}
	return true
}

// Registry is the catalog, loaded once at process start and optionally
// hot-reloaded in place by a Watcher when layer-2 capabilities change.
type Registry struct {
	mu           sync.RWMutex
	byName       map[string]Capability
	order        []string
	serialOnly   map[string]bool
}

// New builds a Registry from a slice of capabilities, typically decoded
// from YAML config at process start.
func New(caps []Capability) *Registry {
	r := &Registry{
		byName:     make(map[string]Capability, len(caps)),
		serialOnly: make(map[string]bool),
	}
	for _, c := range caps {
		if _, exists := r.byName[c.Name]; exists {
			continue
		}
		r.byName[c.Name] = c
		r.order = append(r.order, c.Name)
		if strings.EqualFold(c.Subtype, "serial_only") {
			r.serialOnly[c.Name] = true
		}
	}
	return r
}

// Reload atomically replaces the catalog contents in place, used by
// Watcher to pick up manifest edits without swapping the Registry
// pointer held by the rest of the runtime.
func (r *Registry) Reload(caps []Capability) {
	byName := make(map[string]Capability, len(caps))
	serialOnly := make(map[string]bool)
	var order []string
	for _, c := range caps {
		if _, exists := byName[c.Name]; exists {
			continue
		}
		byName[c.Name] = c
		order = append(order, c.Name)
		if strings.EqualFold(c.Subtype, "serial_only") {
			serialOnly[c.Name] = true
		}
	}

	r.mu.Lock()
	r.byName = byName
	r.order = order
	r.serialOnly = serialOnly
	r.mu.Unlock()
}

// Get returns a capability by name.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// FindByTag returns capabilities carrying tag, in registration order.
func (r *Registry) FindByTag(tag string) []Capability {
	return r.find(func(c Capability) bool {
		for _, t := range c.Tags {
			if strings.EqualFold(t, tag) {
				return true
			}
		}
		return false
	})
}

// FindByKind returns capabilities of the given kind.
func (r *Registry) FindByKind(kind Kind) []Capability {
	return r.find(func(c Capability) bool { return c.Kind == kind })
}

// FindByLayer returns capabilities at the given layer.
func (r *Registry) FindByLayer(layer Layer) []Capability {
	return r.find(func(c Capability) bool { return c.Layer == layer })
}

func (r *Registry) find(pred func(Capability) bool) []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Capability
	for _, name := range r.order {
		c := r.byName[name]
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// FilterByEnabled returns a new Registry containing only layer-1
// capabilities plus layer-2 capabilities named in enabled, preserving the
// layer-1-always-on rule.
func (r *Registry) FilterByEnabled(enabled map[string]bool) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &Registry{
		byName:     make(map[string]Capability, len(r.byName)),
		serialOnly: make(map[string]bool, len(r.serialOnly)),
	}
	for _, name := range r.order {
		c := r.byName[name]
		if c.Layer == LayerCore || enabled[name] {
			out.byName[name] = c
			out.order = append(out.order, name)
			if r.serialOnly[name] {
				out.serialOnly[name] = true
			}
		}
	}
	return out
}

// GetToolSchemas projects every tool-kind capability into an LLM-facing
// schema listing.
func (r *Registry) GetToolSchemas() []ToolSchema {
	tools := r.FindByKind(KindTool)
	out := make([]ToolSchema, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolSchema{Name: t.Name, InputSchema: t.InputSchema})
	}
	return out
}

// IsSerialOnly reports whether name belongs to the registry's
// serial_only_tools set: tool_use blocks for serial-only tools never run
// concurrently with others in the same turn.
func (r *Registry) IsSerialOnly(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.serialOnly[name]
}

// Admissible reports whether a named capability is admissible in ctx. A
// missing capability is never admissible.
func (r *Registry) Admissible(name string, ctx Context) bool {
	c, ok := r.Get(name)
	if !ok {
		return false
	}
	return c.Constraints.Admissible(ctx)
}
