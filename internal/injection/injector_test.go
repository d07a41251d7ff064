package injection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInjector struct {
	name     string
	phase    Phase
	strategy CacheStrategy
	priority int
	fire     bool
	content  string
}

func (f fakeInjector) Name() string                  { return f.name }
func (f fakeInjector) Phase() Phase                  { return f.phase }
func (f fakeInjector) CacheStrategy() CacheStrategy   { return f.strategy }
func (f fakeInjector) Priority() int                  { return f.priority }
func (f fakeInjector) ShouldInject(ctx Context) bool  { return f.fire }
func (f fakeInjector) Inject(ctx Context) Result      { return Result{Content: f.content} }

func TestOrchestrator_BuildSystemBlocks_AssignsCacheLayersByStrategy(t *testing.T) {
	o := NewOrchestrator(
		fakeInjector{name: "identity", phase: PhaseSystem, strategy: CacheStable, priority: 10, fire: true, content: "stable block"},
		fakeInjector{name: "plan", phase: PhaseSystem, strategy: CacheSession, priority: 5, fire: true, content: "session block"},
		fakeInjector{name: "clock", phase: PhaseSystem, strategy: CacheDynamic, priority: 1, fire: true, content: "dynamic block"},
	)

	blocks := o.BuildSystemBlocks(Context{})

	require.Len(t, blocks, 3)
	assert.Equal(t, "identity", blocks[0].Name)
	assert.Equal(t, 1, blocks[0].CacheLayer)
	assert.Equal(t, "plan", blocks[1].Name)
	assert.Equal(t, 2, blocks[1].CacheLayer)
	assert.Equal(t, "clock", blocks[2].Name)
	assert.Equal(t, 0, blocks[2].CacheLayer)
}

func TestOrchestrator_BuildSystemBlocks_OrdersByPriorityDescending(t *testing.T) {
	o := NewOrchestrator(
		fakeInjector{name: "low", phase: PhaseSystem, priority: 1, fire: true, content: "x"},
		fakeInjector{name: "high", phase: PhaseSystem, priority: 100, fire: true, content: "y"},
	)

	blocks := o.BuildSystemBlocks(Context{})

	require.Len(t, blocks, 2)
	assert.Equal(t, "high", blocks[0].Name)
	assert.Equal(t, "low", blocks[1].Name)
}

func TestOrchestrator_BuildSystemBlocks_SkipsNonFiringAndEmpty(t *testing.T) {
	o := NewOrchestrator(
		fakeInjector{name: "skipped", phase: PhaseSystem, fire: false, content: "never"},
		fakeInjector{name: "empty", phase: PhaseSystem, fire: true, content: "   "},
		fakeInjector{name: "kept", phase: PhaseSystem, fire: true, content: "kept content"},
	)

	blocks := o.BuildSystemBlocks(Context{})

	require.Len(t, blocks, 1)
	assert.Equal(t, "kept", blocks[0].Name)
}

func TestOrchestrator_BuildMessages_NoPhases(t *testing.T) {
	o := NewOrchestrator()

	msgs := o.BuildMessages(Context{}, []Message{{Role: "assistant", Content: "prior"}}, "hello")

	require.Len(t, msgs, 2)
	assert.Equal(t, "prior", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestOrchestrator_BuildMessages_UserContextAndRuntimeSpliced(t *testing.T) {
	o := NewOrchestrator(
		fakeInjector{name: "profile", phase: PhaseUserContext, fire: true, content: "profile info"},
		fakeInjector{name: "clock", phase: PhaseRuntime, fire: true, content: "runtime info"},
	)

	msgs := o.BuildMessages(Context{}, nil, "hello")

	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].SystemInjected)
	assert.Equal(t, "profile info", msgs[0].Content)
	assert.Contains(t, msgs[1].Content, "hello")
	assert.Contains(t, msgs[1].Content, "runtime info")
}

func TestResult_Empty(t *testing.T) {
	assert.True(t, Result{Content: "   "}.Empty())
	assert.False(t, Result{Content: "x"}.Empty())
}

func TestOrchestrator_Register_AddsInjector(t *testing.T) {
	o := NewOrchestrator()
	o.Register(fakeInjector{name: "added", phase: PhaseSystem, fire: true, content: "added content"})

	blocks := o.BuildSystemBlocks(Context{})

	require.Len(t, blocks, 1)
	assert.Equal(t, "added", blocks[0].Name)
}
