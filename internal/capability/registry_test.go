package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCaps() []Capability {
	return []Capability{
		{Name: "web_search", Kind: KindTool, Tags: []string{"research"}, Layer: LayerCore},
		{Name: "file_write", Kind: KindTool, Tags: []string{"fs"}, Layer: LayerDynamic,
			Constraints: Constraints{RequiresNetwork: true}},
		{Name: "reviewer", Kind: KindSkill, Tags: []string{"research"}, Layer: LayerDynamic,
			Subtype: "serial_only"},
	}
}

func TestRegistry_Get(t *testing.T) {
	r := New(sampleCaps())

	c, ok := r.Get("web_search")
	require.True(t, ok)
	assert.Equal(t, KindTool, c.Kind)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_New_DeduplicatesByName(t *testing.T) {
	caps := append(sampleCaps(), Capability{Name: "web_search", Kind: KindTool})
	r := New(caps)

	assert.Len(t, r.FindByKind(KindTool), 2)
}

func TestRegistry_FindByTag(t *testing.T) {
	r := New(sampleCaps())

	found := r.FindByTag("research")

	require.Len(t, found, 2)
	assert.Equal(t, "web_search", found[0].Name)
	assert.Equal(t, "reviewer", found[1].Name)
}

func TestRegistry_FindByLayer(t *testing.T) {
	r := New(sampleCaps())

	core := r.FindByLayer(LayerCore)
	dynamic := r.FindByLayer(LayerDynamic)

	assert.Len(t, core, 1)
	assert.Len(t, dynamic, 2)
}

func TestRegistry_FilterByEnabled_AlwaysAdmitsLayerCore(t *testing.T) {
	r := New(sampleCaps())

	filtered := r.FilterByEnabled(map[string]bool{})

	_, ok := filtered.Get("web_search")
	assert.True(t, ok, "layer-1 capability must always be admitted")
	_, ok = filtered.Get("file_write")
	assert.False(t, ok, "layer-2 capability not in enable map must be excluded")
}

func TestRegistry_FilterByEnabled_AdmitsEnabledDynamic(t *testing.T) {
	r := New(sampleCaps())

	filtered := r.FilterByEnabled(map[string]bool{"file_write": true})

	_, ok := filtered.Get("file_write")
	assert.True(t, ok)
}

func TestRegistry_IsSerialOnly(t *testing.T) {
	r := New(sampleCaps())

	assert.True(t, r.IsSerialOnly("reviewer"))
	assert.False(t, r.IsSerialOnly("web_search"))
	assert.False(t, r.IsSerialOnly("missing"))
}

func TestRegistry_GetToolSchemas_OnlyToolKind(t *testing.T) {
	r := New(sampleCaps())

	schemas := r.GetToolSchemas()

	require.Len(t, schemas, 2)
	names := []string{schemas[0].Name, schemas[1].Name}
	assert.Contains(t, names, "web_search")
	assert.Contains(t, names, "file_write")
}

func TestRegistry_Reload_ReplacesCatalogInPlace(t *testing.T) {
	r := New(sampleCaps())

	r.Reload([]Capability{{Name: "only_one", Kind: KindTool, Layer: LayerCore}})

	_, ok := r.Get("web_search")
	assert.False(t, ok)
	_, ok = r.Get("only_one")
	assert.True(t, ok)
}

func TestConstraints_Admissible(t *testing.T) {
	tests := []struct {
		name string
		c    Constraints
		ctx  Context
		want bool
	}{
		{"no constraints", Constraints{}, Context{}, true},
		{"requires network satisfied", Constraints{RequiresNetwork: true}, Context{HasNetwork: true}, true},
		{"requires network missing", Constraints{RequiresNetwork: true}, Context{HasNetwork: false}, false},
		{"requires api satisfied", Constraints{RequiresAPI: "weather"}, Context{AvailableAPIs: map[string]bool{"weather": true}}, true},
		{"requires api missing", Constraints{RequiresAPI: "weather"}, Context{AvailableAPIs: map[string]bool{}}, false},
		{"requires auth missing", Constraints{RequiresAuth: true}, Context{Authenticated: false}, false},
		{"internal use only blocked", Constraints{InternalUseOnly: true}, Context{Internal: false}, false},
		{"internal use only allowed", Constraints{InternalUseOnly: true}, Context{Internal: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Admissible(tt.ctx))
		})
	}
}

func TestRegistry_Admissible_MissingCapability(t *testing.T) {
	r := New(sampleCaps())

	assert.False(t, r.Admissible("missing", Context{}))
}
