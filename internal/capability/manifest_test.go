package capability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "capabilities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadManifest_ValidSchema(t *testing.T) {
	path := writeManifest(t, `
capabilities:
  - name: web_search
    kind: tool
    layer: 1
    input_schema:
      type: object
      properties:
        query:
          type: string
      required: [query]
`)

	caps, err := LoadManifest(path)

	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, "web_search", caps[0].Name)
	assert.Equal(t, LayerCore, caps[0].Layer)
}

func TestLoadManifest_InvalidSchemaRejected(t *testing.T) {
	path := writeManifest(t, `
capabilities:
  - name: bad_tool
    kind: tool
    layer: 2
    input_schema:
      type: "not-a-real-json-schema-type"
`)

	_, err := LoadManifest(path)

	assert.Error(t, err)
}

func TestLoadManifest_MissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}

func TestWatcher_Reload_PicksUpManifestChange(t *testing.T) {
	path := writeManifest(t, `
capabilities:
  - name: web_search
    kind: tool
    layer: 1
`)
	registry := New(nil)
	w := NewWatcher(path, registry, nil)
	require.NoError(t, w.Start(t.Context()))
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`
capabilities:
  - name: web_search
    kind: tool
    layer: 1
  - name: file_write
    kind: tool
    layer: 2
`), 0o600))

	require.Eventually(t, func() bool {
		_, ok := registry.Get("file_write")
		return ok
	}, 2*time.Second, 50*time.Millisecond)
}
