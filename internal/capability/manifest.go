package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// manifest is the on-disk shape of a capability YAML file.
type manifest struct {
	Capabilities []Capability `yaml:"capabilities"`
}

// LoadManifest reads a capability YAML manifest and validates every
// declared tool input_schema against the JSON Schema meta-schema.
func LoadManifest(path string) ([]Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse capability manifest: %w", err)
	}
	for i := range m.Capabilities {
		if err := validateInputSchema(m.Capabilities[i]); err != nil {
			return nil, fmt.Errorf("capability %q: %w", m.Capabilities[i].Name, err)
		}
	}
	return m.Capabilities, nil
}

// validateInputSchema compiles the capability's declared input_schema,
// catching a malformed schema at manifest load time rather than at the
// first tool call that needs it.
func validateInputSchema(c Capability) error {
	if len(c.InputSchema) == 0 {
		return nil
	}
	payload, err := json.Marshal(c.InputSchema)
	if err != nil {
		return fmt.Errorf("marshal input_schema: %w", err)
	}
	if _, err := jsonschema.CompileString(c.Name+"#input_schema", string(payload)); err != nil {
		return fmt.Errorf("invalid input_schema: %w", err)
	}
	return nil
}

// Watcher reloads a Registry's layer-2 capabilities whenever the backing
// manifest file changes on disk.
type Watcher struct {
	path     string
	registry *Registry
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher builds a Watcher for path, reloading into registry on change.
func NewWatcher(path string, registry *Registry, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, registry: registry, logger: logger, debounce: 250 * time.Millisecond}
}

// Start begins watching until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		w.mu.Unlock()
		return fmt.Errorf("watch capability manifest: %w", err)
	}
	w.watcher = fw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(watchCtx, fw)
	return nil
}

// Close stops the watcher goroutine.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fw := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	var err error
	if fw != nil {
		err = fw.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	var timer *time.Timer
	scheduleReload := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, w.reload)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("capability manifest watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	caps, err := LoadManifest(w.path)
	if err != nil {
		w.logger.Warn("capability manifest reload failed, keeping previous catalog", "path", w.path, "error", err)
		return
	}
	w.registry.Reload(caps)
	w.logger.Info("capability manifest reloaded", "path", w.path, "count", len(caps))
}
