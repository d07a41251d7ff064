// Package compactor implements the Result Compactor: large tool
// results are written to a content-addressed file and replaced in context
// by a short head/tail envelope, or by a top-N summary for search-shaped
// results.
package compactor

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config mirrors the compactor's named tunables.
type Config struct {
	StorageDir string
	HeadLines  int
	TailLines  int

	// SanitizeSecrets applies builtinSecretPatterns to a tool result's body
	// before it is written to storage or summarized, so a leaked credential
	// never reaches the content-addressed store or the inline envelope.
	SanitizeSecrets bool
}

// DefaultConfig returns the compactor's documented defaults.
func DefaultConfig(storageDir string) Config {
	return Config{StorageDir: storageDir, HeadLines: 10, TailLines: 5}
}

// Envelope is the metadata record emitted alongside a compacted result.
type Envelope struct {
	RefID          string    `json:"ref_id"`
	FilePath       string    `json:"file_path"`
	OriginalLength int       `json:"original_length"`
	ToolName       string    `json:"tool_name"`
	ToolID         string    `json:"tool_id"`
	CompressedAt   time.Time `json:"compressed_at"`
}

// Compactor writes and recovers compacted tool results.
type Compactor struct {
	cfg Config
	now func() time.Time
}

// New builds a Compactor. now defaults to time.Now if nil; tests may
// inject a fixed clock.
func New(cfg Config, now func() time.Time) *Compactor {
	if cfg.HeadLines <= 0 {
		cfg.HeadLines = 10
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = 5
	}
	if now == nil {
		now = time.Now
	}
	return &Compactor{cfg: cfg, now: now}
}

func refID(toolName, toolID string, length int, at time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%d|%d", toolName, toolID, length, at.UnixNano())))
	return fmt.Sprintf("%x", sum)[:12]
}

// Compact writes body to storage_dir/<ref_id>.json and returns the inline
// text plus metadata envelope for the default head/tail path.
func (c *Compactor) Compact(toolName, toolID, body string) (string, Envelope, error) {
	if c.cfg.SanitizeSecrets {
		body = sanitizeSecrets(body)
	}
	at := c.now().UTC()
	ref := refID(toolName, toolID, len(body), at)
	env := Envelope{
		RefID:          ref,
		FilePath:       filepath.Join(c.cfg.StorageDir, ref+".json"),
		OriginalLength: len(body),
		ToolName:       toolName,
		ToolID:         toolID,
		CompressedAt:   at,
	}

	if err := c.write(env.FilePath, body); err != nil {
		return "", Envelope{}, err
	}

	lines := strings.Split(body, "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "[COMPRESSED:%s]\n", ref)

	head, tail := c.cfg.HeadLines, c.cfg.TailLines
	if len(lines) <= head+tail {
		b.WriteString(body)
	} else {
		b.WriteString(strings.Join(lines[:head], "\n"))
		fmt.Fprintf(&b, "\n... (%d more lines, full content at %s) ...\n", len(lines)-head-tail, env.FilePath)
		b.WriteString(strings.Join(lines[len(lines)-tail:], "\n"))
	}

	return b.String(), env, nil
}

// searchItem is the minimal shape the search path extracts per element.
type searchItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// CompactSearch extracts up to five items' title/url/snippet from a
// list-shaped JSON result, truncating each snippet at 200 chars.
func (c *Compactor) CompactSearch(toolName, toolID string, raw []byte) (string, Envelope, error) {
	if c.cfg.SanitizeSecrets {
		raw = []byte(sanitizeSecrets(string(raw)))
	}
	at := c.now().UTC()
	env := Envelope{
		RefID:          refID(toolName, toolID, len(raw), at),
		OriginalLength: len(raw),
		ToolName:       toolName,
		ToolID:         toolID,
		CompressedAt:   at,
	}
	env.FilePath = filepath.Join(c.cfg.StorageDir, env.RefID+".json")
	if err := c.write(env.FilePath, string(raw)); err != nil {
		return "", Envelope{}, err
	}

	var items []searchItem
	_ = json.Unmarshal(raw, &items)
	if len(items) > 5 {
		items = items[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[COMPRESSED:%s] %d result(s)\n", env.RefID, len(items))
	for i, it := range items {
		snippet := it.Snippet
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		fmt.Fprintf(&b, "%d. %s (%s) — %s\n", i+1, it.Title, it.URL, snippet)
	}
	return b.String(), env, nil
}

func (c *Compactor) write(path, body string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{"content": body})
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// Recover reads back the content-addressed file for refID. A missing file
// returns ("", false, nil) — callers must treat this as "not recoverable"
// rather than an error.
func (c *Compactor) Recover(refID string) (string, bool, error) {
	path := filepath.Join(c.cfg.StorageDir, refID+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	var payload map[string]string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false, err
	}
	return payload["content"], true, nil
}
