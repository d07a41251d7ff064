// Package config loads and validates the agent runtime's instance
// configuration: a single YAML document (with optional $include
// fragments) describing the model providers, storage paths, and the
// operational knobs for the eleven runtime components.
package config

import (
	"time"

	"github.com/agentrt/core/internal/ratelimit"
)

// InstanceConfig identifies and locates one running instance.
type InstanceConfig struct {
	ID      string `yaml:"id"`
	DataDir string `yaml:"data_dir"`
}

// AgentConfig configures the default model and the adaptive terminator's
// named knobs.
type AgentConfig struct {
	DefaultModel                 string        `yaml:"default_model"`
	MaxTurns                     int           `yaml:"max_turns"`
	MaxDuration                  time.Duration `yaml:"max_duration"`
	IdleTimeout                  time.Duration `yaml:"idle_timeout"`
	ConsecutiveFailureLimit      int           `yaml:"consecutive_failure_limit"`
	LongRunningConfirmAfterTurns int           `yaml:"long_running_confirm_after_turns"`
	ToolConcurrency              int           `yaml:"tool_concurrency"`
}

// PromptCacheConfig points at the on-disk prompt files for the three
// agent schema tiers plus the static runtime context fragments.
type PromptCacheConfig struct {
	SimplePromptFile  string `yaml:"simple_prompt_file"`
	MediumPromptFile  string `yaml:"medium_prompt_file"`
	ComplexPromptFile string `yaml:"complex_prompt_file"`
	APIsPromptFile    string `yaml:"apis_prompt_file"`
	FrameworkFile     string `yaml:"framework_prompt_file"`
	EnvironmentFile   string `yaml:"environment_prompt_file"`
	SkillsPromptFile  string `yaml:"skills_prompt_file"`
}

// CapabilitiesConfig points at the YAML manifest the capability registry
// is seeded from.
type CapabilitiesConfig struct {
	ManifestFile string `yaml:"manifest_file"`
}

// StorageConfig locates the event log, compacted tool-result bodies, and
// the session/branch SQLite database.
type StorageConfig struct {
	ToolResultsDir   string `yaml:"tool_results_dir"`
	SessionsDBPath   string `yaml:"sessions_db_path"`
	MaxEventsPerSession int `yaml:"max_events_per_session"`
}

// SnapshotConfig configures the state consistency manager.
type SnapshotConfig struct {
	Enabled                 bool          `yaml:"enabled"`
	SnapshotDir             string        `yaml:"snapshot_dir"`
	RetentionCapBytes       int64         `yaml:"retention_cap_bytes"`
	ConsecutiveFailureLimit int           `yaml:"consecutive_failure_limit"`
	RetentionWindow         time.Duration `yaml:"retention_window"`
}

// CompactionConfig tunes the tool-result compactor.
type CompactionConfig struct {
	HeadLines           int  `yaml:"head_lines"`
	TailLines           int  `yaml:"tail_lines"`
	ForceThreshold      int  `yaml:"force_threshold"`
	CompactionThreshold int  `yaml:"compaction_threshold"`
	SanitizeSecrets     bool `yaml:"sanitize_secrets"`
}

// Config is the root configuration document.
type Config struct {
	Version       int                 `yaml:"version"`
	Instance      InstanceConfig      `yaml:"instance"`
	Agent         AgentConfig         `yaml:"agent"`
	LLM           LLMConfig           `yaml:"llm"`
	PromptCache   PromptCacheConfig   `yaml:"prompt_cache"`
	Capabilities  CapabilitiesConfig  `yaml:"capabilities"`
	Storage       StorageConfig       `yaml:"storage"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Compaction    CompactionConfig    `yaml:"compaction"`
	Cron          CronConfig          `yaml:"cron"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	RateLimit     ratelimit.Config    `yaml:"rate_limit"`
}

// Default returns a Config populated with the runtime's documented
// defaults, suitable as a base onto which a loaded document
// is merged.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Agent: AgentConfig{
			DefaultModel:                 "claude-sonnet-4-5",
			MaxTurns:                     100,
			MaxDuration:                  30 * time.Minute,
			IdleTimeout:                  120 * time.Second,
			ConsecutiveFailureLimit:      5,
			LongRunningConfirmAfterTurns: 20,
			ToolConcurrency:              4,
		},
		Storage: StorageConfig{
			MaxEventsPerSession: 1000,
		},
		Snapshot: SnapshotConfig{
			RetentionCapBytes:       500 * 1024 * 1024,
			ConsecutiveFailureLimit: 3,
		},
		Compaction: CompactionConfig{
			HeadLines:           10,
			TailLines:           5,
			ForceThreshold:      500,
			CompactionThreshold: 1500,
			SanitizeSecrets:     true,
		},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// Load reads path (resolving $include fragments), merges it onto the
// documented defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	return cfg, nil
}
