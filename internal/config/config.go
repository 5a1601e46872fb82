package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider string `toml:"provider" validate:"required,oneof=openai gemini claude ollama"`
	Model    string `toml:"model" validate:"required"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type DeviceConfig struct {
	OS      string `toml:"os" validate:"required,oneof=android harmony"`
	Serial  string `toml:"serial"`
	ADBPath string `toml:"adb_path"`
	HDCPath string `toml:"hdc_path"`
	App     string `toml:"app"`
	// SettleMS is the pause after each action before the screen is sampled.
	SettleMS int `toml:"settle_ms" validate:"gte=0"`
}

type ExploreConfig struct {
	MaxSteps      int `toml:"max_steps" validate:"gte=0"`
	MaxMinutes    int `toml:"max_minutes" validate:"gte=0"`
	MaxActions    int `toml:"max_actions" validate:"gte=1"`
	ActionHistory int `toml:"action_history" validate:"gte=0"`
	InstrHistory  int `toml:"instruction_history" validate:"gte=0"`
}

type VerifyConfig struct {
	Retries         int `toml:"retries" validate:"gte=1"`
	MaxExploreDepth int `toml:"max_explore_depth" validate:"gte=1"`
	Anchor          int `toml:"anchor" validate:"gte=0"`
}

type EquivalenceConfig struct {
	Metric     string  `toml:"metric" validate:"oneof=label weighted"`
	Low        float64 `toml:"low" validate:"gte=0"`
	High       float64 `toml:"high" validate:"gtefield=Low"`
	HashCutoff int     `toml:"hash_cutoff" validate:"gte=-1"`
}

type OracleConfig struct {
	Retries       int `toml:"retries" validate:"gte=1"`
	MaxCandidates int `toml:"max_candidates" validate:"gte=1"`
	TimeoutSec    int `toml:"timeout_sec" validate:"gte=0"`
}

// PromptsConfig overrides the built-in oracle prompts. Empty fields keep the
// defaults.
type PromptsConfig struct {
	Instruction string `toml:"instruction"`
	Novelty     string `toml:"novelty"`
	Verify      string `toml:"verify"`
	Return      string `toml:"return"`
	Candidates  string `toml:"candidates"`
	Describe    string `toml:"describe"`
	Review      string `toml:"review"`
	Grounding   string `toml:"grounding"`
	Area        string `toml:"area"`
	AreaName    string `toml:"area_name"`
}

// GraphConfig points at an optional Bolt endpoint (Neo4j or Memgraph) the PTG
// is exported to after a run.
type GraphConfig struct {
	Enabled  bool   `toml:"enabled"`
	URI      string `toml:"uri" validate:"required_if=Enabled true"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Config struct {
	LLM         LLMConfig         `toml:"llm"`
	Grounder    LLMConfig         `toml:"grounder"`
	Device      DeviceConfig      `toml:"device"`
	Explore     ExploreConfig     `toml:"explore"`
	Verify      VerifyConfig      `toml:"verify"`
	Equivalence EquivalenceConfig `toml:"equivalence"`
	Oracle      OracleConfig      `toml:"oracle"`
	Prompts     PromptsConfig     `toml:"prompts"`
	Graph       GraphConfig       `toml:"graph"`
	Server      ServerConfig      `toml:"server"`
	Journal     JournalConfig     `toml:"journal"`
}

func Default() *Config {
	return &Config{
		LLM:      LLMConfig{Provider: "openai", Model: "gpt-4o"},
		Grounder: LLMConfig{Provider: "openai", Model: "gpt-4o"},
		Device:   DeviceConfig{OS: "harmony", SettleMS: 3000},
		Explore: ExploreConfig{
			MaxSteps:      50,
			MaxMinutes:    30,
			MaxActions:    10,
			ActionHistory: 5,
			InstrHistory:  3,
		},
		Verify:      VerifyConfig{Retries: 3, MaxExploreDepth: 3},
		Equivalence: EquivalenceConfig{Metric: "label", Low: 3, High: 30, HashCutoff: 5},
		Oracle:      OracleConfig{Retries: 3, MaxCandidates: 8, TimeoutSec: 120},
		Server:      ServerConfig{Addr: ":8080"},
		Journal:     JournalConfig{Path: "journal.wal"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.LLM.Provider, "LLM_PROVIDER")
	set(&c.LLM.Model, "LLM_MODEL")
	set(&c.LLM.APIKey, "LLM_API_KEY")
	set(&c.LLM.BaseURL, "LLM_BASE_URL")
	set(&c.Grounder.Provider, "GROUNDER_PROVIDER")
	set(&c.Grounder.Model, "GROUNDER_MODEL")
	set(&c.Grounder.APIKey, "GROUNDER_API_KEY")
	set(&c.Grounder.BaseURL, "GROUNDER_BASE_URL")
	set(&c.Device.Serial, "DEVICE_SERIAL")
	set(&c.Graph.URI, "NEO4J_URI")
	set(&c.Graph.User, "NEO4J_USER")
	set(&c.Graph.Password, "NEO4J_PASSWORD")
	if v, err := strconv.ParseBool(os.Getenv("NEO4J_ENABLED")); err == nil {
		c.Graph.Enabled = v
	}
	if c.Grounder.APIKey == "" {
		c.Grounder.APIKey = c.LLM.APIKey
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Settle() time.Duration {
	return time.Duration(c.Device.SettleMS) * time.Millisecond
}

// RunLimit is the wall-clock budget of a run; zero means unbounded.
func (c *Config) RunLimit() time.Duration {
	return time.Duration(c.Explore.MaxMinutes) * time.Minute
}

func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSec) * time.Second
}
