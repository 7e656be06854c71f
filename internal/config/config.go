// Package config loads the agent runtime's configuration from environment
// variables, optionally layered on top of an agent.toml file. Env vars
// always win over the file, matching the override order used throughout
// the example pack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every knob named in spec.md §6.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Model     ModelConfig     `toml:"model"`
	Economics EconomicsConfig `toml:"economics"`
	Evolution EvolutionConfig `toml:"evolution"`
	ToolsDir  string          `toml:"tools_dir"`
	LogLevel  string          `toml:"log_level"`
}

// DatabaseConfig configures the Journal's embedded store.
type DatabaseConfig struct {
	Path    string        `toml:"path"`
	Timeout time.Duration `toml:"timeout"`
}

// SchedulerConfig holds the scheduler settings read from file and env
// (§4.4). The scheduler does not read it: it ticks on its own
// scheduler.TickInterval constant, and task cadences are the fixed
// intervals in RegisterDefaults.
type SchedulerConfig struct {
	TickInterval time.Duration `toml:"tick_interval"`
}

// ModelConfig configures the Model Router's default backend reachability.
type ModelConfig struct {
	Provider   string        `toml:"provider"` // ID of the local backend app.New builds
	Model      string        `toml:"model"`
	BaseURL    string        `toml:"base_url"`
	Timeout    time.Duration `toml:"timeout"`
	MaxRetries int           `toml:"max_retries"`
}

// EconomicsConfig configures the Ledger.
type EconomicsConfig struct {
	InitialBalance      float64 `toml:"initial_balance"`
	LowBalanceThreshold float64 `toml:"low_balance_threshold"`
	InferenceCost       float64 `toml:"inference_cost"`
	ToolCreationCost    float64 `toml:"tool_creation_cost"`
}

// EvolutionConfig configures the Evolution Pipeline.
type EvolutionConfig struct {
	MaxRetries         int  `toml:"max_retries"`
	SafetyMode         bool `toml:"safety_mode"`
	BackupBeforeModify bool `toml:"backup_before_modify"`
}

// Default returns the baseline configuration before file/env overrides.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:    "data/agent.db",
			Timeout: 5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			TickInterval: 60 * time.Second,
		},
		Model: ModelConfig{
			Provider:   "local",
			Model:      "llama3",
			BaseURL:    "http://localhost:11434",
			Timeout:    300 * time.Second,
			MaxRetries: 0,
		},
		Economics: EconomicsConfig{
			InitialBalance:      100.0,
			LowBalanceThreshold: 10.0,
			InferenceCost:       0.01,
			ToolCreationCost:    0.05,
		},
		Evolution: EvolutionConfig{
			MaxRetries:         3,
			SafetyMode:         true,
			BackupBeforeModify: true,
		},
		ToolsDir: "tools",
		LogLevel: "info",
	}
}

// Load builds the effective configuration: defaults, then an optional TOML
// file at path (skipped silently if it does not exist), then environment
// variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AGENT_DB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.Timeout = d
		}
	}
	if v := os.Getenv("AGENT_SCHEDULER_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.TickInterval = d
		}
	}
	if v := os.Getenv("AGENT_MODEL_PROVIDER"); v != "" {
		cfg.Model.Provider = v
	}
	if v := os.Getenv("AGENT_MODEL"); v != "" {
		cfg.Model.Model = v
	}
	if v := os.Getenv("AGENT_MODEL_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("AGENT_MODEL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Model.Timeout = d
		}
	}
	if v := os.Getenv("AGENT_MODEL_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.MaxRetries = n
		}
	}
	if v := os.Getenv("AGENT_INITIAL_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Economics.InitialBalance = f
		}
	}
	if v := os.Getenv("AGENT_LOW_BALANCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Economics.LowBalanceThreshold = f
		}
	}
	if v := os.Getenv("AGENT_INFERENCE_COST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Economics.InferenceCost = f
		}
	}
	if v := os.Getenv("AGENT_TOOL_CREATION_COST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Economics.ToolCreationCost = f
		}
	}
	if v := os.Getenv("AGENT_EVOLUTION_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Evolution.MaxRetries = n
		}
	}
	if v := os.Getenv("AGENT_EVOLUTION_SAFETY_MODE"); v != "" {
		cfg.Evolution.SafetyMode = v != "false" && v != "0"
	}
	if v := os.Getenv("AGENT_EVOLUTION_BACKUP_BEFORE_MODIFY"); v != "" {
		cfg.Evolution.BackupBeforeModify = v != "false" && v != "0"
	}
	if v := os.Getenv("AGENT_TOOLS_DIR"); v != "" {
		cfg.ToolsDir = v
	}
	if v := os.Getenv("AGENT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
