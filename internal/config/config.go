package config

import (
	"fmt"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml
type Config struct {
	TickMS          int    `yaml:"tick_ms"`           // 10 (by default), hardware timer interrupt period
	TaskTimerPeriod int    `yaml:"task_timer_period"` // 2 (by default), ticks between preemption points
	MaxLevel        int    `yaml:"max_level"`         // 3 (by default)
	MainLevel       int    `yaml:"main_level"`        // max_level (by default)
	StackBytes      int    `yaml:"stack_bytes"`       // 32768 (by default)
	StackLimit      int    `yaml:"stack_limit"`       // 0 (by default), bytes of stack the heap may hand out; 0 = unlimited
	TraceCSV        string `yaml:"trace_csv"`         // empty = no trace
}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		TickMS:          10,
		TaskTimerPeriod: 2,
		MaxLevel:        3,
		MainLevel:       -1,
		StackBytes:      4096 * 8,
	}
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := defaultConfig()
	cfg.clamp()
	return cfg
}

// Load reads YAML and overrides defaults; empty path = defaults only.
// Unreadable or malformed files also fall back to defaults.
func Load(path string) Config {
	cfg, err := LoadFile(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile is Load that reports why a file could not be used.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.clamp()
	return cfg, nil
}

// sanity clamps
func (cfg *Config) clamp() {
	if cfg.TickMS <= 0 {
		cfg.TickMS = 10
	}
	if cfg.TaskTimerPeriod <= 0 {
		cfg.TaskTimerPeriod = 2
	}
	if cfg.MaxLevel <= 0 {
		cfg.MaxLevel = 3
	}
	if cfg.MainLevel < 0 || cfg.MainLevel > cfg.MaxLevel {
		cfg.MainLevel = cfg.MaxLevel
	}
	if cfg.StackBytes < 1024 {
		cfg.StackBytes = 4096 * 8
	}
	if cfg.StackLimit < 0 {
		cfg.StackLimit = 0
	}
}

// TickInterval is the hardware timer period as a duration.
func (cfg Config) TickInterval() time.Duration {
	return time.Duration(cfg.TickMS) * time.Millisecond
}
