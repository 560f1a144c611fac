// Package config defines the AgentOS application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level AgentOS configuration.
type Config struct {
	Server    ServerConfig  `json:"server" yaml:"server"`
	Kernel    KernelConfig  `json:"kernel" yaml:"kernel"`
	Agents    []AgentConfig `json:"agents" yaml:"agents"`
	DataDir   string        `json:"data_dir" yaml:"data_dir"`
	Workspace string        `json:"workspace" yaml:"workspace"` // root for file/shell/git capabilities
	LogLevel  string        `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":3001"
}

// KernelConfig controls the kernel's background cycles.
// Zero values fall back to the defaults below.
type KernelConfig struct {
	AutonomyInterval   time.Duration `json:"autonomy_interval" yaml:"autonomy_interval"`
	RecoveryInterval   time.Duration `json:"recovery_interval" yaml:"recovery_interval"`
	TaskTimeout        time.Duration `json:"task_timeout" yaml:"task_timeout"`
	StrategistInterval time.Duration `json:"strategist_interval" yaml:"strategist_interval"`
}

// UnmarshalYAML parses the cycle settings as duration strings such as
// "60s" or "2m". Omitted fields keep their current values.
func (k *KernelConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		AutonomyInterval   string `yaml:"autonomy_interval"`
		RecoveryInterval   string `yaml:"recovery_interval"`
		TaskTimeout        string `yaml:"task_timeout"`
		StrategistInterval string `yaml:"strategist_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"autonomy_interval", raw.AutonomyInterval, &k.AutonomyInterval},
		{"recovery_interval", raw.RecoveryInterval, &k.RecoveryInterval},
		{"task_timeout", raw.TaskTimeout, &k.TaskTimeout},
		{"strategist_interval", raw.StrategistInterval, &k.StrategistInterval},
	} {
		if f.src == "" {
			continue
		}
		d, err := time.ParseDuration(f.src)
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// AgentConfig seeds a single agent record.
type AgentConfig struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Role         string  `json:"role" yaml:"role"` // "planner", "executor", "reviewer", "strategist"
	SystemPrompt string  `json:"system_prompt" yaml:"system_prompt"`
	Provider     string  `json:"provider" yaml:"provider"` // "mock", "anthropic", "openai"
	Model        string  `json:"model,omitempty" yaml:"model"`
	Temperature  float64 `json:"temperature,omitempty" yaml:"temperature"`
}

// Default kernel cycle settings.
const (
	DefaultAutonomyInterval   = 60 * time.Second
	DefaultRecoveryInterval   = 2 * time.Minute
	DefaultTaskTimeout        = 15 * time.Minute
	DefaultStrategistInterval = time.Hour
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":3001",
		},
		Kernel: KernelConfig{
			AutonomyInterval:   DefaultAutonomyInterval,
			RecoveryInterval:   DefaultRecoveryInterval,
			TaskTimeout:        DefaultTaskTimeout,
			StrategistInterval: DefaultStrategistInterval,
		},
		DataDir:   "./data",
		Workspace: ".",
		LogLevel:  "info",
		Agents: []AgentConfig{
			{
				ID:           "agent-planner-01",
				Name:         "Planner",
				Role:         "planner",
				SystemPrompt: "You are the PLANNER. You are the system's brain.\nYou do not write code; you create clear, actionable tasks for Executors.\nYou break goals into atomic tasks, define priorities, and handle assignment.",
				Provider:     "mock",
				Temperature:  0.6,
			},
			{
				ID:           "agent-executor-01",
				Name:         "Executor",
				Role:         "executor",
				SystemPrompt: "You are an EXECUTOR. You are a builder.\nYou take tasks and turn them into working code.\nYou execute commands, write files, run tests. You ship fast and iterate.",
				Provider:     "mock",
				Temperature:  0.0,
			},
			{
				ID:           "agent-reviewer-01",
				Name:         "Reviewer",
				Role:         "reviewer",
				SystemPrompt: "You are the REVIEWER. You are the quality gate.\nYou validate code quality, look for bugs and design flaws,\napprove or reject changes, and merge approved code to main.\nYou are thorough but reasonable.",
				Provider:     "mock",
				Temperature:  0.3,
			},
			{
				ID:           "agent-strategist-01",
				Name:         "Strategist",
				Role:         "strategist",
				SystemPrompt: "You are the STRATEGIST, a product and business analyst.\nYou research the market, identify opportunities, and break strategic\ngoals into actionable tasks. Validate assumptions with research.",
				Provider:     "mock",
				Temperature:  0.7,
			},
		},
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Kernel.AutonomyInterval <= 0 {
		c.Kernel.AutonomyInterval = DefaultAutonomyInterval
	}
	if c.Kernel.RecoveryInterval <= 0 {
		c.Kernel.RecoveryInterval = DefaultRecoveryInterval
	}
	if c.Kernel.TaskTimeout <= 0 {
		c.Kernel.TaskTimeout = DefaultTaskTimeout
	}
	if c.Kernel.StrategistInterval <= 0 {
		c.Kernel.StrategistInterval = DefaultStrategistInterval
	}
}
