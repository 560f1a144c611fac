package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesKernelDurations(t *testing.T) {
	path := writeConfig(t, `kernel:
  autonomy_interval: 5s
  task_timeout: 30m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kernel.AutonomyInterval != 5*time.Second {
		t.Errorf("AutonomyInterval = %v, want 5s", cfg.Kernel.AutonomyInterval)
	}
	if cfg.Kernel.TaskTimeout != 30*time.Minute {
		t.Errorf("TaskTimeout = %v, want 30m", cfg.Kernel.TaskTimeout)
	}
	if cfg.Kernel.RecoveryInterval != DefaultRecoveryInterval {
		t.Errorf("RecoveryInterval = %v, want default %v",
			cfg.Kernel.RecoveryInterval, DefaultRecoveryInterval)
	}
}

func TestLoadRejectsDurationWithoutUnit(t *testing.T) {
	path := writeConfig(t, "kernel:\n  autonomy_interval: 60\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for interval without a unit")
	}
}

func TestLoadWithoutKernelSectionUsesDefaults(t *testing.T) {
	path := writeConfig(t, "data_dir: /tmp/agentos-test\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/agentos-test" {
		t.Errorf("DataDir = %q, want /tmp/agentos-test", cfg.DataDir)
	}
	if cfg.Kernel.AutonomyInterval != DefaultAutonomyInterval {
		t.Errorf("AutonomyInterval = %v, want default %v",
			cfg.Kernel.AutonomyInterval, DefaultAutonomyInterval)
	}
	if cfg.Kernel.StrategistInterval != DefaultStrategistInterval {
		t.Errorf("StrategistInterval = %v, want default %v",
			cfg.Kernel.StrategistInterval, DefaultStrategistInterval)
	}
}
