package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func validTestConfig(dir string) *Config {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "agent_data")
	cfg.PriceDataPath = filepath.Join(dir, "merged.jsonl")
	cfg.DateRange = DateRange{InitDate: "2025-10-13", EndDate: "2025-11-10"}
	return cfg
}

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir), WithInitialConfig(validTestConfig(dir)))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := mgr.Get()
	if cfg.MaxSteps != 10 {
		t.Fatalf("expected default max_steps 10, got %d", cfg.MaxSteps)
	}

	cfg.MaxSteps = 5
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := mgr.Get().MaxSteps; got != 5 {
		t.Fatalf("expected max_steps 5 after update, got %d", got)
	}
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir), WithInitialConfig(validTestConfig(dir)))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := mgr.Get()
	cfg.MaxSteps = -1
	if err := mgr.Update(cfg); err == nil {
		t.Fatalf("expected invalid config to be rejected")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir), WithInitialConfig(validTestConfig(dir)))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	if err := mgr.Watch(ctx, func(cfg Config) {
		reloaded <- cfg
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cfg := mgr.Get()
	cfg.MaxSteps = 7
	if err := writeConfigFile(mgr.Path(), cfg); err != nil {
		t.Fatalf("writeConfigFile: %v", err)
	}

	select {
	case got := <-reloaded:
		if got.MaxSteps != 7 {
			t.Fatalf("expected reloaded max_steps 7, got %d", got.MaxSteps)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}
