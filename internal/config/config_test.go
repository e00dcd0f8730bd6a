// Package config provides unit tests for environment configuration.
package config

import (
	"testing"
	"time"
)

// TestLoadDefaults verifies defaults apply when only required vars are set.
func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPSYNC_REMOTE_URL", "https://api.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.RemoteBaseURL != "https://api.example.com" {
		t.Errorf("RemoteBaseURL = %q", cfg.RemoteBaseURL)
	}
	if cfg.ListenAddr != "localhost:8090" {
		t.Errorf("ListenAddr = %q, want localhost:8090", cfg.ListenAddr)
	}
	if cfg.DispatchTimeout != 30*time.Second {
		t.Errorf("DispatchTimeout = %v, want 30s", cfg.DispatchTimeout)
	}
	if cfg.BackgroundInterval != time.Minute {
		t.Errorf("BackgroundInterval = %v, want 1m", cfg.BackgroundInterval)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

// TestLoadOverrides verifies environment overrides are honored.
func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPSYNC_REMOTE_URL", "https://api.example.com")
	t.Setenv("OPSYNC_DISPATCH_TIMEOUT", "5s")
	t.Setenv("OPSYNC_BACKGROUND_INTERVAL", "30s")
	t.Setenv("OPSYNC_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DispatchTimeout != 5*time.Second {
		t.Errorf("DispatchTimeout = %v, want 5s", cfg.DispatchTimeout)
	}
	if cfg.BackgroundInterval != 30*time.Second {
		t.Errorf("BackgroundInterval = %v, want 30s", cfg.BackgroundInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

// TestLoadMissingRequired verifies the remote URL is mandatory.
func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("OPSYNC_REMOTE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when OPSYNC_REMOTE_URL is empty")
	}
}
