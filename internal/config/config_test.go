package config

import (
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_DIR", "INDEX_PATH", "ADMIN_TOKEN", "LOG_LEVEL"} {
		t.Setenv("CLIPVAULT_"+key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir empty")
	}
	if want := filepath.Join(cfg.Storage.DataDir, "clips.bleve"); cfg.Index.Path != want {
		t.Errorf("Index.Path = %q, want %q", cfg.Index.Path, want)
	}
	if cfg.Admin.Token != "" {
		t.Errorf("Admin.Token = %q, want empty", cfg.Admin.Token)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLIPVAULT_PORT", "8080")
	t.Setenv("CLIPVAULT_DATA_DIR", "/tmp/cv")
	t.Setenv("CLIPVAULT_INDEX_PATH", "/tmp/idx.bleve")
	t.Setenv("CLIPVAULT_ADMIN_TOKEN", "secret")
	t.Setenv("CLIPVAULT_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/cv" {
		t.Errorf("Storage.DataDir = %q, want /tmp/cv", cfg.Storage.DataDir)
	}
	if cfg.Index.Path != "/tmp/idx.bleve" {
		t.Errorf("Index.Path = %q, want /tmp/idx.bleve", cfg.Index.Path)
	}
	if cfg.Admin.Token != "secret" {
		t.Errorf("Admin.Token = %q, want secret", cfg.Admin.Token)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestIndexPathFollowsDataDir(t *testing.T) {
	t.Setenv("CLIPVAULT_DATA_DIR", "/srv/clipvault")
	t.Setenv("CLIPVAULT_INDEX_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join("/srv/clipvault", "clips.bleve"); cfg.Index.Path != want {
		t.Errorf("Index.Path = %q, want %q", cfg.Index.Path, want)
	}
}

func TestInvalidPort(t *testing.T) {
	for _, v := range []string{"abc", "-1", "0", "70000"} {
		t.Setenv("CLIPVAULT_PORT", v)
		if _, err := Load(); err == nil {
			t.Errorf("Load with CLIPVAULT_PORT=%q succeeded, want error", v)
		}
	}
}
