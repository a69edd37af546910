package config

import (
	"path/filepath"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_PollInterval_Bounds(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.PollIntervalSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for pollIntervalSeconds=0")
	}
	cfg.Backend.PollIntervalSeconds = 999
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for pollIntervalSeconds=999")
	}
	cfg.Backend.PollIntervalSeconds = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("pollIntervalSeconds=1 should be valid: %v", err)
	}
	cfg.Backend.PollIntervalSeconds = 300
	if err := Validate(cfg); err != nil {
		t.Fatalf("pollIntervalSeconds=300 should be valid: %v", err)
	}
}

func TestValidate_EmptyEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.Endpoint = "  "
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for blank endpoint")
	}
}

func TestValidate_ViewerID(t *testing.T) {
	cfg := Defaults()
	cfg.Viewer.ID = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for viewer id 0")
	}
	cfg.Viewer.ID = -5
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative viewer id")
	}
}

func TestValidate_AutoReplyRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.AutoReply.Phrase = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error: enabled auto-reply without phrase")
	}

	cfg = Defaults()
	cfg.AutoReply.GeneratorURL = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error: enabled auto-reply without generator url")
	}

	// Disabled auto-reply does not require either field.
	cfg = Defaults()
	cfg.AutoReply.Enabled = false
	cfg.AutoReply.Phrase = ""
	cfg.AutoReply.GeneratorURL = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled auto-reply should not be validated: %v", err)
	}
}

func TestValidate_MetricsPort(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port 0")
	}
	cfg.Metrics.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	cfg.Backend.Endpoint = "https://school.example/api/rpc"
	cfg.Viewer.ID = 42
	cfg.Viewer.Name = "Ms. Tran"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Backend.Endpoint != cfg.Backend.Endpoint {
		t.Fatalf("endpoint = %q", got.Backend.Endpoint)
	}
	if got.Viewer.ID != 42 || got.Viewer.Name != "Ms. Tran" {
		t.Fatalf("viewer = %+v", got.Viewer)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	cfg.Viewer.ID = -1
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error on load")
	}
}

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	v, err := GetByPath(cfg, "backend.pollIntervalSeconds")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n, ok := v.(float64); !ok || n != 5 {
		t.Fatalf("value = %v (%T), want 5", v, v)
	}
	if _, err := GetByPath(cfg, "backend.nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetByPath_CoercesAndValidates(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "backend.pollIntervalSeconds", "10"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Backend.PollIntervalSeconds != 10 {
		t.Fatalf("pollIntervalSeconds = %d, want 10", cfg.Backend.PollIntervalSeconds)
	}

	if err := SetByPath(cfg, "metrics.enabled", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics.enabled not coerced to bool")
	}

	// Values that fail validation are rejected.
	if err := SetByPath(cfg, "backend.pollIntervalSeconds", "0"); err == nil {
		t.Fatal("expected validation error")
	}
}
