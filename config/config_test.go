package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	if cfg.Device != want.Device || cfg.Session != want.Session || cfg.Serve != want.Serve || cfg.Log != want.Log {
		t.Fatalf("expect defaults\n%+v\ngot\n%+v", want, *cfg)
	}
	if len(cfg.Registry.Endpoints) != 0 || cfg.Registry.Prefix != want.Registry.Prefix || cfg.Registry.TTL != want.Registry.TTL {
		t.Fatalf("expect default registry, got %+v", cfg.Registry)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flipper.toml")
	content := `
[device]
address = "board.local"
dial_timeout = "750ms"
balancer = "consistent_hash"

[session]
codec = "json"

[registry]
endpoints = ["10.0.0.1:2379", "10.0.0.2:2379"]

[serve]
rate = 50.0
burst = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Device.Address != "board.local" || cfg.Device.DialTimeout != 750*time.Millisecond {
		t.Fatalf("device section not applied: %+v", cfg.Device)
	}
	if cfg.Device.Port != "4000" {
		t.Fatalf("unset keys should keep defaults, got port %q", cfg.Device.Port)
	}
	if cfg.Session.Codec != "json" {
		t.Fatalf("expect json codec, got %q", cfg.Session.Codec)
	}
	if len(cfg.Registry.Endpoints) != 2 || cfg.Registry.Endpoints[1] != "10.0.0.2:2379" {
		t.Fatalf("unexpected endpoints %v", cfg.Registry.Endpoints)
	}
	if cfg.Serve.Rate != 50 || cfg.Serve.Burst != 5 {
		t.Fatalf("serve section not applied: %+v", cfg.Serve)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flipper.toml")
	if err := os.WriteFile(path, []byte("[device]\nport = \"5000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLIPPER_DEVICE_PORT", "6000")
	t.Setenv("FLIPPER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Port != "6000" {
		t.Fatalf("expect env to win, got %q", cfg.Device.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expect debug, got %q", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expect error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Session.Codec = "xml"
	cfg.Device.Balancer = "random"
	cfg.Session.MaxArgsSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expect validation error")
	}
	for _, key := range []string{"session.codec", "device.balancer", "session.max_args_size"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expect %s in %q", key, err)
		}
	}
}
