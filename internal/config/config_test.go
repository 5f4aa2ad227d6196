package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notify.Endpoint != "http://localhost:8080/ws" {
		t.Errorf("Endpoint = %q", cfg.Notify.Endpoint)
	}
	if cfg.Notify.ReconnectDelay.D() != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.Notify.ReconnectDelay.D())
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "notify.yaml", `
notify:
  endpoint: https://api.foodflow.app/ws
  reconnect_delay: 2s
  heartbeat_outgoing: 0s
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notify.Endpoint != "https://api.foodflow.app/ws" {
		t.Errorf("Endpoint = %q", cfg.Notify.Endpoint)
	}
	if cfg.Notify.ReconnectDelay.D() != 2*time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.Notify.ReconnectDelay.D())
	}
	if cfg.Notify.HeartbeatOutgoing.D() != 0 {
		t.Errorf("HeartbeatOutgoing = %v, want 0", cfg.Notify.HeartbeatOutgoing.D())
	}
	// Untouched fields keep their defaults.
	if cfg.Notify.HeartbeatIncoming.D() != 10*time.Second {
		t.Errorf("HeartbeatIncoming = %v, want 10s", cfg.Notify.HeartbeatIncoming.D())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "notify.toml", `
[notify]
endpoint = "http://10.0.0.5:9000/ws"
reconnect_delay = "750ms"

[relay]
addr = ":9999"
secret = "s3cret"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notify.Endpoint != "http://10.0.0.5:9000/ws" {
		t.Errorf("Endpoint = %q", cfg.Notify.Endpoint)
	}
	if cfg.Notify.ReconnectDelay.D() != 750*time.Millisecond {
		t.Errorf("ReconnectDelay = %v", cfg.Notify.ReconnectDelay.D())
	}
	if cfg.Relay.Addr != ":9999" || cfg.Relay.Secret != "s3cret" || cfg.Relay.Path != "/ws" {
		t.Errorf("Relay = %+v", cfg.Relay)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "notify.json", `{}`)); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := Load(writeFile(t, "bad.yaml", "notify:\n  reconnect_delay: soon\n")); err == nil {
		t.Error("expected error for bad duration")
	}
	_, err := Load(writeFile(t, "neg.yaml", "notify:\n  endpoint: \"\"\n  reconnect_delay: -1s\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"endpoint", "reconnect_delay"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FOODFLOW_WS_URL":          "http://override:8080/ws",
		"FOODFLOW_TOKEN_FILE":      "/tmp/tok.json",
		"FOODFLOW_RECONNECT_DELAY": "1s",
		"FOODFLOW_LOG_LEVEL":       "warn",
		"FOODFLOW_METRICS_ADDR":    ":2112",
		"FOODFLOW_RELAY_SECRET":    "k",
	}
	cfg := defaultConfig()
	if err := cfg.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}

	if cfg.Notify.Endpoint != "http://override:8080/ws" {
		t.Errorf("Endpoint = %q", cfg.Notify.Endpoint)
	}
	if cfg.Notify.TokenFile != "/tmp/tok.json" {
		t.Errorf("TokenFile = %q", cfg.Notify.TokenFile)
	}
	if cfg.Notify.ReconnectDelay.D() != time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.Notify.ReconnectDelay.D())
	}
	if cfg.Log.Level != "warn" || cfg.Metrics.Addr != ":2112" || cfg.Relay.Secret != "k" {
		t.Errorf("cfg = %+v", cfg)
	}

	bad := defaultConfig()
	if err := bad.applyEnv(func(k string) string {
		if k == "FOODFLOW_RECONNECT_DELAY" {
			return "later"
		}
		return ""
	}); err == nil {
		t.Error("expected error for bad FOODFLOW_RECONNECT_DELAY")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FOODFLOW_WS_URL", "https://env.example/ws")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Notify.Endpoint != "https://env.example/ws" {
		t.Errorf("Endpoint = %q", cfg.Notify.Endpoint)
	}
}

func TestLoadIgnoresDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FOODFLOW_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("FOODFLOW_LOG_LEVEL", "")
	os.Unsetenv("FOODFLOW_LOG_LEVEL")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info: Load must not read .env", cfg.Log.Level)
	}
	if _, ok := os.LookupEnv("FOODFLOW_LOG_LEVEL"); ok {
		t.Error("Load changed the process environment")
	}
}
