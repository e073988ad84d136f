package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  env: test\n")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Env != "test" || cfg.App.Name != "cropclaim" {
		t.Fatalf("app = %+v", cfg.App)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Cache.Driver != "kv" || cfg.Lock.Driver != "local" {
		t.Fatalf("drivers = %s/%s/%s", cfg.Database.Driver, cfg.Cache.Driver, cfg.Lock.Driver)
	}
	if cfg.Assessment.Timeout != 24*time.Hour || cfg.Lock.TTL != time.Minute {
		t.Fatalf("durations = %s/%s", cfg.Assessment.Timeout, cfg.Lock.TTL)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "intake:\n  allow_overlapping_claims: false\nhttp:\n  addr: \":9000\"\n")
	t.Setenv("CC_INTAKE_ALLOW_OVERLAPPING_CLAIMS", "true")
	t.Setenv("CC_HTTP_ADDR", ":9100")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Intake.AllowOverlappingClaims {
		t.Fatalf("allow_overlapping_claims not overridden by env")
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("http.addr = %q, want :9100", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsInconsistentDrivers(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown database", body: "database:\n  driver: postgres\n", want: "database.driver"},
		{name: "redis lock without addr", body: "lock:\n  driver: redis\n", want: "redis.addr"},
		{name: "nats without url", body: "assessment:\n  dispatcher: nats\n", want: "assessment.nats_url"},
		{name: "http gateway without url", body: "payment:\n  gateway: http\n", want: "payment.http_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
