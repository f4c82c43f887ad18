package bloop

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sethvargo/go-envconfig"
)

func TestNewRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := New(Config{ProjectKey: "key"})
	if !errors.Is(err, ErrMissingEndpoint) || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("err = %v, want missing endpoint", err)
	}
}

func TestNewRequiresProjectKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Endpoint: "http://localhost"})
	if !errors.Is(err, ErrMissingProjectKey) || !strings.Contains(err.Error(), "project_key") {
		t.Fatalf("err = %v, want missing project_key", err)
	}
}

func TestNewStripsTrailingSlashAndDefaults(t *testing.T) {
	t.Parallel()

	c, err := New(Config{Endpoint: "http://localhost:3000/", ProjectKey: "key"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Endpoint() != "http://localhost:3000" {
		t.Fatalf("endpoint = %q", c.Endpoint())
	}
	if c.cfg.Environment != "production" || c.cfg.Source != "go" || c.cfg.MaxBufferSize != 20 {
		t.Fatalf("defaults not applied: %+v", c.cfg)
	}
	if !c.TracingEnabled() {
		t.Fatalf("tracing should default to enabled")
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(context.Background(), envconfig.MapLookuper(map[string]string{
		"BLOOP_ENDPOINT":        "https://bloop.example.com/",
		"BLOOP_PROJECT_KEY":     "pk",
		"BLOOP_RELEASE":         "1.0.0",
		"BLOOP_MAX_BUFFER_SIZE": "5",
		"BLOOP_DISABLE_TRACING": "true",
	}))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Environment != "production" || cfg.Source != "go" || cfg.MaxInFlight != 4 || cfg.MaxPendingBatches != 1024 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Release != "1.0.0" || cfg.MaxBufferSize != 5 || !cfg.DisableTracing {
		t.Fatalf("env values not applied: %+v", cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.TracingEnabled() {
		t.Fatalf("tracing should be disabled")
	}
}

func TestLoadConfigRejectsBadNumber(t *testing.T) {
	t.Parallel()

	_, err := loadConfig(context.Background(), envconfig.MapLookuper(map[string]string{
		"BLOOP_MAX_BUFFER_SIZE": "lots",
	}))
	if err == nil {
		t.Fatalf("expected parse error")
	}
}
