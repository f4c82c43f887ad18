package bloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

const (
	DefaultEnvironment   = "production"
	DefaultSource        = "go"
	DefaultMaxBufferSize = 20
)

var (
	ErrMissingEndpoint   = errors.New("endpoint is required")
	ErrMissingProjectKey = errors.New("project_key is required")
)

// Config is the client configuration. Zero values fall back to the defaults
// documented on each field, so a literal with only Endpoint and ProjectKey
// is valid.
type Config struct {
	// Endpoint is the ingestion base URL. A trailing slash is stripped.
	Endpoint string `env:"BLOOP_ENDPOINT"`
	// ProjectKey identifies the project and keys the request signature.
	ProjectKey string `env:"BLOOP_PROJECT_KEY"`
	// Environment defaults to "production".
	Environment string `env:"BLOOP_ENVIRONMENT,default=production"`
	Release     string `env:"BLOOP_RELEASE"`
	// Source defaults to "go".
	Source string `env:"BLOOP_SOURCE,default=go"`
	// MaxBufferSize applies to each buffer separately. Defaults to 20.
	MaxBufferSize int `env:"BLOOP_MAX_BUFFER_SIZE,default=20"`
	// DisableTracing turns SendTrace into a no-op.
	DisableTracing bool `env:"BLOOP_DISABLE_TRACING,default=false"`
	// MaxInFlight caps concurrent background sends. Defaults to 4.
	MaxInFlight int `env:"BLOOP_MAX_IN_FLIGHT,default=4"`
	// MaxPendingBatches caps background batches running or waiting for a
	// send slot. Batches beyond it are dropped and reported. Defaults to
	// 1024.
	MaxPendingBatches int `env:"BLOOP_MAX_PENDING_BATCHES,default=1024"`
	// DispatchRate paces background sends in batches per second. Zero
	// leaves them unpaced.
	DispatchRate float64 `env:"BLOOP_DISPATCH_RATE,default=0"`
}

// LoadConfig reads the BLOOP_* environment variables.
func LoadConfig(ctx context.Context) (Config, error) {
	return loadConfig(ctx, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, fmt.Errorf("load env config: %w", err)
	}
	return cfg, nil
}

// validate checks required fields and fills defaults.
func (c Config) validate() (Config, error) {
	if strings.TrimSpace(c.Endpoint) == "" {
		return Config{}, ErrMissingEndpoint
	}
	if c.ProjectKey == "" {
		return Config{}, ErrMissingProjectKey
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = DefaultMaxBufferSize
	}
	return c, nil
}

func WriteHelp(w io.Writer) {
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  BLOOP_ENDPOINT=")
	fmt.Fprintln(w, "  BLOOP_PROJECT_KEY=")
	fmt.Fprintln(w, "  BLOOP_ENVIRONMENT=production")
	fmt.Fprintln(w, "  BLOOP_RELEASE=")
	fmt.Fprintln(w, "  BLOOP_SOURCE=go")
	fmt.Fprintln(w, "  BLOOP_MAX_BUFFER_SIZE=20")
	fmt.Fprintln(w, "  BLOOP_DISABLE_TRACING=false")
	fmt.Fprintln(w, "  BLOOP_MAX_IN_FLIGHT=4")
	fmt.Fprintln(w, "  BLOOP_MAX_PENDING_BATCHES=1024")
	fmt.Fprintln(w, "  BLOOP_DISPATCH_RATE=0")
}
