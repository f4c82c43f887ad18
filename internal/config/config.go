package config

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/pflag"
)

// Config drives the development receiver.
type Config struct {
	Addr                  string        `env:"BLOOP_RECEIVER_ADDR,default=:8787"`
	DBPath                string        `env:"BLOOP_RECEIVER_DB_PATH,default=./bloop-receiver.db"`
	LogLevel              string        `env:"BLOOP_RECEIVER_LOG_LEVEL,default=info"`
	LogFormat             string        `env:"BLOOP_RECEIVER_LOG_FORMAT,default=json"`
	ProjectKeys           []string      `env:"BLOOP_RECEIVER_PROJECT_KEYS"`
	MaxBodyBytes          int64         `env:"BLOOP_RECEIVER_MAX_BODY_BYTES,default=5242880"`
	MaxTextBytes          int           `env:"BLOOP_RECEIVER_MAX_TEXT_BYTES,default=16384"`
	RetentionDays         int           `env:"BLOOP_RECEIVER_RETENTION_DAYS,default=3"`
	CleanupInterval       time.Duration `env:"BLOOP_RECEIVER_CLEANUP_INTERVAL,default=5m"`
	WALCheckpointInterval time.Duration `env:"BLOOP_RECEIVER_WAL_CHECKPOINT_INTERVAL,default=10m"`
	WALRestartThresholdB  int64         `env:"BLOOP_RECEIVER_WAL_RESTART_THRESHOLD_BYTES,default=52428800"`
}

func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	return &cfg, nil
}

// BindFlags registers command-line overrides for the most common settings.
// Flags left unset keep the environment values.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.StringVar(&c.DBPath, "db-path", c.DBPath, "sqlite database path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (json, text)")
	fs.StringSliceVar(&c.ProjectKeys, "project-key", c.ProjectKeys, "accepted project key (repeatable; empty accepts any)")
	fs.IntVar(&c.RetentionDays, "retention-days", c.RetentionDays, "days to keep received records")
}

func WriteHelp(w io.Writer, version string) {
	fmt.Fprintf(w, "bloop-receiver %s\n\n", version)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_ADDR=:8787")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_DB_PATH=./bloop-receiver.db")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_LOG_LEVEL=info")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_LOG_FORMAT=json")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_PROJECT_KEYS=")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_MAX_BODY_BYTES=5242880")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_MAX_TEXT_BYTES=16384")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_RETENTION_DAYS=3")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_CLEANUP_INTERVAL=5m")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_WAL_CHECKPOINT_INTERVAL=10m")
	fmt.Fprintln(w, "  BLOOP_RECEIVER_WAL_RESTART_THRESHOLD_BYTES=52428800")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
}
