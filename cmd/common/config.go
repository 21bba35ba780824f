// Package common holds configuration and helpers shared by the maskagg commands.
package common

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/flashbots/maskagg/protocol"
	"github.com/flashbots/maskagg/report"
	"github.com/flashbots/maskagg/services"
	"gopkg.in/yaml.v3"
)

// Config is the configuration file of the server command.
//
//	http_addr: ":8080"
//	log_format: json
//	log_level: info
//	allowed_origins: ["https://dashboard.example"]
//	postgres:
//	  host: localhost
//	  port: 5432
//	  user: maskagg
//	  database: maskagg
//	  sslmode: disable
//	api:
//	  max_members: 10000
//	  run_timeout: 1m
type Config struct {
	HTTPAddr       string   `yaml:"http_addr"`
	LogFormat      string   `yaml:"log_format"`
	LogLevel       string   `yaml:"log_level"`
	EnablePprof    bool     `yaml:"enable_pprof"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	DrainDuration            time.Duration `yaml:"drain_duration"`
	GracefulShutdownDuration time.Duration `yaml:"graceful_shutdown_duration"`

	// Postgres is used for reports when Host is set, otherwise reports are
	// kept in memory.
	Postgres report.PostgresConfig    `yaml:"postgres"`
	API      services.SessionAPIConfig `yaml:"api"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:                 ":8080",
		LogFormat:                "text",
		LogLevel:                 "info",
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		Postgres: report.PostgresConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		API: services.DefaultSessionAPIConfig(),
	}
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger. Format is "text" or "json".
func NewLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// NewReportStore opens the configured report store. The returned close
// function is never nil.
func NewReportStore(cfg *Config) (report.Store, func() error, error) {
	if cfg.Postgres.Host == "" {
		return report.NewInMemoryStore(), func() error { return nil }, nil
	}

	store, err := report.NewPostgresStore(&cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("opening postgres store: %w", err)
	}
	return store, store.Close, nil
}

// LoadSessionConfig reads a YAML or JSON session configuration file.
func LoadSessionConfig(path string) (*protocol.SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session config: %w", err)
	}
	return services.ParseSessionConfig(data)
}
