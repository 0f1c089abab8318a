// Package config loads service configuration. Values are layered: built-in
// defaults, then an optional YAML file, then environment variables (a .env
// file is read first when present).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/joelkehle/sales-proposal-agency/internal/telemetry"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Storage   StorageConfig    `yaml:"storage"`
	Bus       BusConfig        `yaml:"bus"`
	NATS      NATSConfig       `yaml:"nats"`
	LLM       LLMConfig        `yaml:"llm"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Log       LogConfig        `yaml:"log"`
	Render    RenderConfig     `yaml:"render"`
	// Pricing overlays proposal.DefaultConfig(); keys left out keep their defaults.
	Pricing proposal.Config `yaml:"pricing"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	// JWTSecret enables bearer-token auth on /v1 routes when set.
	JWTSecret string `yaml:"-"`
}

type StorageConfig struct {
	// DSN is a SQLite file path or a postgres:// URL. Empty disables history.
	DSN string `yaml:"dsn"`
}

type BusConfig struct {
	URL               string        `yaml:"url"`
	AgentID           string        `yaml:"agent_id"`
	Secret            string        `yaml:"-"`
	PollWait          time.Duration `yaml:"poll_wait"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type LLMConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RenderConfig struct {
	ChromePath string `yaml:"chrome_path"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8095", ShutdownTimeout: 15 * time.Second, MaxBodyBytes: 1 << 20},
		Storage: StorageConfig{
			DSN: "proposals.db",
		},
		Bus: BusConfig{
			URL:               "http://localhost:8080",
			AgentID:           "sales-proposal",
			PollWait:          5 * time.Second,
			HeartbeatInterval: 60 * time.Second,
			MaxConcurrent:     4,
		},
		NATS:    NATSConfig{Subject: "proposals.generated"},
		LLM:     LLMConfig{Model: proposal.DefaultLLMModel},
		Log:     LogConfig{Level: "info", Format: "json"},
		Pricing: proposal.DefaultConfig(),
	}
}

// Load applies path (optional) and the environment on top of the defaults.
// A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	return LoadWithEnv(path, os.Getenv)
}

func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	str(&c.Server.Addr, "PROPOSAL_ADDR")
	str(&c.Server.JWTSecret, "PROPOSAL_JWT_SECRET")
	str(&c.Storage.DSN, "PROPOSAL_DB_DSN", "DATABASE_URL")
	str(&c.Bus.URL, "BUS_URL")
	str(&c.Bus.AgentID, "SALES_PROPOSAL_AGENT_ID")
	str(&c.Bus.Secret, "SALES_PROPOSAL_AGENT_SECRET")
	str(&c.NATS.URL, "NATS_URL")
	str(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	str(&c.LLM.Model, "PROPOSAL_LLM_MODEL")
	str(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")
	str(&c.Render.ChromePath, "CHROME_PATH")
	if v := strings.TrimSpace(getenv("PROPOSAL_LLM_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return proposal.NewConfigurationError("PROPOSAL_LLM_ENABLED", "must be a boolean")
		}
		c.LLM.Enabled = b
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, proposal.NewConfigurationError("server.addr", "is required"))
	}
	if s := c.Server.JWTSecret; s != "" && len(s) < 16 {
		errs = append(errs, proposal.NewConfigurationError("server.jwt_secret", "PROPOSAL_JWT_SECRET must be at least 16 characters"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, proposal.NewConfigurationError("server.max_body_bytes", "must be positive"))
	}
	if c.Bus.PollWait <= 0 || c.Bus.HeartbeatInterval <= 0 {
		errs = append(errs, proposal.NewConfigurationError("bus", "poll_wait and heartbeat_interval must be positive"))
	}
	if c.Bus.MaxConcurrent <= 0 {
		errs = append(errs, proposal.NewConfigurationError("bus.max_concurrent", "must be positive"))
	}
	if c.LLM.Enabled && strings.TrimSpace(c.LLM.APIKey) == "" {
		errs = append(errs, proposal.NewConfigurationError("llm.api_key", "ANTHROPIC_API_KEY is required when llm.enabled is set"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, proposal.NewConfigurationError("log.format", fmt.Sprintf("unknown format %q", c.Log.Format)))
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, proposal.NewConfigurationError("telemetry.sample_ratio", "must be within [0,1]"))
	}
	if err := c.Pricing.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, proposal.NewConfigurationError("log.level", fmt.Sprintf("unknown level %q", s))
	}
	return l, nil
}
