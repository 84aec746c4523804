package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Google   GoogleConfig   `mapstructure:"google"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Render   RenderConfig   `mapstructure:"render"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN              string        `mapstructure:"dsn" validate:"required"`
	MaxConns         int32         `mapstructure:"max_conns" validate:"gte=1"`
	MinConns         int32         `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	Migrate          bool          `mapstructure:"migrate"`
}

// GoogleConfig holds the OAuth client used to refresh mailbox tokens.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	TokenURL     string `mapstructure:"token_url" validate:"omitempty,url"`
	GmailBaseURL string `mapstructure:"gmail_base_url" validate:"omitempty,url"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	APIKey           string        `mapstructure:"api_key" validate:"required"`
	BaseURL          string        `mapstructure:"base_url" validate:"omitempty,url"`
	Model            string        `mapstructure:"model" validate:"required"`
	Temperature      float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens        int           `mapstructure:"max_tokens" validate:"gte=1"`
	Timeout          time.Duration `mapstructure:"timeout"`
	StructuredOutput bool          `mapstructure:"structured_output"`
}

// RenderConfig holds PDF rasterization settings.
type RenderConfig struct {
	Scale     float64 `mapstructure:"scale" validate:"gt=0,lte=10"`
	MaxPixels int     `mapstructure:"max_pixels" validate:"gte=0"`
	Pdftoppm  string  `mapstructure:"pdftoppm"`
	Pdfinfo   string  `mapstructure:"pdfinfo"`
}

// IngestConfig holds per-user inbox scan settings.
type IngestConfig struct {
	QueryWindow    string        `mapstructure:"query_window" validate:"required"`
	MaxResults     int64         `mapstructure:"max_results" validate:"gte=1,lte=500"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	TrackProcessed bool          `mapstructure:"track_processed"`
}

// PollerConfig holds loop settings.
type PollerConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"gt=0"`
	Workers     int           `mapstructure:"workers" validate:"gte=1"`
	UserTimeout time.Duration `mapstructure:"user_timeout"`
}

// RedisConfig enables the distributed per-user lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// TracingConfig selects where spans go. "none" leaves the no-op provider in place.
type TracingConfig struct {
	Exporter    string `mapstructure:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string `mapstructure:"endpoint" validate:"required_if=Exporter otlp"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// EnvPrefix is prepended to every environment override, e.g. INBOX_DATABASE_DSN.
const EnvPrefix = "INBOX"

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)
	v.SetDefault("database.statement_timeout", 0)
	v.SetDefault("database.migrate", true)

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.token_url", "")
	v.SetDefault("google.gmail_base_url", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 300)
	v.SetDefault("llm.timeout", 45*time.Second)
	v.SetDefault("llm.structured_output", true)

	v.SetDefault("render.scale", 2.5)
	v.SetDefault("render.max_pixels", 2400)
	v.SetDefault("render.pdftoppm", "pdftoppm")
	v.SetDefault("render.pdfinfo", "pdfinfo")

	v.SetDefault("ingest.query_window", "1d")
	v.SetDefault("ingest.max_results", 10)
	v.SetDefault("ingest.call_timeout", 60*time.Second)
	v.SetDefault("ingest.track_processed", false)

	v.SetDefault("poller.interval", 2*time.Minute)
	v.SetDefault("poller.workers", 1)
	v.SetDefault("poller.user_timeout", 10*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 15*time.Minute)

	v.SetDefault("server.grpc_addr", ":8090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "inbox-poller")
}

// LoadConfig reads defaults, an optional YAML file named by INBOX_CONFIG, and
// INBOX_* environment overrides, in that order of precedence.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ConfigError(fmt.Sprintf("read %s", path), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, ConfigError("unmarshal config", err)
	}
	return &c, nil
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return ConfigError("invalid configuration", err)
	}
	return nil
}

// ValidateStore checks only what the read-only tools need.
func (c *Config) ValidateStore() error {
	if err := ValidateStruct(&c.Database); err != nil {
		return ConfigError("invalid database configuration", err)
	}
	return nil
}
