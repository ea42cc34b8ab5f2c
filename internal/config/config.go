// Package config provides the configuration structure for the speech-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Environment variables that carry secrets.
const (
	EnvJWTSecret     = "JWT_SECRET"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvRedisPassword = "REDIS_PASSWORD"
)

const (
	defaultMaxCharacters   = 50000
	defaultCacheTTL        = 72 * time.Hour
	defaultRateCounterTTL  = 24 * time.Hour
	defaultHTTPAddr        = ":8080"
	defaultDocumentSubject = "text.processed"
	defaultQueueGroup      = "speech-workers"
	defaultBucket          = "SPEECH_FILES"
	defaultStatusTimeout   = 10 * time.Second
	defaultJobTimeout      = 10 * time.Minute
)

var (
	// ErrNATSURLEmpty is returned when no NATS url is configured.
	ErrNATSURLEmpty = errors.New("nats url cannot be empty")
	// ErrRedisAddrEmpty is returned when no redis address is configured.
	ErrRedisAddrEmpty = errors.New("redis address cannot be empty")
	// ErrNoBackendEnabled is returned when every backend is disabled.
	ErrNoBackendEnabled = errors.New("at least one backend must be enabled")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL               string `toml:"url"`
	DocumentSubject   string `toml:"document_subject"`
	QueueGroup        string `toml:"queue_group"`
	ObjectStoreBucket string `toml:"object_store_bucket"`
	JobTimeoutSeconds int    `toml:"job_timeout_seconds"`
}

// RedisConfig holds the ephemeral store connection.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Username string `toml:"username"`
	DB       int    `toml:"db"`
	UseTLS   bool   `toml:"use_tls"`
	Password string `toml:"-"`
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// LimitsConfig holds cache and rate limit settings.
type LimitsConfig struct {
	MaxCharacters       int `toml:"max_characters"`
	CacheTTLHours       int `toml:"cache_ttl_hours"`
	RateCounterTTLHours int `toml:"rate_counter_ttl_hours"`
}

// DocumentConfig holds the voice settings used for documents received from NATS.
type DocumentConfig struct {
	Voice    string `toml:"voice"`
	Language string `toml:"language"`
	Rate     string `toml:"rate"`
}

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"-"`
}

// GoogleConfig configures the Google backend. Credentials come from the
// application default chain.
type GoogleConfig struct {
	Enabled bool `toml:"enabled"`
}

// EdgeConfig configures the Edge backend.
type EdgeConfig struct {
	Enabled      bool   `toml:"enabled"`
	DefaultVoice string `toml:"default_voice"`
}

// RealisticConfig configures the realistic voice backend.
type RealisticConfig struct {
	Enabled        bool    `toml:"enabled"`
	BaseURL        string  `toml:"base_url"`
	SpeakerRefPath string  `toml:"speaker_ref_path"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// BackendsConfig groups the backend sections.
type BackendsConfig struct {
	OpenAI    OpenAIConfig    `toml:"openai"`
	Google    GoogleConfig    `toml:"google"`
	Edge      EdgeConfig      `toml:"edge"`
	Realistic RealisticConfig `toml:"realistic"`
}

// WhisperConfig configures speech mark alignment.
type WhisperConfig struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// StatusConfig configures the job status endpoint.
type StatusConfig struct {
	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// AuthConfig holds the token secret.
type AuthConfig struct {
	JWTSecret string `toml:"-"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	Redis    RedisConfig    `toml:"redis"`
	HTTP     HTTPConfig     `toml:"http"`
	Limits   LimitsConfig   `toml:"limits"`
	Document DocumentConfig `toml:"document"`
	Backends BackendsConfig `toml:"backends"`
	Whisper  WhisperConfig  `toml:"whisper"`
	Status   StatusConfig   `toml:"status"`
	Auth     AuthConfig     `toml:"-"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the speech-service, reads secrets from the
// environment and validates the result.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnv copies secrets from the environment lookup into the config.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.Auth.JWTSecret = getenv(EnvJWTSecret)
	c.Backends.OpenAI.APIKey = getenv(EnvOpenAIAPIKey)
	c.Redis.Password = getenv(EnvRedisPassword)
}

// Validate fills defaults and rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return ErrNATSURLEmpty
	}

	if c.Redis.Addr == "" {
		return ErrRedisAddrEmpty
	}

	b := c.Backends
	if !b.OpenAI.Enabled && !b.Google.Enabled && !b.Edge.Enabled && !b.Realistic.Enabled {
		return ErrNoBackendEnabled
	}

	setDefault(&c.NATS.DocumentSubject, defaultDocumentSubject)
	setDefault(&c.NATS.QueueGroup, defaultQueueGroup)
	setDefault(&c.NATS.ObjectStoreBucket, defaultBucket)
	setDefault(&c.HTTP.Addr, defaultHTTPAddr)
	setDefault(&c.Paths.BaseLogsDir, os.TempDir())

	if c.Limits.MaxCharacters <= 0 {
		c.Limits.MaxCharacters = defaultMaxCharacters
	}

	return nil
}

// CacheTTL returns the ephemeral cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return hoursOr(c.Limits.CacheTTLHours, defaultCacheTTL)
}

// RateCounterTTL returns the rate counter lifetime.
func (c *Config) RateCounterTTL() time.Duration {
	return hoursOr(c.Limits.RateCounterTTLHours, defaultRateCounterTTL)
}

// JobTimeout returns the per-document deadline for NATS jobs.
func (c *Config) JobTimeout() time.Duration {
	return secondsOr(c.NATS.JobTimeoutSeconds, defaultJobTimeout)
}

// StatusTimeout returns the status report request timeout.
func (c *Config) StatusTimeout() time.Duration {
	return secondsOr(c.Status.TimeoutSeconds, defaultStatusTimeout)
}

// Seconds converts a configured timeout, zero meaning "use the client default".
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func hoursOr(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}

	return time.Duration(value) * time.Hour
}

func secondsOr(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}

	return Seconds(value)
}
