// Package config_test tests the configuration loading for the speech-service.
package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/book-expert/speech-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlData = `
[nats]
url = "nats://127.0.0.1:4222"
document_subject = "text.processed"
queue_group = "speech-workers"
object_store_bucket = "SPEECH_FILES"
job_timeout_seconds = 120

[redis]
addr = "127.0.0.1:6379"
db = 2

[http]
addr = ":9090"

[limits]
max_characters = 1000
cache_ttl_hours = 12

[document]
voice = "en-US-AriaNeural"
language = "en-US"
rate = "1.0"

[backends.openai]
enabled = true
model = "tts-1"

[backends.edge]
enabled = true
default_voice = "en-US-JennyNeural"

[backends.realistic]
enabled = false
base_url = "http://localhost:8000"
temperature = 0.7
timeout_seconds = 300

[whisper]
enabled = true
model = "whisper-1"

[status]
endpoint = "https://backend.example.com"
timeout_seconds = 5

[paths]
base_logs_dir = "/var/log/speech"
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "text.processed", cfg.NATS.DocumentSubject)
	assert.Equal(t, "SPEECH_FILES", cfg.NATS.ObjectStoreBucket)
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout())
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 1000, cfg.Limits.MaxCharacters)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 24*time.Hour, cfg.RateCounterTTL())
	assert.Equal(t, "en-US-AriaNeural", cfg.Document.Voice)
	assert.True(t, cfg.Backends.OpenAI.Enabled)
	assert.Equal(t, "tts-1", cfg.Backends.OpenAI.Model)
	assert.False(t, cfg.Backends.Google.Enabled)
	assert.Equal(t, "en-US-JennyNeural", cfg.Backends.Edge.DefaultVoice)
	assert.InEpsilon(t, 0.7, cfg.Backends.Realistic.Temperature, 0.001)
	assert.True(t, cfg.Whisper.Enabled)
	assert.Equal(t, "https://backend.example.com", cfg.Status.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.StatusTimeout())
	assert.Equal(t, "/var/log/speech", cfg.Paths.BaseLogsDir)
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Backends.Edge.Enabled = true

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50000, cfg.Limits.MaxCharacters)
	assert.Equal(t, 72*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 24*time.Hour, cfg.RateCounterTTL())
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout())
	assert.Equal(t, 10*time.Second, cfg.StatusTimeout())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "speech-workers", cfg.NATS.QueueGroup)
	assert.Equal(t, "SPEECH_FILES", cfg.NATS.ObjectStoreBucket)
	assert.Equal(t, os.TempDir(), cfg.Paths.BaseLogsDir)
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{name: "no nats", mutate: func(c *config.Config) { c.NATS.URL = "" }, want: config.ErrNATSURLEmpty},
		{name: "no redis", mutate: func(c *config.Config) { c.Redis.Addr = "" }, want: config.ErrRedisAddrEmpty},
		{name: "no backend", mutate: func(c *config.Config) { c.Backends.Edge.Enabled = false }, want: config.ErrNoBackendEnabled},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Config{}
			cfg.NATS.URL = "nats://localhost:4222"
			cfg.Redis.Addr = "localhost:6379"
			cfg.Backends.Edge.Enabled = true
			testCase.mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), testCase.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		config.EnvJWTSecret:     "secret",
		config.EnvOpenAIAPIKey:  "sk-test",
		config.EnvRedisPassword: "hunter2",
	}

	var cfg config.Config

	cfg.ApplyEnv(func(key string) string { return env[key] })

	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "sk-test", cfg.Backends.OpenAI.APIKey)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}
