package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("POLL_TIMEOUT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := LoadConfig()

	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "/api/smsman", cfg.Backend.APIPrefix)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 300*time.Second, cfg.Poll.Timeout)
	assert.False(t, cfg.KafkaEnabled())
	assert.Same(t, cfg, Get())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://otp.example.com/")
	t.Setenv("POLL_INTERVAL", "2")
	t.Setenv("POLL_TIMEOUT", "1m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SERVER_PORT", "9999")

	cfg := LoadConfig()

	assert.Equal(t, "https://otp.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, time.Minute, cfg.Poll.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "127.0.0.1:9999", cfg.GetServerAddress())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Backend: BackendConfig{BaseURL: "http://b"},
			Poll:    PollConfig{Interval: 10 * time.Second, Timeout: 300 * time.Second},
			Auth:    AuthConfig{TokenStore: "memory"},
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Poll.Interval = cfg.Poll.Timeout
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Auth.TokenStore = "file"
	assert.ErrorContains(t, cfg.Validate(), "TOKEN_PASSPHRASE")

	cfg = base()
	cfg.Auth.TokenStore = "redis"
	assert.ErrorContains(t, cfg.Validate(), "REDIS_URL")

	cfg = base()
	cfg.Auth.TokenStore = "vault"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.EnableTLS = true
	cfg.Server.CertFile = "cert.pem"
	assert.Error(t, cfg.Validate())
}
