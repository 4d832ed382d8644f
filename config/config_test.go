package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = strings.Repeat("s", 32)

func baseEnv() map[string]string {
	return map[string]string{
		"BITBUCKET_CONSUMER_KEY":    "key",
		"BITBUCKET_CONSUMER_SECRET": "secret",
		"SESSION_SECRET":            secret,
	}
}

func TestLoadFromMap_Defaults(t *testing.T) {
	cfg, err := LoadFromMap(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, "socialauth", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "key", cfg.Bitbucket.ConsumerKey)
	assert.Empty(t, cfg.Bitbucket.Scopes)
	assert.Equal(t, "sso_session", cfg.Session.CookieName)
	assert.True(t, cfg.Session.Secure)
	assert.Equal(t, 10*time.Minute, cfg.Session.StateTTL)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "sso.logins", cfg.Kafka.Topic)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.OTel.Enabled)
	assert.Equal(t, "http://localhost:8080/auth/bitbucket/callback", cfg.CallbackURL())
}

func TestLoadFromMap_Overrides(t *testing.T) {
	environment := baseEnv()
	environment["BITBUCKET_SCOPES"] = "account,email"
	environment["BITBUCKET_REDIRECT_URL"] = "https://login.example.com/cb"
	environment["KAFKA_BROKERS"] = "k1:9092,k2:9092"
	environment["REDIS_ADDR"] = "redis:6379"
	environment["SESSION_ALLOWED_REDIRECT_HOSTS"] = "app.example.com,www.example.com"
	environment["LOG_FORMAT"] = "text"
	environment["OTEL_ENABLED"] = "true"
	environment["PROVIDER_TIMEOUT"] = "3s"

	cfg, err := LoadFromMap(environment)
	require.NoError(t, err)

	assert.Equal(t, []string{"account", "email"}, cfg.Bitbucket.Scopes)
	assert.Equal(t, "https://login.example.com/cb", cfg.CallbackURL())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"app.example.com", "www.example.com"}, cfg.Session.AllowedRedirectHosts)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.OTel.Enabled)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
}

func TestLoadFromMap_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantErr string
	}{
		{"missing consumer key", func(m map[string]string) { delete(m, "BITBUCKET_CONSUMER_KEY") }, "BITBUCKET_CONSUMER_KEY"},
		{"missing session secret", func(m map[string]string) { delete(m, "SESSION_SECRET") }, "SESSION_SECRET"},
		{"short session secret", func(m map[string]string) { m["SESSION_SECRET"] = "short" }, "SESSION_SECRET"},
		{"short previous secret", func(m map[string]string) { m["SESSION_PREVIOUS_SECRETS"] = "old" }, "SESSION_PREVIOUS_SECRETS"},
		{"bad duration", func(m map[string]string) { m["PROVIDER_TIMEOUT"] = "soon" }, "soon"},
		{"relative public url", func(m map[string]string) { m["PUBLIC_URL"] = "/app" }, "PUBLIC_URL"},
		{"bad log level", func(m map[string]string) { m["LOG_LEVEL"] = "loud" }, "LOG_LEVEL"},
		{"bad log format", func(m map[string]string) { m["LOG_FORMAT"] = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environment := baseEnv()
			tt.mutate(environment)

			_, err := LoadFromMap(environment)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
