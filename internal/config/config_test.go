package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chdirTemp keeps Load from picking up a developer's .env file.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "app")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
	require.Equal(t, 30*time.Minute, cfg.SessionTTL)
	require.Equal(t, 12, cfg.SessionMaxMessages)
	require.Equal(t, 5*time.Minute, cfg.SweepInterval)
	require.Equal(t, "fixed", cfg.RateLimitStrategy)
	require.Equal(t, 60*time.Second, cfg.RateLimitWindow)
	require.Equal(t, 20, cfg.RateLimitMax)
	require.Equal(t, 2000, cfg.MaxMessageLength)
	require.Equal(t, 20*time.Second, cfg.LLMTimeout)
	require.Equal(t, StoreMemory, cfg.StoreBackend)
	require.False(t, cfg.TrustProxy)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("APP_PORT", "9000")
	t.Setenv("SESSION_MAX_MESSAGES", "20")
	t.Setenv("RATE_LIMIT_STRATEGY", "TOKEN")
	t.Setenv("LLM_TIMEOUT_SECONDS", "5")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DB_DATABASE", "support")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Addr())
	require.Equal(t, 20, cfg.SessionMaxMessages)
	require.Equal(t, "token", cfg.RateLimitStrategy)
	require.Equal(t, 5*time.Second, cfg.LLMTimeout)
	require.Contains(t, cfg.DSN(), "dbname=support")
	require.True(t, cfg.TrustProxy)
	require.NoError(t, cfg.Validate())
}

func TestLoad_DotEnvFile(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, os.WriteFile(".env", []byte("OPENAI_MODEL=gpt-dotenv\nKAFKA_TOPIC=events\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("OPENAI_MODEL")
		_ = os.Unsetenv("KAFKA_TOPIC")
	})

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "gpt-dotenv", cfg.OpenAIModel)
	require.Equal(t, "events", cfg.KafkaTopic)
}

func TestLoad_MalformedNumber(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RATE_LIMIT_MAX", "twenty")
	_, err := Load()
	require.ErrorContains(t, err, "RATE_LIMIT_MAX")

	t.Setenv("RATE_LIMIT_MAX", "")
	t.Setenv("TRUST_PROXY", "maybe")
	_, err = Load()
	require.ErrorContains(t, err, "TRUST_PROXY")
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	base, err := Load()
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"odd cap":          func(c *Config) { c.SessionMaxMessages = 11 },
		"zero ttl":         func(c *Config) { c.SessionTTL = 0 },
		"bad strategy":     func(c *Config) { c.RateLimitStrategy = "leaky" },
		"zero limit":       func(c *Config) { c.RateLimitMax = 0 },
		"dynamo no table":  func(c *Config) { c.StoreBackend = StoreDynamoDB },
		"unknown store":    func(c *Config) { c.StoreBackend = "mongo" },
		"prod without jwt": func(c *Config) { c.AppEnv = "production"; c.StoreBackend = StoreDynamoDB; c.DynamoDBTable = "t" },
		"prod memory":      func(c *Config) { c.AppEnv = "production"; c.JWTSecret = "s" },
		"no timeout":       func(c *Config) { c.LLMTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
