package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a new FlagSet for isolated tests
func newTestFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DefineFlags(flags)
	return flags
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	// --- Test Case 1: Load from default config file ---
	t.Run("loads from default config", func(t *testing.T) {
		t.Setenv("TAMBAL_PROVIDER_APIKEY", "sk-test")
		flags := newTestFlagSet()
		cfg, err := LoadAndValidate(flags)

		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:11823", cfg.Server.Address)
		assert.Equal(t, "openai", cfg.Provider.Name)
		assert.Len(t, cfg.Provider.Models, 3)
		assert.Equal(t, 120*time.Second, cfg.Provider.Timeout)
		assert.Equal(t, 2*time.Second, cfg.Provider.RateLimitDelay)
		assert.Equal(t, "data/tambal.db", cfg.Store.Path)
		assert.Equal(t, time.Hour, cfg.Store.PruneInterval)
		assert.Equal(t, 1000, cfg.Session.MaxSessions)
		assert.Equal(t, 4, cfg.Session.MaxExchanges)
		assert.Equal(t, 1500, cfg.Session.MaxMessageRunes)
		assert.Equal(t, 8192, cfg.Provider.Options.MaxTokens)
		require.NotNil(t, cfg.Provider.Options.Temperature)
		assert.InDelta(t, 0.3, *cfg.Provider.Options.Temperature, 1e-6)
		assert.False(t, cfg.Server.Debug)
		assert.False(t, cfg.Bot.Enable)
	})

	// --- Test Case 2: Flag overrides config file ---
	t.Run("flag overrides config file", func(t *testing.T) {
		flags := newTestFlagSet()
		require.NoError(t, flags.Parse([]string{
			"--addr", "localhost:9999",
			"--debug=true",
			"--p_name", "ollama",
			"--p_models", "qwen3:1.7b,llama3.2",
		}))
		cfg, err := LoadAndValidate(flags)

		require.NoError(t, err)
		assert.Equal(t, "localhost:9999", cfg.Server.Address)
		assert.True(t, cfg.Server.Debug)
		assert.Equal(t, "ollama", cfg.Provider.Name)
		assert.Equal(t, []string{"qwen3:1.7b", "llama3.2"}, cfg.Provider.Models)
	})

	// --- Test Case 3: Environment variable overrides config file ---
	t.Run("env var overrides config file", func(t *testing.T) {
		t.Setenv("TAMBAL_PROVIDER_NAME", "genai")
		t.Setenv("TAMBAL_SERVER_DEBUG", "true")
		t.Setenv("TAMBAL_PROVIDER_APIKEY", "apikey_value")
		t.Setenv("TAMBAL_STORE_RETENTION", "720h")

		flags := newTestFlagSet()
		cfg, err := LoadAndValidate(flags)

		require.NoError(t, err)
		assert.Equal(t, "genai", cfg.Provider.Name)
		assert.Equal(t, "apikey_value", cfg.Provider.ApiKey)
		assert.True(t, cfg.Server.Debug)
		assert.Equal(t, 720*time.Hour, cfg.Store.Retention)
	})

	// --- Test Case 4: Flag overrides both env var and config file ---
	t.Run("flag overrides env var and config", func(t *testing.T) {
		t.Setenv("TAMBAL_PROVIDER_APIKEY", "from-env")
		t.Setenv("TAMBAL_SERVER_ADDRESS", "0.0.0.0:8080")

		flags := newTestFlagSet()
		require.NoError(t, flags.Parse([]string{"--p_key", "from-flag"}))

		cfg, err := LoadAndValidate(flags)

		require.NoError(t, err)
		assert.Equal(t, "from-flag", cfg.Provider.ApiKey)
		assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address) // From env var (flag not set)
	})

	// --- Test Case 5: external file merges over the embedded default ---
	t.Run("config file overrides embedded default", func(t *testing.T) {
		path := writeConfigFile(t, `
provider:
  name: "ollama"
  models: ["qwen3:1.7b"]
store:
  path: "/tmp/other.db"
`)
		flags := newTestFlagSet()
		require.NoError(t, flags.Parse([]string{"--config", path}))

		cfg, err := LoadAndValidate(flags)
		require.NoError(t, err)
		assert.Equal(t, "ollama", cfg.Provider.Name)
		assert.Equal(t, []string{"qwen3:1.7b"}, cfg.Provider.Models)
		assert.Equal(t, "/tmp/other.db", cfg.Store.Path)
		// untouched keys keep the embedded default
		assert.Equal(t, "127.0.0.1:11823", cfg.Server.Address)
	})

	// --- Test Case 6: Validation error for missing required field ---
	t.Run("validation fails without api key", func(t *testing.T) {
		flags := newTestFlagSet()
		_, err := LoadAndValidate(flags)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires an api key")
	})

	t.Run("missing config file", func(t *testing.T) {
		flags := newTestFlagSet()
		require.NoError(t, flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))
		_, err := LoadAndValidate(flags)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Address: "127.0.0.1:1"},
			Provider: Provider{Name: "ollama", Models: []string{"m"}, Timeout: time.Second},
			Store:    StoreConfig{Path: "x.db"},
		}
	}

	testCases := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad address", func(c *Config) { c.Server.Address = "localhost" }, "invalid server address"},
		{"unknown provider", func(c *Config) { c.Provider.Name = "bogus" }, "unknown provider"},
		{"no provider", func(c *Config) { c.Provider.Name = "" }, "provider name is required"},
		{"no models", func(c *Config) { c.Provider.Models = nil }, "at least one provider model"},
		{"blank model", func(c *Config) { c.Provider.Models = []string{" "} }, "model cannot be empty"},
		{"no timeout", func(c *Config) { c.Provider.Timeout = 0 }, "timeout"},
		{"no store", func(c *Config) { c.Store.Path = "" }, "store path"},
		{"bot without token", func(c *Config) { c.Bot.Enable = true }, "bot token"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestDriverConfig(t *testing.T) {
	p := Provider{Endpoint: "http://localhost:11434"}
	p.Options.MaxTokens = 10
	c := p.DriverConfig()
	assert.Equal(t, "http://localhost:11434", c.Endpoint)
	assert.Equal(t, 10, c.MaxTokens)
}
