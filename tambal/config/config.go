package config

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/odit-bit/tambal/tambal/agent/driver"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//go:embed config.yaml
var defaultConfig embed.FS

// holds aggregats configuration across tambal environment.
type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Provider Provider      `mapstructure:"provider"`
	Store    StoreConfig   `mapstructure:"store"`
	Session  SessionConfig `mapstructure:"session"`
	Rules    string        `mapstructure:"rules"`
	Bot      BotConfig     `mapstructure:"bot"`
	Observe  ObserveConfig `mapstructure:"observability"`
}

// tambal server config
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Debug   bool   `mapstructure:"debug"`
}

// external llm provider
type Provider struct {
	Name              string        `mapstructure:"name"`
	ApiKey            string        `mapstructure:"apikey"`
	Endpoint          string        `mapstructure:"endpoint"`
	Models            []string      `mapstructure:"models"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RateLimitDelay    time.Duration `mapstructure:"rate_limit_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Options           driver.Config `mapstructure:"options"`
}

// DriverConfig returns Options with the provider endpoint applied.
func (p Provider) DriverConfig() *driver.Config {
	c := p.Options
	if p.Endpoint != "" {
		c.Endpoint = p.Endpoint
	}
	return &c
}

type StoreConfig struct {
	Path          string        `mapstructure:"path"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type SessionConfig struct {
	MaxSessions     int `mapstructure:"max_sessions"`
	MaxExchanges    int `mapstructure:"max_exchanges"`
	MaxMessageRunes int `mapstructure:"max_message_runes"`
}

type BotConfig struct {
	Enable      bool          `mapstructure:"enable"`
	Token       string        `mapstructure:"token"`
	AdminID     int64         `mapstructure:"admin_id"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

type ObserveConfig struct {
	Enable bool `mapstructure:"enable"`
	// if not set but enable will use stdout
	Exporter string `mapstructure:"exporter"`
	// http endpoint exporter
	TraceEndpoint   string `mapstructure:"trace_endpoint"`
	MetricsEndpoint string `mapstructure:"metrics_endpoint"`
	// secure endpoint (https)
	Secure     bool `mapstructure:"secure"`
	Prometheus bool `mapstructure:"prometheus"`
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server address is required")
	}
	// Check if the address is a valid host:port
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return fmt.Errorf("invalid server address format: %w", err)
	}

	switch c.Provider.Name {
	case driver.NameOpenAI, driver.NameGenAI:
		if c.Provider.ApiKey == "" {
			return fmt.Errorf("provider %s requires an api key", c.Provider.Name)
		}
	case driver.NameOllama:
	case "":
		return errors.New("provider name is required")
	default:
		return fmt.Errorf("unknown provider: %s", c.Provider.Name)
	}

	if len(c.Provider.Models) == 0 {
		return errors.New("at least one provider model is required")
	}
	for _, m := range c.Provider.Models {
		if strings.TrimSpace(m) == "" {
			return errors.New("provider model cannot be empty")
		}
	}
	if c.Provider.Timeout <= 0 {
		return errors.New("provider timeout must be positive")
	}

	if c.Store.Path == "" {
		return errors.New("store path is required")
	}
	if c.Store.Retention < 0 {
		return errors.New("store retention cannot be negative")
	}

	if c.Bot.Enable && c.Bot.Token == "" {
		return errors.New("bot token is required when the bot is enabled")
	}

	return nil
}

// load configuration from default embedded config.yaml, provided config.yaml, env and flags before validation.
func LoadAndValidate(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 3. Bind env variable
	v.SetEnvPrefix("TAMBAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind Pflags flags
	for flagName, configKey := range flagToConfigKeyMap {
		f := flags.Lookup(flagName)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(configKey, f); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
		}
	}

	// 1. Set default value by reading from the embedded config.yaml
	defaultBytes, _ := defaultConfig.ReadFile("config.yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultBytes)); err != nil {
		return nil, fmt.Errorf("failed to read default config: %w", err)
	}

	// 2.Set from external config file if provided
	var configFile string
	if f := flags.Lookup(FLAG_SERVER_CONFIG_FILE); f != nil {
		configFile = f.Value.String()
	}
	if configFile != "" {
		f, err := os.Open(configFile)
		if err != nil {
			return nil, fmt.Errorf("config : %w", err)
		}
		defer f.Close()
		providedBytes, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("config : %w", err)
		}
		if err := v.MergeConfig(bytes.NewReader(providedBytes)); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	// 5. UNmarshal
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Validate the final config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
