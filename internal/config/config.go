package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		AllowedOrigins  []string      `mapstructure:"allowed_origins"`
		SecureCookies   bool          `mapstructure:"secure_cookies"`
		// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is believed.
		TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`

	Database struct {
		DSN          string `mapstructure:"dsn"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
	} `mapstructure:"database"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Session struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"session"`

	Audit struct {
		// FailOpen lets a mutation succeed when its audit entry cannot be written.
		FailOpen bool `mapstructure:"fail_open"`
	} `mapstructure:"audit"`

	AMQP struct {
		URL           string  `mapstructure:"url"`
		Queue         string  `mapstructure:"queue"`
		RatePerSecond float64 `mapstructure:"rate_per_second"`
	} `mapstructure:"amqp"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	RateLimit struct {
		Presets map[string]PresetConfig `mapstructure:"presets"`
	} `mapstructure:"ratelimit"`
}

// PresetConfig overrides one rate-limit preset.
type PresetConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
	FailOpen    bool          `mapstructure:"fail_open"`
}

const envPrefix = "PAYROLLHUB"

// Load reads .env (if present), an optional YAML file and PAYROLLHUB_* env
// variables, in increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile("configs/config.yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.secure_cookies", true)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("session.ttl", 12*time.Hour)
	v.SetDefault("audit.fail_open", false)
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.queue", "notifications.high")
	v.SetDefault("amqp.rate_per_second", 10.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate rejects settings that would disable expiry or limiting.
func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return errors.New("config: session.ttl must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("config: server.max_body_bytes must be positive")
	}
	for name, p := range c.RateLimit.Presets {
		if p.Window <= 0 || p.Window%time.Second != 0 {
			return fmt.Errorf("config: ratelimit preset %q window must be a positive whole number of seconds", name)
		}
		if p.MaxRequests <= 0 {
			return fmt.Errorf("config: ratelimit preset %q max_requests must be positive", name)
		}
	}
	return nil
}
