package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	API       API       `mapstructure:"api"`
	Session   Session   `mapstructure:"session"`
	Autosave  Autosave  `mapstructure:"autosave"`
	Analytics Analytics `mapstructure:"analytics"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// API holds the configuration for the versions API client.
type API struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// Session holds the bearer token and how to refresh it.
type Session struct {
	AccessToken  string        `mapstructure:"access_token"`
	RefreshURL   string        `mapstructure:"refresh_url"`
	RefreshToken string        `mapstructure:"refresh_token"`
	ExpiryLeeway time.Duration `mapstructure:"expiry_leeway"`
}

// Autosave holds the timings of the version coordinator.
type Autosave struct {
	Debounce          time.Duration `mapstructure:"debounce"`
	NoticeDuration    time.Duration `mapstructure:"notice_duration"`
	VersionsStaleTime time.Duration `mapstructure:"versions_stale_time"`
}

// Analytics holds the configuration for the onboarding event sink.
type Analytics struct {
	Enabled       bool          `mapstructure:"enabled"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Server holds the configuration for the local HTTP server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the working copy cache.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000/api/v1")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.rate_limit", 10)      // requests per second
	v.SetDefault("api.rate_limit_burst", 5) // burst size
	v.SetDefault("api.max_retries", 3)

	v.SetDefault("session.access_token", "")
	v.SetDefault("session.refresh_url", "")
	v.SetDefault("session.refresh_token", "")
	v.SetDefault("session.expiry_leeway", 30*time.Second)

	v.SetDefault("autosave.debounce", 1500*time.Millisecond)
	v.SetDefault("autosave.notice_duration", 4000*time.Millisecond)
	v.SetDefault("autosave.versions_stale_time", time.Minute)

	v.SetDefault("analytics.enabled", true)
	v.SetDefault("analytics.flush_interval", 5*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "canvas.db")
}
