package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the formflow service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Callback CallbackConfig `mapstructure:"callback"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port      int        `mapstructure:"port"`
	Mode      string     `mapstructure:"mode"`
	StaticDir string     `mapstructure:"static_dir"`
	CORS      CORSConfig `mapstructure:"cors"`
}

// CORSConfig holds cross-origin settings for the intake form origin.
type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig holds job store settings. Driver is one of
// "sqlite", "postgres", or "memory" (dev/test only, no durability).
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"` // sqlite file path
	URL    string `mapstructure:"url"`  // postgres DSN

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

// WorkerConfig holds the external automation worker settings.
// WebhookURL is required for submissions; its absence is a configuration
// error surfaced per-request, not at startup, so read-only deployments
// (stream/callback only) still come up.
type WorkerConfig struct {
	WebhookURL      string        `mapstructure:"webhook_url"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
}

// CallbackConfig holds callback authentication settings.
// An empty Secret disables the shared-secret check; this is an explicit
// operator choice and is warned about at startup.
type CallbackConfig struct {
	Secret string `mapstructure:"secret"`
}

// ReaperConfig holds the stale-job sweep settings. Jobs non-terminal for
// longer than JobTTL are marked failed so no stream tails them forever.
type ReaperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	JobTTL   time.Duration `mapstructure:"job_ttl"`
}

// Load reads configuration from the given file path (or the default search
// locations when empty), with environment variable override.
// Parameters:
//   - configPath: explicit config file path; empty uses ./configs and . lookup.
//
// Returns:
//   - *Config: populated configuration.
//   - error: non-nil if reading or unmarshaling fails.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.static_dir", "./web/static")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/jobs.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("worker.webhook_url", "")
	v.SetDefault("worker.dispatch_timeout", 15*time.Second)
	v.SetDefault("callback.secret", "")
	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.schedule", "@every 5m")
	v.SetDefault("reaper.job_ttl", 30*time.Minute)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("worker.webhook_url", "WORKER_WEBHOOK_URL")
	v.BindEnv("callback.secret", "CALLBACK_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
