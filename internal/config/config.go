package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Source    SourceConfig
	Forecast  ForecastConfig
	Auth      AuthConfig
	Dashboard DashboardConfig
	Logger    LoggerConfig
	Security  SecurityConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// SourceConfig selects where raw sales records are read from.
type SourceConfig struct {
	Driver      string
	CSVFile     string
	CacheDir    string
	PostgresURL string
	SQLitePath  string
	Table       string
	UsersTable  string
	LoadTimeout time.Duration
}

// ForecastConfig points at the external forecast service.
type ForecastConfig struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultHorizon int
}

type AuthConfig struct {
	// JWTSecret is the identity provider's signing secret. Sessions scope the
	// records a user can read, so it is required unless InsecureSkipVerify
	// is set.
	JWTSecret  string
	CookieName string

	// InsecureSkipVerify decodes tokens without checking signatures. Only
	// for local development.
	InsecureSkipVerify bool
}

type DashboardConfig struct {
	Debounce   time.Duration
	SessionTTL time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableCSRF      bool
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

var (
	validDrivers    = []string{"csv", "postgres", "sqlite"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
)

// SetDefaults registers every key with its default so environment variables
// (SERVER_PORT, SOURCE_DRIVER, ...) can override it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("source.driver", "csv")
	v.SetDefault("source.csv_file", "data.csv")
	v.SetDefault("source.cache_dir", ".cache")
	v.SetDefault("source.postgres_url", "")
	v.SetDefault("source.sqlite_path", "sales.db")
	v.SetDefault("source.table", "sales_raw_data")
	v.SetDefault("source.users_table", "users")
	v.SetDefault("source.load_timeout", 30*time.Second)

	v.SetDefault("forecast.base_url", "http://localhost:8000")
	v.SetDefault("forecast.timeout", 30*time.Second)
	v.SetDefault("forecast.default_horizon", 6)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.cookie_name", "sb-access-token")
	v.SetDefault("auth.insecure_skip_verify", false)

	v.SetDefault("dashboard.debounce", 500*time.Millisecond)
	v.SetDefault("dashboard.session_ttl", 30*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("security.csrf_enabled", true)
	v.SetDefault("security.rate_limit_enabled", true)
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 10)
	v.SetDefault("security.allowed_origins", "http://localhost:8084")
	v.SetDefault("security.trusted_proxies", "127.0.0.1")
}

// NewViper returns a viper instance wired to the process environment.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present), the environment and an optional config file
// named by CONFIG_FILE.
func Load() (*Config, error) {
	return LoadViper(NewViper(), "")
}

// LoadViper is Load for a caller-owned viper, such as one with CLI flags
// bound. An empty file falls back to CONFIG_FILE.
func LoadViper(v *viper.Viper, file string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if file == "" {
		file = v.GetString("config_file")
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	return FromViper(v)
}

// FromViper builds and validates a Config from an already populated viper.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Source: SourceConfig{
			Driver:      strings.ToLower(v.GetString("source.driver")),
			CSVFile:     v.GetString("source.csv_file"),
			CacheDir:    v.GetString("source.cache_dir"),
			PostgresURL: v.GetString("source.postgres_url"),
			SQLitePath:  v.GetString("source.sqlite_path"),
			Table:       v.GetString("source.table"),
			UsersTable:  v.GetString("source.users_table"),
			LoadTimeout: v.GetDuration("source.load_timeout"),
		},
		Forecast: ForecastConfig{
			BaseURL:        strings.TrimRight(v.GetString("forecast.base_url"), "/"),
			Timeout:        v.GetDuration("forecast.timeout"),
			DefaultHorizon: v.GetInt("forecast.default_horizon"),
		},
		Auth: AuthConfig{
			JWTSecret:          v.GetString("auth.jwt_secret"),
			CookieName:         v.GetString("auth.cookie_name"),
			InsecureSkipVerify: v.GetBool("auth.insecure_skip_verify"),
		},
		Dashboard: DashboardConfig{
			Debounce:   v.GetDuration("dashboard.debounce"),
			SessionTTL: v.GetDuration("dashboard.session_ttl"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Security: SecurityConfig{
			EnableCSRF:      v.GetBool("security.csrf_enabled"),
			EnableRateLimit: v.GetBool("security.rate_limit_enabled"),
			RateLimitRPS:    v.GetInt("security.rate_limit_rps"),
			RateLimitBurst:  v.GetInt("security.rate_limit_burst"),
			AllowedOrigins:  getStringSlice(v, "security.allowed_origins"),
			TrustedProxies:  getStringSlice(v, "security.trusted_proxies"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if !slices.Contains(validDrivers, c.Source.Driver) {
		return fmt.Errorf("invalid source driver %q, must be one of: %s", c.Source.Driver, strings.Join(validDrivers, ", "))
	}

	switch c.Source.Driver {
	case "csv":
		if c.Source.CSVFile == "" {
			return fmt.Errorf("CSV file path cannot be empty")
		}
	case "postgres":
		if c.Source.PostgresURL == "" {
			return fmt.Errorf("postgres URL cannot be empty when source driver is postgres")
		}
	case "sqlite":
		if c.Source.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty when source driver is sqlite")
		}
	}

	if c.Source.Table == "" {
		return fmt.Errorf("source table cannot be empty")
	}

	if c.Forecast.BaseURL == "" {
		return fmt.Errorf("forecast base URL cannot be empty")
	}

	if c.Forecast.DefaultHorizon < 1 || c.Forecast.DefaultHorizon > 36 {
		return fmt.Errorf("forecast default horizon must be between 1 and 36 months, got %d", c.Forecast.DefaultHorizon)
	}

	if c.Dashboard.Debounce <= 0 {
		return fmt.Errorf("dashboard debounce must be positive")
	}

	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth cookie name cannot be empty")
	}

	if c.Auth.JWTSecret == "" && !c.Auth.InsecureSkipVerify {
		return fmt.Errorf("auth JWT secret is required unless auth.insecure_skip_verify is set")
	}

	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

// getStringSlice accepts both comma-separated strings (env vars) and lists
// (config files).
func getStringSlice(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return v.GetStringSlice(key)
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
