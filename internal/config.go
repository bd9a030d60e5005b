package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	GateLog       GateLogConfig       `mapstructure:"gate_log"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig points at the backing database for the key-value store.
// A DSN starting with postgres:// selects the pgx driver; anything else is
// treated as a SQLite file path.
type StorageConfig struct {
	Source          string        `mapstructure:"source"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type SecurityConfig struct {
	SessionSecret   string        `mapstructure:"session_secret" validate:"required,min=32"`
	SessionTokenTTL time.Duration `mapstructure:"session_token_ttl"`
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
	BCryptCost      int           `mapstructure:"bcrypt_cost"`
}

// GateLogConfig tunes the gate-log engine. OverstayThreshold is the elapsed
// time after which an IN entry reads as OVERSTAY; the comparison is >=.
type GateLogConfig struct {
	OverstayThreshold  time.Duration `mapstructure:"overstay_threshold"`
	DefaultCountryCode string        `mapstructure:"default_country_code"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- DEFAULTS -----------------

const (
	DefaultOverstayThreshold = 8 * time.Hour
	DefaultApprovalTimeout   = 30 * time.Second
	DefaultSessionTokenTTL   = 12 * time.Hour
	DefaultCountryCode       = "+91"
	DefaultStorageSource     = "factory-console.db"
)

func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Source == "" {
		c.Storage.Source = DefaultStorageSource
	}
	if c.Storage.MaxOpenConns == 0 {
		c.Storage.MaxOpenConns = 10
	}
	if c.Storage.MaxIdleConns == 0 {
		c.Storage.MaxIdleConns = 5
	}
	if c.Security.SessionTokenTTL == 0 {
		c.Security.SessionTokenTTL = DefaultSessionTokenTTL
	}
	if c.Security.ApprovalTimeout == 0 {
		c.Security.ApprovalTimeout = DefaultApprovalTimeout
	}
	if c.GateLog.OverstayThreshold == 0 {
		c.GateLog.OverstayThreshold = DefaultOverstayThreshold
	}
	if c.GateLog.DefaultCountryCode == "" {
		c.GateLog.DefaultCountryCode = DefaultCountryCode
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// LoadConfigFromEnv builds a Config purely from environment variables, used
// for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("HTTP_SERVER_PORT", 8080),
			BaseURL:        getEnv("HTTP_SERVER_BASE_URL", ""),
			AllowedOrigins: getEnv("HTTP_SERVER_ALLOWED_ORIGINS", "*"),
		},
		Storage: StorageConfig{
			Source:       getEnv("STORAGE_SOURCE", DefaultStorageSource),
			MaxOpenConns: getEnvAsInt("STORAGE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("STORAGE_MAX_IDLE_CONNS", 5),
		},
		Security: SecurityConfig{
			SessionSecret: getEnv("SECURITY_SESSION_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOGGING_LEVEL", "info"),
				Format: getEnv("LOGGING_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.GateLog.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gate_log config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *StorageConfig) IsPostgres() bool {
	return strings.HasPrefix(c.Source, "postgres://") || strings.HasPrefix(c.Source, "postgresql://")
}

func (c *StorageConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 characters")
	}
	if c.ApprovalTimeout < 0 {
		return errors.New("approval_timeout cannot be negative")
	}
	return nil
}

func (c *GateLogConfig) Validate() error {
	if c.OverstayThreshold < 0 {
		return errors.New("overstay_threshold cannot be negative")
	}
	if c.DefaultCountryCode != "" && !strings.HasPrefix(c.DefaultCountryCode, "+") {
		return errors.New("default_country_code must start with +")
	}
	return nil
}
