// Package config provides Viper-based configuration loading for the upgrade server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Mode is the server operation mode. Only "standalone" is supported.
	Mode string `mapstructure:"mode"`
	// Type is the server type identifier reported in logs.
	Type string `mapstructure:"type"`
}

// HTTPConfig holds the webhook listener settings.
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown before connections are dropped.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIRate is the sustained per-IP request rate on the webhook route.
	APIRate float64 `mapstructure:"api_rate"`
	// APIBurst is the per-IP burst allowance on the webhook route.
	APIBurst int `mapstructure:"api_burst"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// GRPCConfig holds the health service listener settings.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// QueryTimeout bounds every individual persistence call.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds the connection settings for the shared flag store.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// KeyPrefix namespaces every key written by this process.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StorageConfig selects the account store backend.
type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GuardConfig tunes the abuse guard in front of the upgrade action.
type GuardConfig struct {
	// MaxConcurrent is the process-wide ceiling on in-flight upgrades.
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
	// Cooldown is the minimum interval between two upgrades by one user.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// Window is the length of the anomaly detection window.
	Window time.Duration `mapstructure:"window"`
	// Threshold is the request count within Window that flags a user.
	Threshold int `mapstructure:"threshold"`
	// SweepInterval is how often stale tracker entries are evicted.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// StaleAfter is the idle age after which a tracker entry is evicted.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// GameConfig holds game content and economy seed settings.
type GameConfig struct {
	// ContentDir is the directory holding the YAML content catalogs.
	ContentDir string `mapstructure:"content_dir"`
	// InitialCurrency is the balance of a freshly created account.
	InitialCurrency int64 `mapstructure:"initial_currency"`
}

// AdminConfig holds operator authentication settings.
type AdminConfig struct {
	// KeyHash is the bcrypt hash of the operator key.
	KeyHash string `mapstructure:"key_hash"`
	// TokenSecret signs operator bearer tokens.
	TokenSecret string `mapstructure:"token_secret"`
	// TokenTTL is the lifetime of an issued operator token.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// MaxLoginAttempts is the failed-login count that locks an address out.
	MaxLoginAttempts int `mapstructure:"max_login_attempts"`
	// Lockout is how long a locked-out address is refused.
	Lockout time.Duration `mapstructure:"lockout"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Game     GameConfig     `mapstructure:"game"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	checks := []error{
		validateServer(c.Server),
		validateHTTP(c.HTTP),
		validateGRPC(c.GRPC),
		validateStorage(c.Storage),
		validateRedis(c.Redis),
		validateLogging(c.Logging),
		validateGuard(c.Guard),
		validateGame(c.Game),
		validateAdmin(c.Admin),
	}
	// The database section only matters when it backs the account store.
	if c.Storage.Driver == "postgres" {
		checks = append(checks, validateDatabase(c.Database))
	}
	for _, err := range checks {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Mode != "standalone" {
		return fmt.Errorf("server.mode must be standalone, got %q", s.Mode)
	}
	if s.Type == "" {
		return errors.New("server.type must not be empty")
	}
	return nil
}

func validatePort(key string, port int) string {
	if port < 1 || port > 65535 {
		return fmt.Sprintf("%s must be 1-65535, got %d", key, port)
	}
	return ""
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if msg := validatePort("http.port", h.Port); msg != "" {
		errs = append(errs, msg)
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	if h.ShutdownTimeout <= 0 {
		errs = append(errs, "http.shutdown_timeout must be positive")
	}
	if h.APIRate <= 0 {
		errs = append(errs, fmt.Sprintf("http.api_rate must be > 0, got %v", h.APIRate))
	}
	if h.APIBurst < 1 {
		errs = append(errs, fmt.Sprintf("http.api_burst must be >= 1, got %d", h.APIBurst))
	}
	return joinErrs(errs)
}

func validateGRPC(g GRPCConfig) error {
	var errs []string
	if g.Host == "" {
		errs = append(errs, "grpc.host must not be empty")
	}
	if msg := validatePort("grpc.port", g.Port); msg != "" {
		errs = append(errs, msg)
	}
	return joinErrs(errs)
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if msg := validatePort("database.port", d.Port); msg != "" {
		errs = append(errs, msg)
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if d.QueryTimeout <= 0 {
		errs = append(errs, "database.query_timeout must be positive")
	}
	return joinErrs(errs)
}

func validateRedis(r RedisConfig) error {
	if r.Enabled && r.Addr == "" {
		return errors.New("redis.addr must not be empty when redis.enabled is true")
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	validDrivers := map[string]bool{"postgres": true, "memory": true}
	if !validDrivers[s.Driver] {
		return fmt.Errorf("storage.driver must be one of [postgres, memory], got %q", s.Driver)
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateGuard(g GuardConfig) error {
	var errs []string
	if g.MaxConcurrent < 1 {
		errs = append(errs, fmt.Sprintf("guard.max_concurrent must be >= 1, got %d", g.MaxConcurrent))
	}
	if g.Cooldown < 0 {
		errs = append(errs, "guard.cooldown must not be negative")
	}
	if g.Window <= 0 {
		errs = append(errs, "guard.window must be positive")
	}
	if g.Threshold < 1 {
		errs = append(errs, fmt.Sprintf("guard.threshold must be >= 1, got %d", g.Threshold))
	}
	if g.SweepInterval <= 0 {
		errs = append(errs, "guard.sweep_interval must be positive")
	}
	if g.StaleAfter < max(g.Window, g.Cooldown) {
		errs = append(errs, "guard.stale_after must be at least guard.window and guard.cooldown")
	}
	return joinErrs(errs)
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.ContentDir == "" {
		errs = append(errs, "game.content_dir must not be empty")
	}
	if g.InitialCurrency < 0 {
		errs = append(errs, fmt.Sprintf("game.initial_currency must be >= 0, got %d", g.InitialCurrency))
	}
	return joinErrs(errs)
}

func validateAdmin(a AdminConfig) error {
	var errs []string
	if a.TokenTTL <= 0 {
		errs = append(errs, "admin.token_ttl must be positive")
	}
	if a.MaxLoginAttempts < 1 {
		errs = append(errs, fmt.Sprintf("admin.max_login_attempts must be >= 1, got %d", a.MaxLoginAttempts))
	}
	if a.Lockout <= 0 {
		errs = append(errs, "admin.lockout must be positive")
	}
	return joinErrs(errs)
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ASCEND_ prefix
	v.SetEnvPrefix("ASCEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default values.
//
// Postcondition: LoadFromViper(Defaults()) succeeds.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "standalone")
	v.SetDefault("server.type", "ascend")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.api_rate", 10)
	v.SetDefault("http.api_burst", 10)

	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ascend")
	v.SetDefault("database.password", "ascend")
	v.SetDefault("database.name", "ascend")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.query_timeout", "3s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "ascend:")

	v.SetDefault("storage.driver", "memory")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("guard.max_concurrent", 100)
	v.SetDefault("guard.cooldown", "1s")
	v.SetDefault("guard.window", "10s")
	v.SetDefault("guard.threshold", 30)
	v.SetDefault("guard.sweep_interval", "1m")
	v.SetDefault("guard.stale_after", "5m")

	v.SetDefault("game.content_dir", "content")
	v.SetDefault("game.initial_currency", 10000)

	v.SetDefault("admin.token_ttl", "1h")
	v.SetDefault("admin.max_login_attempts", 5)
	v.SetDefault("admin.lockout", "5m")
}
