package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level pressroom configuration file. The
// mapstructure tags let viper decode the same shape from flags, env vars and
// the file.
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Logging LoggingConfig `yaml:"log" mapstructure:"log"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string   `yaml:"host" mapstructure:"host"`
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeout string   `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the database holding admins and the token blacklist.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, mysql, mssql
	DSN    string `yaml:"dsn" mapstructure:"dsn"`       // empty for sqlite means <data-dir>/pressroom.db
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL         string `yaml:"token_ttl" mapstructure:"token_ttl"`
	Issuer           string `yaml:"issuer" mapstructure:"issuer"`
	BcryptCost       int    `yaml:"bcrypt_cost" mapstructure:"bcrypt_cost"`
	CookieSecure     bool   `yaml:"cookie_secure" mapstructure:"cookie_secure"`
	OpenRegistration bool   `yaml:"open_registration" mapstructure:"open_registration"`
	PruneInterval    string `yaml:"prune_interval" mapstructure:"prune_interval"`
	LoginRateLimit   int    `yaml:"login_rate_limit" mapstructure:"login_rate_limit"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ReadConfigFile loads the YAML file at path into v. Environment variables
// referenced as ${VAR_NAME} in the file are expanded before parsing. Keys
// absent from the file keep whatever v already holds.
func ReadConfigFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// FindConfigFile returns explicit when set, otherwise the first existing
// pressroom.yaml in the working directory or ~/.pressroom. It returns ""
// when there is none; the config file is optional.
func FindConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	candidates := []string{"pressroom.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".pressroom", "pressroom.yaml"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: "30s",
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Auth: AuthConfig{
			TokenTTL:         "24h",
			Issuer:           "pressroom",
			BcryptCost:       10,
			OpenRegistration: true,
			PruneInterval:    "1h",
			LoginRateLimit:   10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SetDefaults registers every key with its default on v, so env vars such
// as PRESSROOM_AUTH_JWT_SECRET resolve even when no file sets the key.
func SetDefaults(v *viper.Viper) {
	d := DefaultYAMLConfig()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.bcrypt_cost", d.Auth.BcryptCost)
	v.SetDefault("auth.cookie_secure", d.Auth.CookieSecure)
	v.SetDefault("auth.open_registration", d.Auth.OpenRegistration)
	v.SetDefault("auth.prune_interval", d.Auth.PruneInterval)
	v.SetDefault("auth.login_rate_limit", d.Auth.LoginRateLimit)
	v.SetDefault("log.level", d.Logging.Level)
	v.SetDefault("log.format", d.Logging.Format)
}

// FromViper decodes the effective configuration held by v.
func FromViper(v *viper.Viper) (*YAMLConfig, error) {
	cfg := DefaultYAMLConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Comma-separated origins arrive from env vars as a single element.
	if len(cfg.Server.CORSOrigins) == 1 && strings.Contains(cfg.Server.CORSOrigins[0], ",") {
		cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins[0])
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed by the YAML types alone.
func (c *YAMLConfig) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for key, val := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.token_ttl":          c.Auth.TokenTTL,
		"auth.prune_interval":     c.Auth.PruneInterval,
	} {
		if _, err := parseDuration(val); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if ttl, _ := c.Auth.TTL(); ttl <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.LoginRateLimit < 0 {
		return fmt.Errorf("auth.login_rate_limit must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// ShutdownTimeoutDuration parses server.shutdown_timeout.
func (s ServerConfig) ShutdownTimeoutDuration() (time.Duration, error) {
	return parseDuration(s.ShutdownTimeout)
}

// TTL parses auth.token_ttl.
func (a AuthConfig) TTL() (time.Duration, error) {
	return parseDuration(a.TokenTTL)
}

// PruneEvery parses auth.prune_interval. Zero disables pruning.
func (a AuthConfig) PruneEvery() (time.Duration, error) {
	return parseDuration(a.PruneInterval)
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
