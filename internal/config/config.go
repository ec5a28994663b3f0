package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	AWS         AWSConfig         `yaml:"aws"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Families    FamiliesConfig    `yaml:"families"`
	Invitations InvitationsConfig `yaml:"invitations"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AuthConfig holds session token configuration. Secret is the HS256 key the
// hosted auth service signs access tokens with.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// AWSConfig holds the calendar export bucket configuration
type AWSConfig struct {
	Region    string        `yaml:"region"`
	S3Bucket  string        `yaml:"s3_bucket"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Endpoint  string        `yaml:"endpoint"` // S3-compatible storage outside AWS
	URLExpiry time.Duration `yaml:"url_expiry"`
}

// MaxFetchRetries bounds retries of the overall event fetch before it falls
// back to personal events only.
const MaxFetchRetries = 2

// FetchConfig holds the event fetch retry policy. MaxRetries defaults to
// MaxFetchRetries when absent; an explicit 0 disables retries.
type FetchConfig struct {
	MaxRetries      uint          `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// FamiliesConfig holds family creation settings
type FamiliesConfig struct {
	DefaultColor     string        `yaml:"default_color"`
	RecoveryAttempts uint          `yaml:"recovery_attempts"`
	RecoveryInterval time.Duration `yaml:"recovery_interval"`
}

// InvitationsConfig holds invitation resend throttling
type InvitationsConfig struct {
	ResendInterval time.Duration `yaml:"resend_interval"`
	ResendBurst    int           `yaml:"resend_burst"`
}

// StorageConfig holds the local preference store configuration
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file, applies defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Preset so an explicit zero in the file survives unmarshalling
	cfg := Config{Fetch: FetchConfig{MaxRetries: MaxFetchRetries}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "require"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.AWS.URLExpiry == 0 {
		c.AWS.URLExpiry = 15 * time.Minute
	}
	if c.Fetch.InitialInterval == 0 {
		c.Fetch.InitialInterval = 250 * time.Millisecond
	}
	if c.Fetch.MaxInterval == 0 {
		c.Fetch.MaxInterval = 2 * time.Second
	}
	if c.Families.DefaultColor == "" {
		c.Families.DefaultColor = "#4f46e5"
	}
	if c.Families.RecoveryAttempts == 0 {
		c.Families.RecoveryAttempts = 3
	}
	if c.Families.RecoveryInterval == 0 {
		c.Families.RecoveryInterval = 500 * time.Millisecond
	}
	if c.Invitations.ResendInterval == 0 {
		c.Invitations.ResendInterval = time.Minute
	}
	if c.Invitations.ResendBurst == 0 {
		c.Invitations.ResendBurst = 1
	}
	if c.Storage.Path == "" && !c.Storage.InMemory {
		c.Storage.Path = "data/preferences"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports every missing required setting
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.DBName == "" {
		errs = append(errs, errors.New("database.dbname is required"))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if c.Fetch.MaxRetries > MaxFetchRetries {
		errs = append(errs, fmt.Errorf("fetch.max_retries must be at most %d", MaxFetchRetries))
	}
	if c.AWS.S3Bucket != "" && c.AWS.Region == "" {
		errs = append(errs, errors.New("aws.region is required when aws.s3_bucket is set"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
