package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/georgepadayatti/taxsign/certvalidator"
	"github.com/georgepadayatti/taxsign/expiry"
	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
)

// Notification store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrConfigurationError
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (json, console).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`
}

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate validates the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Format) {
	case "json", "console", "text":
		return nil
	default:
		return NewConfigError("logging.format", fmt.Sprintf("unknown format '%s'", c.Format))
	}
}

// ValidationConfig holds the certificate acceptance policy.
type ValidationConfig struct {
	// MinRSABits is the smallest accepted RSA modulus.
	MinRSABits int `yaml:"min-rsa-bits" json:"min_rsa_bits"`

	// MaxValidityYears is the longest validity window accepted without a warning.
	MaxValidityYears int `yaml:"max-validity-years" json:"max_validity_years"`

	// AllowedCountries restricts subject countries (ISO 3166 alpha-2).
	AllowedCountries []string `yaml:"allowed-countries" json:"allowed_countries,omitempty"`

	// TrustedIssuers lists recognised issuer organizations.
	TrustedIssuers []string `yaml:"trusted-issuers" json:"trusted_issuers,omitempty"`
}

// SetDefaults sets default values for validation configuration.
func (c *ValidationConfig) SetDefaults() {
	if c.MinRSABits == 0 {
		c.MinRSABits = 2048
	}
	if c.MaxValidityYears == 0 {
		c.MaxValidityYears = 3
	}
}

// Validate validates the validation configuration.
func (c *ValidationConfig) Validate() error {
	if c.MinRSABits < 2048 {
		return NewConfigError("validation.min-rsa-bits", "must be at least 2048")
	}
	if c.MaxValidityYears < 1 {
		return NewConfigError("validation.max-validity-years", "must be positive")
	}
	for _, cc := range c.AllowedCountries {
		if len(cc) != 2 {
			return NewConfigError("validation.allowed-countries",
				fmt.Sprintf("'%s' is not a two-letter country code", cc))
		}
	}
	return nil
}

// Policy converts the configuration into a validator policy.
func (c *ValidationConfig) Policy(th expiry.Thresholds) certvalidator.Policy {
	return certvalidator.Policy{
		MinRSABits:       c.MinRSABits,
		MaxValidityYears: c.MaxValidityYears,
		AllowedCountries: c.AllowedCountries,
		TrustedIssuers:   c.TrustedIssuers,
		Thresholds:       th,
	}
}

// RedisConfig contains connection settings for the Redis dedup store.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password,omitempty"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key-prefix" json:"key_prefix,omitempty"`
}

// SetDefaults sets default values for Redis configuration.
func (c *RedisConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "taxsign"
	}
}

// NotificationConfig controls expiry notifications.
type NotificationConfig struct {
	// Thresholds are the day counts at which the info, warning and critical
	// tiers start, in that order.
	Thresholds []int `yaml:"thresholds" json:"thresholds"`

	// DedupTTL is how long an emitted notification suppresses repeats.
	DedupTTL time.Duration `yaml:"dedup-ttl" json:"dedup_ttl"`

	// Store is the dedup store kind (memory, redis).
	Store string `yaml:"store" json:"store"`

	// Redis configures the redis store.
	Redis *RedisConfig `yaml:"redis" json:"redis,omitempty"`

	// SweepWorkers bounds concurrent checks in a sweep.
	SweepWorkers int `yaml:"sweep-workers" json:"sweep_workers"`
}

// SetDefaults sets default values for notification configuration.
func (c *NotificationConfig) SetDefaults() {
	if len(c.Thresholds) == 0 {
		c.Thresholds = expiry.DefaultThresholds.Days()
	}
	if c.DedupTTL == 0 {
		c.DedupTTL = 24 * time.Hour
	}
	if c.Store == "" {
		c.Store = StoreMemory
	}
	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	c.Redis.SetDefaults()
	if c.SweepWorkers == 0 {
		c.SweepWorkers = 8
	}
}

// Validate validates the notification configuration.
func (c *NotificationConfig) Validate() error {
	if _, err := c.ExpiryThresholds(); err != nil {
		return &ConfigError{Field: "notification.thresholds", Message: err.Error(), Err: err}
	}
	if c.DedupTTL <= 0 {
		return NewConfigError("notification.dedup-ttl", "must be positive")
	}
	switch c.Store {
	case StoreMemory, StoreRedis:
	default:
		return NewConfigError("notification.store",
			fmt.Sprintf("unknown store '%s' (expected %s or %s)", c.Store, StoreMemory, StoreRedis))
	}
	if c.SweepWorkers < 1 {
		return NewConfigError("notification.sweep-workers", "must be positive")
	}
	return nil
}

// ExpiryThresholds returns the configured thresholds.
func (c *NotificationConfig) ExpiryThresholds() (expiry.Thresholds, error) {
	return expiry.ThresholdsFromDays(c.Thresholds)
}

// PKCS12SignatureConfig contains configuration for signing using a PKCS#12 file.
type PKCS12SignatureConfig struct {
	// PFXFile is the path to the PKCS#12 file.
	PFXFile string `yaml:"pfx-file" json:"pfx_file"`

	// PFXPassphrase is the PKCS#12 passphrase.
	PFXPassphrase string `yaml:"pfx-passphrase" json:"-"`

	// PFXPassphraseEnv names an environment variable holding the passphrase.
	// It takes precedence over PFXPassphrase when set.
	PFXPassphraseEnv string `yaml:"pfx-passphrase-env" json:"pfx_passphrase_env,omitempty"`
}

// Validate validates the PKCS12 signature configuration.
func (c *PKCS12SignatureConfig) Validate() error {
	if c.PFXFile == "" {
		return &ConfigError{Field: "pfx-file", Message: "required field is missing", Err: ErrMissingRequiredField}
	}
	return nil
}

// Passphrase returns the configured passphrase.
func (c *PKCS12SignatureConfig) Passphrase() string {
	if c.PFXPassphraseEnv != "" {
		if v, ok := os.LookupEnv(c.PFXPassphraseEnv); ok {
			return v
		}
	}
	return c.PFXPassphrase
}

// ReadBundle reads the PKCS#12 file.
func (c *PKCS12SignatureConfig) ReadBundle() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.PFXFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read PKCS#12 file: %w", err)
	}
	return data, nil
}

// SigningConfig represents the signing credential configuration.
type SigningConfig struct {
	// PKCS12 contains PKCS#12 configuration.
	PKCS12 *PKCS12SignatureConfig `yaml:"pkcs12" json:"pkcs12,omitempty"`
}

// AppConfig contains the complete application configuration.
type AppConfig struct {
	// Logging contains logging configuration.
	Logging *LoggingConfig `yaml:"logging" json:"logging,omitempty"`

	// Validation contains the certificate acceptance policy.
	Validation *ValidationConfig `yaml:"validation" json:"validation,omitempty"`

	// Notification controls expiry notifications.
	Notification *NotificationConfig `yaml:"notification" json:"notification,omitempty"`

	// Signing contains signing configuration.
	Signing *SigningConfig `yaml:"signing" json:"signing,omitempty"`
}

// DefaultAppConfig returns a configuration with every default applied.
func DefaultAppConfig() *AppConfig {
	config := &AppConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults fills in missing sections and values.
func (c *AppConfig) SetDefaults() {
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.SetDefaults()
	if c.Validation == nil {
		c.Validation = &ValidationConfig{}
	}
	c.Validation.SetDefaults()
	if c.Notification == nil {
		c.Notification = &NotificationConfig{}
	}
	c.Notification.SetDefaults()
	if c.Signing == nil {
		c.Signing = &SigningConfig{}
	}
}

// Validate validates the whole configuration. Signing credentials are
// optional and checked when used.
func (c *AppConfig) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Validation.Validate(); err != nil {
		return err
	}
	return c.Notification.Validate()
}

// CertificatePolicy returns the validator policy described by the configuration.
func (c *AppConfig) CertificatePolicy() (certvalidator.Policy, error) {
	th, err := c.Notification.ExpiryThresholds()
	if err != nil {
		return certvalidator.Policy{}, err
	}
	return c.Validation.Policy(th), nil
}

// LoadAppConfig loads the complete application configuration from a file.
func LoadAppConfig(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseAppConfig(data)
}

// ParseAppConfig parses, defaults and validates configuration from YAML data.
// Unknown keys are rejected.
func ParseAppConfig(data []byte) (*AppConfig, error) {
	var config AppConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
