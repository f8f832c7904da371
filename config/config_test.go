package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/georgepadayatti/taxsign/expiry"
)

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("field", "message")
	if err.Field != "field" {
		t.Errorf("Expected field 'field', got '%s'", err.Field)
	}
	if err.Message != "message" {
		t.Errorf("Expected message 'message', got '%s'", err.Message)
	}

	expected := "config error in 'field': message"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
	if !errors.Is(err, ErrConfigurationError) {
		t.Error("ConfigError should match ErrConfigurationError")
	}
}

func TestConfigErrorWithoutField(t *testing.T) {
	err := NewConfigError("", "general error")
	expected := "config error: general error"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
}

func TestDefaultAppConfig(t *testing.T) {
	config := DefaultAppConfig()

	if config.Logging.Level != "info" || config.Logging.Format != "json" || config.Logging.Output != "stderr" {
		t.Errorf("Unexpected logging defaults: %+v", config.Logging)
	}
	if config.Validation.MinRSABits != 2048 || config.Validation.MaxValidityYears != 3 {
		t.Errorf("Unexpected validation defaults: %+v", config.Validation)
	}
	if !reflect.DeepEqual(config.Notification.Thresholds, []int{30, 15, 7}) {
		t.Errorf("Thresholds = %v, want [30 15 7]", config.Notification.Thresholds)
	}
	if config.Notification.DedupTTL != 24*time.Hour {
		t.Errorf("DedupTTL = %v, want 24h", config.Notification.DedupTTL)
	}
	if config.Notification.Store != StoreMemory {
		t.Errorf("Store = %q, want memory", config.Notification.Store)
	}
	if config.Notification.Redis.Addr != "localhost:6379" || config.Notification.Redis.KeyPrefix != "taxsign" {
		t.Errorf("Unexpected redis defaults: %+v", config.Notification.Redis)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestParseAppConfig(t *testing.T) {
	yamlData := `
logging:
  level: debug
  format: console
validation:
  min-rsa-bits: 3072
  allowed-countries: [CO, PE]
  trusted-issuers:
    - Certicamara S.A.
notification:
  thresholds: [60, 30, 10]
  dedup-ttl: 12h
  store: redis
  redis:
    addr: redis.internal:6380
    db: 2
  sweep-workers: 4
signing:
  pkcs12:
    pfx-file: /etc/taxsign/tenant.p12
    pfx-passphrase-env: TENANT_PFX_PASSWORD
`
	config, err := ParseAppConfig([]byte(yamlData))
	if err != nil {
		t.Fatalf("ParseAppConfig failed: %v", err)
	}

	if config.Logging.Level != "debug" || config.Logging.Output != "stderr" {
		t.Errorf("Logging = %+v", config.Logging)
	}
	if config.Validation.MinRSABits != 3072 || config.Validation.MaxValidityYears != 3 {
		t.Errorf("Validation = %+v", config.Validation)
	}
	if config.Notification.DedupTTL != 12*time.Hour {
		t.Errorf("DedupTTL = %v, want 12h", config.Notification.DedupTTL)
	}
	if config.Notification.Redis.Addr != "redis.internal:6380" || config.Notification.Redis.DB != 2 {
		t.Errorf("Redis = %+v", config.Notification.Redis)
	}
	if config.Notification.Redis.KeyPrefix != "taxsign" {
		t.Errorf("KeyPrefix default not applied: %q", config.Notification.Redis.KeyPrefix)
	}
	if config.Signing.PKCS12 == nil || config.Signing.PKCS12.PFXFile != "/etc/taxsign/tenant.p12" {
		t.Errorf("Signing = %+v", config.Signing)
	}

	policy, err := config.CertificatePolicy()
	if err != nil {
		t.Fatalf("CertificatePolicy failed: %v", err)
	}
	if policy.MinRSABits != 3072 || policy.MaxValidityYears != 3 {
		t.Errorf("Policy = %+v", policy)
	}
	if policy.Thresholds != (expiry.Thresholds{Info: 60, Warning: 30, Critical: 10}) {
		t.Errorf("Policy thresholds = %+v", policy.Thresholds)
	}
	if !reflect.DeepEqual(policy.AllowedCountries, []string{"CO", "PE"}) {
		t.Errorf("AllowedCountries = %v", policy.AllowedCountries)
	}
}

func TestParseAppConfigEmpty(t *testing.T) {
	config, err := ParseAppConfig(nil)
	if err != nil {
		t.Fatalf("ParseAppConfig(nil) failed: %v", err)
	}
	if config.Notification.Store != StoreMemory {
		t.Errorf("Defaults not applied to empty config")
	}
}

func TestParseAppConfigInvalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"Syntax", "logging: [unclosed", ""},
		{"UnknownKey", "notification:\n  threshold: [30, 15, 7]\n", ""},
		{"ThresholdsNotDescending", "notification:\n  thresholds: [7, 15, 30]\n", "notification.thresholds"},
		{"ThresholdsWrongCount", "notification:\n  thresholds: [30, 15]\n", "notification.thresholds"},
		{"ThresholdsZero", "notification:\n  thresholds: [30, 15, 0]\n", "notification.thresholds"},
		{"UnknownStore", "notification:\n  store: memcached\n", "notification.store"},
		{"NegativeTTL", "notification:\n  dedup-ttl: -1h\n", "notification.dedup-ttl"},
		{"BadDuration", "notification:\n  dedup-ttl: tomorrow\n", ""},
		{"TinyRSA", "validation:\n  min-rsa-bits: 512\n", "validation.min-rsa-bits"},
		{"BelowHardFloorRSA", "validation:\n  min-rsa-bits: 1024\n", "validation.min-rsa-bits"},
		{"BadCountry", "validation:\n  allowed-countries: [COL]\n", "validation.allowed-countries"},
		{"BadLogFormat", "logging:\n  format: xml\n", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAppConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected error")
			}
			if tt.field == "" {
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected *ConfigError, got %T: %v", err, err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestLoadAppConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "taxsign.yaml")

	yamlData := `
logging:
  level: warn
notification:
  store: memory
`
	if err := os.WriteFile(configPath, []byte(yamlData), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadAppConfig(configPath)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if config.Logging.Level != "warn" {
		t.Errorf("Expected level 'warn', got '%s'", config.Logging.Level)
	}
	if config.Logging.Format != "json" {
		t.Errorf("Expected default format 'json', got '%s'", config.Logging.Format)
	}
}

func TestLoadAppConfigFileNotFound(t *testing.T) {
	_, err := LoadAppConfig("/nonexistent/taxsign.yaml")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestPKCS12SignatureConfig(t *testing.T) {
	t.Run("Validate", func(t *testing.T) {
		c := &PKCS12SignatureConfig{}
		if err := c.Validate(); !errors.Is(err, ErrMissingRequiredField) {
			t.Errorf("Expected ErrMissingRequiredField, got %v", err)
		}
		c.PFXFile = "tenant.p12"
		if err := c.Validate(); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("PassphraseFromEnv", func(t *testing.T) {
		t.Setenv("TAXSIGN_TEST_PFX_PASSWORD", "from-env")
		c := &PKCS12SignatureConfig{PFXPassphrase: "inline", PFXPassphraseEnv: "TAXSIGN_TEST_PFX_PASSWORD"}
		if got := c.Passphrase(); got != "from-env" {
			t.Errorf("Passphrase() = %q, want from-env", got)
		}
	})

	t.Run("PassphraseInline", func(t *testing.T) {
		c := &PKCS12SignatureConfig{PFXPassphrase: "inline", PFXPassphraseEnv: "TAXSIGN_TEST_UNSET_VARIABLE"}
		if got := c.Passphrase(); got != "inline" {
			t.Errorf("Passphrase() = %q, want inline", got)
		}
	})

	t.Run("ReadBundle", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tenant.p12")
		if err := os.WriteFile(path, []byte{0x30, 0x82}, 0600); err != nil {
			t.Fatal(err)
		}
		c := &PKCS12SignatureConfig{PFXFile: path}
		data, err := c.ReadBundle()
		if err != nil || len(data) != 2 {
			t.Errorf("ReadBundle() = %v, %v", data, err)
		}

		c.PFXFile = filepath.Join(t.TempDir(), "missing.p12")
		if _, err := c.ReadBundle(); err == nil || !strings.Contains(err.Error(), "PKCS#12") {
			t.Errorf("Expected read error, got %v", err)
		}
	})
}
