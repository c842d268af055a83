// Package config handles loading and validation of storefront configuration.
//
// Sources, lowest priority first: built-in defaults, a YAML file
// (STOREFRONT_CONFIG_FILE, default storefront.yaml), a .env file, then
// STOREFRONT_* environment variables. Nested keys use "_" in env names:
// STOREFRONT_API_BASEURL sets api.baseurl.
//
// In production the shopper credentials are read from Secret Manager.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"storefront/internal/model"
	"storefront/internal/session"
)

const (
	envPrefix         = "STOREFRONT_"
	configFileEnv     = "STOREFRONT_CONFIG_FILE"
	defaultConfigFile = "storefront.yaml"
	dotEnvFile        = ".env"
)

// Config holds all storefront configuration.
type Config struct {
	Environment string        `koanf:"environment" validate:"oneof=development production"`
	Log         LogConfig     `koanf:"log"`
	API         APIConfig     `koanf:"api"`
	Search      SearchConfig  `koanf:"search"`
	Session     SessionConfig `koanf:"session"`
	GCP         GCPConfig     `koanf:"gcp"`
	Gateway     GatewayConfig `koanf:"gateway"`

	// Credentials is the shopper session read from Secret Manager in
	// production. Empty in development, where the session file is used.
	Credentials model.Session `koanf:"-"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

// APIConfig points at the storefront service.
type APIConfig struct {
	BaseURL     string        `koanf:"baseurl" validate:"required,url"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	Fingerprint string        `koanf:"fingerprint" validate:"oneof=go chrome"`
	Breaker     BreakerConfig `koanf:"breaker"`
}

// BreakerConfig controls the circuit breaker in front of the service.
type BreakerConfig struct {
	Failures    uint32        `koanf:"failures" validate:"gt=0"`
	OpenTimeout time.Duration `koanf:"opentimeout" validate:"gt=0"`
}

// SearchConfig controls debounced search.
type SearchConfig struct {
	Debounce time.Duration `koanf:"debounce" validate:"gt=0"`
	// SequenceGuard drops search responses that arrive after a newer one.
	// Off restores last-arrival-wins.
	SequenceGuard bool `koanf:"sequenceguard"`
}

// SessionConfig locates the shopper's credentials.
type SessionConfig struct {
	File   string `koanf:"file"`
	Secret string `koanf:"secret"` // Secret Manager secret ID, production only
}

// GCPConfig holds Google Cloud settings (required in production).
type GCPConfig struct {
	Project string `koanf:"project"`
}

// GatewayConfig controls cmd/gateway.
type GatewayConfig struct {
	Port string `koanf:"port" validate:"required,numeric"`
}

// IsProduction reports whether the production environment is selected.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaults() map[string]any {
	return map[string]any{
		"environment":             "development",
		"log.level":               "info",
		"api.baseurl":             "http://localhost:8082/api/v1",
		"api.timeout":             "30s",
		"api.fingerprint":         "go",
		"api.breaker.failures":    5,
		"api.breaker.opentimeout": "30s",
		"search.debounce":         "500ms",
		"search.sequenceguard":    true,
		"session.file":            session.DefaultPath(),
		"gateway.port":            "8080",
	}
}

// Load reads configuration from defaults, file, .env and environment, then
// fetches production credentials. Returns an error if validation fails.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if err := loadFile(k); err != nil {
		return nil, err
	}

	if envFileMap, err := godotenv.Read(dotEnvFile); err == nil {
		envMap := make(map[string]any, len(envFileMap))
		for key, value := range envFileMap {
			if !strings.HasPrefix(key, envPrefix) {
				continue
			}
			envMap[envKey(key)] = value
		}
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			return nil, fmt.Errorf("loading %s: %w", dotEnvFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", dotEnvFile, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.IsProduction() && cfg.Session.Secret != "" {
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading credentials: %w", err)
		}
	}

	return cfg, nil
}

// loadFile loads the YAML config file. The default file may be absent; an
// explicitly named one may not.
func loadFile(k *koanf.Koanf) error {
	path, explicit := os.LookupEnv(configFileEnv)
	if !explicit || path == "" {
		path = defaultConfigFile
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// envKey maps STOREFRONT_API_BREAKER_FAILURES to api.breaker.failures.
func envKey(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}

// loadFromSecretManager fetches the shopper credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCP.Project, c.Session.Secret)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.parseCredentials(result.Payload.Data)
}

// parseCredentials decodes {"token": "...", "username": "..."}.
func (c *Config) parseCredentials(data []byte) error {
	var creds model.Session
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	if creds.Token == "" {
		return fmt.Errorf("secret has no token")
	}
	c.Credentials = creds
	return nil
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// validate checks field constraints and cross-field rules.
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.IsProduction() && c.GCP.Project == "" {
		return fmt.Errorf("gcp.project required in production environment")
	}
	return nil
}
