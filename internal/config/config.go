// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Defaults applied when a setting is absent.
const (
	DefaultPort               = "8080"
	DefaultMinContactLength   = 5
	DefaultSubmitTimeout      = 15 * time.Second
	DefaultSessionIdleTimeout = 30 * time.Minute
)

// Config holds all service configuration.
// Environment determines whether the backend API key loads from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port           string
	Environment    string // "development" or "production"
	LogLevel       string // "debug", "info", "warn", "error"
	AllowedOrigins []string

	// GCP settings (required in production)
	GCPProject string
	SecretID   string

	Backend  BackendConfig
	Checkout CheckoutConfig
}

// BackendConfig locates the shop backend serving products and taking orders.
type BackendConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key,omitempty"`

	// BrowserTLS sends backend requests with a Chrome TLS fingerprint.
	BrowserTLS bool `json:"browser_tls,omitempty"`
}

// CheckoutConfig tunes the checkout flow of every session.
type CheckoutConfig struct {
	MinContactLength   int
	SubmitTimeout      time.Duration
	SessionIdleTimeout time.Duration
	Currency           string // appended to amounts in button labels, e.g. "TJS"
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:           envOrDefault("PORT", DefaultPort),
		Environment:    envOrDefault("ENVIRONMENT", "development"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(os.Getenv("CORS_ORIGINS")),
		GCPProject:     os.Getenv("GCP_PROJECT"),
		SecretID:       os.Getenv("SECRET_ID"),
		Backend: BackendConfig{
			URL:    os.Getenv("BACKEND_URL"),
			APIKey: os.Getenv("BACKEND_API_KEY"),
		},
		Checkout: CheckoutConfig{
			Currency: os.Getenv("CURRENCY_LABEL"),
		},
	}

	var err error
	if cfg.Backend.BrowserTLS, err = envBool("BROWSER_TLS"); err != nil {
		return nil, err
	}
	if cfg.Checkout.MinContactLength, err = envInt("MIN_CONTACT_LENGTH", DefaultMinContactLength); err != nil {
		return nil, err
	}
	if cfg.Checkout.SubmitTimeout, err = envDuration("SUBMIT_TIMEOUT", DefaultSubmitTimeout); err != nil {
		return nil, err
	}
	if cfg.Checkout.SessionIdleTimeout, err = envDuration("SESSION_IDLE_TIMEOUT", DefaultSessionIdleTimeout); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.SecretID == "" {
			return nil, fmt.Errorf("SECRET_ID required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading backend API key: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port           string        `json:"port"`
		Environment    string        `json:"environment"`
		LogLevel       string        `json:"log_level"`
		AllowedOrigins []string      `json:"allowed_origins"`
		Backend        BackendConfig `json:"backend"`
		Checkout       struct {
			MinContactLength   int    `json:"min_contact_length"`
			SubmitTimeout      string `json:"submit_timeout"`
			SessionIdleTimeout string `json:"session_idle_timeout"`
			Currency           string `json:"currency"`
		} `json:"checkout"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:           withDefault(fileConfig.Port, DefaultPort),
		Environment:    withDefault(fileConfig.Environment, "development"),
		LogLevel:       withDefault(fileConfig.LogLevel, "info"),
		AllowedOrigins: fileConfig.AllowedOrigins,
		Backend:        fileConfig.Backend,
		Checkout: CheckoutConfig{
			MinContactLength: fileConfig.Checkout.MinContactLength,
			Currency:         fileConfig.Checkout.Currency,
		},
	}
	if cfg.Checkout.MinContactLength == 0 {
		cfg.Checkout.MinContactLength = DefaultMinContactLength
	}
	if cfg.Checkout.SubmitTimeout, err = parseDuration("submit_timeout", fileConfig.Checkout.SubmitTimeout, DefaultSubmitTimeout); err != nil {
		return nil, err
	}
	if cfg.Checkout.SessionIdleTimeout, err = parseDuration("session_idle_timeout", fileConfig.Checkout.SessionIdleTimeout, DefaultSessionIdleTimeout); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// secretReader fetches the payload of a secret version. Swapped in tests.
var secretReader = accessSecret

// loadFromSecretManager fetches the backend API key from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretID)

	data, err := secretReader(ctx, secretName)
	if err != nil {
		return err
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return fmt.Errorf("secret %s is empty", secretName)
	}
	c.Backend.APIKey = key
	return nil
}

func accessSecret(ctx context.Context, name string) ([]byte, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("accessing secret %s: %w", name, err)
	}
	return result.Payload.Data, nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url is required (BACKEND_URL)")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url %q: must be an absolute http(s) URL", c.Backend.URL)
	}

	if c.Checkout.MinContactLength < 1 {
		return fmt.Errorf("min contact length must be positive, got %d", c.Checkout.MinContactLength)
	}
	if c.Checkout.SubmitTimeout <= 0 {
		return fmt.Errorf("submit timeout must be positive, got %s", c.Checkout.SubmitTimeout)
	}
	if c.Checkout.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive, got %s", c.Checkout.SessionIdleTimeout)
	}
	return nil
}

// BackendBaseURL returns the backend URL without a trailing slash.
func (c *Config) BackendBaseURL() string {
	return strings.TrimSuffix(c.Backend.URL, "/")
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envBool(key string) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	return parseDuration(key, os.Getenv(key), defaultVal)
}

// parseDuration accepts Go durations ("15s") and bare seconds ("15").
func parseDuration(name, val string, defaultVal time.Duration) (time.Duration, error) {
	if val == "" {
		return defaultVal, nil
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
