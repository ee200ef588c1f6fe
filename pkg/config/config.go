package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

// DefaultPath is read when no config file is given and it exists.
const DefaultPath = "empire.yaml"

// Config is the complete tool configuration.
type Config struct {
	ContentAPI ContentAPIConfig `yaml:"content_api"`
	Fixtures   FixturesConfig   `yaml:"fixtures"`
	Seed       SeedConfig       `yaml:"seed"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Receiver   ReceiverConfig   `yaml:"receiver"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

// ContentAPIConfig points at the content store.
type ContentAPIConfig struct {
	// URL is the content store root, without the /api prefix.
	URL string `yaml:"url" env:"STRAPI_URL" validate:"required,url"`

	// Token is the API token. Only commands that talk to the API require it.
	Token string `yaml:"token" env:"STRAPI_API_TOKEN"`

	// Timeout bounds each request. Zero leaves requests to the transport
	// defaults.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// FixturesConfig locates recipe and pack fixtures.
type FixturesConfig struct {
	// Dir holds one directory per site, named after the domain with dots
	// replaced by dashes.
	Dir string `yaml:"dir" env:"EMPIRE_FIXTURES_DIR" validate:"required"`

	// Catalog is an optional site catalog file. Empty selects the built-in one.
	Catalog string `yaml:"catalog"`

	WatchDebounce time.Duration `yaml:"watch_debounce" validate:"gte=0"`
}

// SeedConfig tunes the seed pipeline.
type SeedConfig struct {
	Fallback string `yaml:"fallback" validate:"oneof=always conflict"`
}

// NotifierConfig configures change notifications.
type NotifierConfig struct {
	WebhookURL   string        `yaml:"webhook_url" env:"GITHUB_WEBHOOK_URL" validate:"omitempty,url"`
	WebhookToken string        `yaml:"webhook_token" env:"GITHUB_WEBHOOK_TOKEN" validate:"required_with=WebhookURL"`
	EventType    string        `yaml:"event_type" validate:"required"`
	Delay        time.Duration `yaml:"delay" validate:"gt=0"`
}

// ReceiverConfig configures the lifecycle webhook listener.
type ReceiverConfig struct {
	Listen string   `yaml:"listen" validate:"required"`
	Secret string   `yaml:"secret" env:"EMPIRE_WEBHOOK_SECRET"`
	Models []string `yaml:"models" validate:"dive,required"`
}

// LedgerConfig configures the run ledger. An empty path disables it.
type LedgerConfig struct {
	Path string `yaml:"path" env:"EMPIRE_LEDGER_PATH"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		ContentAPI: ContentAPIConfig{
			URL: "http://localhost:1337",
		},
		Fixtures: FixturesConfig{
			Dir:           "../protein-empire/data/recipes",
			WatchDebounce: 500 * time.Millisecond,
		},
		Seed: SeedConfig{
			Fallback: "always",
		},
		Notifier: NotifierConfig{
			EventType: "strapi-content-update",
			Delay:     5 * time.Second,
		},
		Receiver: ReceiverConfig{
			Listen: ":8080",
			Models: []string{"recipe", "recipe-pack", "category", "site"},
		},
		Ledger: LedgerConfig{
			Path: "empire.db",
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the config file and the
// environment, in that order. An empty path reads DefaultPath if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.Merge(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Environ()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge decodes YAML over the current values. Keys that are absent keep
// their current value.
func (c *Config) Merge(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from the variables named by the env struct
// tags. environ is in os.Environ form; blank values are ignored.
func (c *Config) ApplyEnv(environ []string) error {
	vars := make(map[string]string, len(environ))
	for key, value := range env.ToMap(environ) {
		if value = strings.TrimSpace(value); value != "" {
			vars[key] = value
		}
	}
	if err := env.ParseWithOptions(c, env.Options{Environment: vars}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks struct constraints and the telemetry settings.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}

// RequireContentToken reports an error when no API token is configured.
func (c *Config) RequireContentToken() error {
	if strings.TrimSpace(c.ContentAPI.Token) == "" {
		return errors.New("STRAPI_API_TOKEN is required (set it in the environment or content_api.token)")
	}
	return nil
}
