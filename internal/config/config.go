package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all autoapprove configuration.
type Config struct {
	// Core settings
	Name string `yaml:"name"`

	// Platform API access
	Connect ConnectConfig `yaml:"connect"`

	// Request handling toggles
	Extension ExtensionConfig `yaml:"extension"`

	// Event listener
	Server ServerConfig `yaml:"server"`

	// Processed-request ledger
	Ledger LedgerConfig `yaml:"ledger"`

	// Legacy batch reprocessing
	Reprocess ReprocessConfig `yaml:"reprocess"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ConnectConfig configures the platform REST client.
type ConnectConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// ExtensionConfig configures what the handler does to each request.
type ExtensionConfig struct {
	AssignLicense        bool   `yaml:"assign_license"`
	LicenseParam         string `yaml:"license_param"`
	SynthesizeParameters bool   `yaml:"synthesize_parameters"`
	ApproveCancellations bool   `yaml:"approve_cancellations"`
	DryRun               bool   `yaml:"dry_run"`

	// Product id -> template id. Skips template lookup for listed products.
	TemplateOverrides map[string]string `yaml:"template_overrides"`

	// Seed for parameter synthesis; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// ServerConfig configures the HTTP event listener.
type ServerConfig struct {
	Listen          string `yaml:"listen"`
	Token           string `yaml:"token"` // bearer token expected from the host runtime; empty disables the check
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LedgerConfig configures the SQLite ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ReprocessConfig configures the batch reprocessor.
type ReprocessConfig struct {
	Concurrency int      `yaml:"concurrency"`
	PageSize    int      `yaml:"page_size"`
	ProductIDs  []string `yaml:"product_ids"`
}

// DefaultLicenseParam is the parameter the license key is written to.
const DefaultLicenseParam = "volume_license"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "connect-autoapprove",

		Connect: ConnectConfig{
			BaseURL: "https://api.connect.cloudblue.com/public/v1",
			Timeout: "30s",
		},

		Extension: ExtensionConfig{
			AssignLicense:        true,
			LicenseParam:         DefaultLicenseParam,
			SynthesizeParameters: false,
			ApproveCancellations: true,
		},

		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: "10s",
		},

		Ledger: LedgerConfig{
			Enabled: true,
			Path:    "data/ledger.db",
		},

		Reprocess: ReprocessConfig{
			Concurrency: 4,
			PageSize:    100,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if config file doesn't exist
		data = nil
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	if cfg.Extension.LicenseParam == "" {
		cfg.Extension.LicenseParam = DefaultLicenseParam
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("CONNECT_API_KEY"); key != "" {
		c.Connect.APIKey = key
	}
	if u := os.Getenv("CONNECT_API_URL"); u != "" {
		c.Connect.BaseURL = u
	}
	if path := os.Getenv("AUTOAPPROVE_LEDGER"); path != "" {
		c.Ledger.Path = path
	}
	if addr := os.Getenv("AUTOAPPROVE_LISTEN"); addr != "" {
		c.Server.Listen = addr
	}
	if token := os.Getenv("AUTOAPPROVE_TOKEN"); token != "" {
		c.Server.Token = token
	}
	if v := os.Getenv("AUTOAPPROVE_DRY_RUN"); v != "" {
		if dry, err := strconv.ParseBool(v); err == nil {
			c.Extension.DryRun = dry
		}
	}
}

// GetConnectTimeout returns the API client timeout as a duration.
func (c *Config) GetConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.Connect.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetShutdownTimeout returns the server shutdown grace period as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Connect.APIKey == "" {
		return fmt.Errorf("platform API key not configured (set connect.api_key or CONNECT_API_KEY)")
	}

	u, err := url.Parse(c.Connect.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid platform base URL: %q", c.Connect.BaseURL)
	}

	if c.Reprocess.Concurrency < 1 {
		return fmt.Errorf("reprocess.concurrency must be at least 1, got %d", c.Reprocess.Concurrency)
	}
	if c.Reprocess.PageSize < 1 {
		return fmt.Errorf("reprocess.page_size must be at least 1, got %d", c.Reprocess.PageSize)
	}

	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger enabled but ledger.path is empty")
	}

	for product, template := range c.Extension.TemplateOverrides {
		if product == "" || template == "" {
			return fmt.Errorf("template override %q -> %q has an empty side", product, template)
		}
	}

	return nil
}
