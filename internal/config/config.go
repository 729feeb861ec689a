// ABOUTME: YAML configuration: provider credentials, tenant overrides, loop tuning
// ABOUTME: Tenant-scoped settings take precedence over process-wide defaults

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/deskhand/deskhand/pkg/ai"
)

// DefaultSearchPaths returns the config file search order. An explicit path
// (from the -config flag) is checked first by FindConfig; then ./config.yaml,
// ~/.config/deskhand/config.yaml, /etc/deskhand/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "deskhand", "config.yaml"))
	}

	paths = append(paths, "/etc/deskhand/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist;
// otherwise the first existing search path wins.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all deskhand configuration.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Tenants   map[string]TenantConfig   `yaml:"tenants"`
	Agent     AgentConfig               `yaml:"agent"`
	EventLog  string                    `yaml:"event_log"`
	LogLevel  string                    `yaml:"log_level"`
}

// ProviderConfig holds one provider's credentials and default model. An empty
// API key defers to the provider's environment-variable fallback.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// TenantConfig carries per-tenant provider overrides.
type TenantConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	ImagesToKeep int     `yaml:"images_to_keep"`
	StallLimit   int     `yaml:"stall_limit"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	DaemonPort   int     `yaml:"daemon_port"`
	// SystemSuffix is appended to the default system prompt.
	SystemSuffix string `yaml:"system_suffix"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default builds a config with no credentials and standard tuning, used when
// no config file exists and env vars carry the keys.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.EventLog == "" {
		c.EventLog = "deskhand.db"
	}
	if c.Agent.ImagesToKeep == 0 {
		c.Agent.ImagesToKeep = 4
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = 4096
	}
	if c.Agent.DaemonPort == 0 {
		c.Agent.DaemonPort = 8088
	}
}

// ProviderFor resolves one provider's settings for a tenant: the tenant
// override wins field by field over the process default.
func (c *Config) ProviderFor(tenant string, provider ai.Provider) ProviderConfig {
	base := c.Providers[string(provider)]

	if tenant != "" {
		if t, ok := c.Tenants[tenant]; ok {
			if override, ok := t.Providers[string(provider)]; ok {
				if override.APIKey != "" {
					base.APIKey = override.APIKey
				}
				if override.BaseURL != "" {
					base.BaseURL = override.BaseURL
				}
				if override.Model != "" {
					base.Model = override.Model
				}
			}
		}
	}

	return base
}

// CredentialsFor resolves the ai.Credentials for a tenant and provider.
func (c *Config) CredentialsFor(tenant string, provider ai.Provider) ai.Credentials {
	p := c.ProviderFor(tenant, provider)
	return ai.Credentials{APIKey: p.APIKey, BaseURL: p.BaseURL}
}
