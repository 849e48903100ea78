package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Agent     AgentConfig               `json:"agent" yaml:"agent"`
	Device    DeviceConfig              `json:"device" yaml:"device"`
	Memory    MemoryConfig              `json:"memory" yaml:"memory"`
	Policy    PolicyConfig              `json:"policy" yaml:"policy"`
}

type AppConfig struct {
	Name      string `json:"name" yaml:"name"`
	Workspace string `json:"workspace" yaml:"workspace"`
	// Provider selects an entry of Providers. Empty picks the first enabled one.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	LogDir   string `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	ChatID  string `json:"chat_id" yaml:"chat_id"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Vision marks models that accept screenshots.
	Vision  bool `json:"vision,omitempty" yaml:"vision,omitempty"`
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type AgentConfig struct {
	MaxSteps       int      `json:"max_steps" yaml:"max_steps"`
	HistoryLimit   int      `json:"history_limit" yaml:"history_limit"`
	HistoryMaxAge  Duration `json:"history_max_age,omitempty" yaml:"history_max_age,omitempty"`
	RetryAttempts  int      `json:"retry_attempts" yaml:"retry_attempts"`
	RetryBaseDelay Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	RetryIncrement Duration `json:"retry_increment" yaml:"retry_increment"`
	PromptsDir     string   `json:"prompts_dir,omitempty" yaml:"prompts_dir,omitempty"`
}

type DeviceConfig struct {
	Platform      string   `json:"platform" yaml:"platform"`
	Headless      *bool    `json:"headless,omitempty" yaml:"headless,omitempty"`
	StartURL      string   `json:"start_url,omitempty" yaml:"start_url,omitempty"`
	Screenshot    bool     `json:"screenshot" yaml:"screenshot"`
	Display       string   `json:"display,omitempty" yaml:"display,omitempty"`
	ActionTimeout Duration `json:"action_timeout,omitempty" yaml:"action_timeout,omitempty"`
}

// IsHeadless defaults to true when unset.
func (d DeviceConfig) IsHeadless() bool {
	return d.Headless == nil || *d.Headless
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

type PolicyConfig struct {
	DeniedTools    []string `json:"denied_tools,omitempty" yaml:"denied_tools,omitempty"`
	DeniedPatterns []string `json:"denied_patterns,omitempty" yaml:"denied_patterns,omitempty"`
}

// Duration accepts "1m30s" style strings or integer seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case nil:
		d.Duration = 0
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		d.Duration = parsed
	case int:
		d.Duration = time.Duration(val) * time.Second
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// LoadConfig reads a JSON or YAML (.yaml, .yml) config file. Environment
// variables in the file are expanded before decoding.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "uipilot"
	}
	if c.App.LogDir == "" {
		c.App.LogDir = "logs"
	}
	if c.Agent.MaxSteps <= 0 {
		c.Agent.MaxSteps = 10
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = 10
	}
	if c.Agent.RetryAttempts <= 0 {
		c.Agent.RetryAttempts = 3
	}
	if c.Agent.RetryBaseDelay.Duration <= 0 {
		c.Agent.RetryBaseDelay.Duration = time.Second
	}
	if c.Agent.RetryIncrement.Duration <= 0 {
		c.Agent.RetryIncrement.Duration = time.Second
	}
	if c.Device.Platform == "" {
		c.Device.Platform = "web"
	}
	if c.Memory.Type == "" {
		c.Memory.Type = "sqlite"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "uipilot.db"
	}
}

func (c *Config) Validate() error {
	switch c.Device.Platform {
	case "web", "desktop":
	default:
		return fmt.Errorf("unknown device platform %q", c.Device.Platform)
	}
	if c.Memory.Type != "sqlite" {
		return fmt.Errorf("unsupported memory type %q", c.Memory.Type)
	}
	if c.App.Provider != "" {
		if _, ok := c.Providers[c.App.Provider]; !ok {
			return fmt.Errorf("provider %q is not configured", c.App.Provider)
		}
	}
	return nil
}

// GetDefaultProvider returns the selected provider, or the first enabled one by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	if c.App.Provider != "" {
		return c.App.Provider, c.Providers[c.App.Provider]
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
