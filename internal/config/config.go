package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the workspace root.
const FileName = "vista.yml"

// Defaults applied by Validate.
const (
	DefaultVersion       = "1.0"
	DefaultInstance      = "default"
	DefaultRedisURL      = "redis://localhost:6379/0"
	DefaultSurfaceAddr   = "127.0.0.1:7341"
	DefaultHealthAddr    = "127.0.0.1:7342"
	DefaultThrottleDelay = 500 * time.Millisecond
	DefaultOpenTimeout   = 10 * time.Second
	DefaultCallTimeout   = 30 * time.Second
)

// Environment variables that override file settings.
const (
	EnvInstance    = "VISTA_INSTANCE_NAME"
	EnvRedisURL    = "REDIS_URL"
	EnvSurfaceAddr = "VISTA_SURFACE_ADDR"
)

// Plugin kinds.
const (
	KindCommand = "command"
	KindChannel = "channel"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// VistaConfig represents the top-level vista.yml configuration
type VistaConfig struct {
	Version  string            `yaml:"version"`
	Instance string            `yaml:"instance,omitempty"`
	Redis    *RedisConfig      `yaml:"redis,omitempty"`
	Surface  *SurfaceConfig    `yaml:"surface,omitempty"`
	Health   *HealthConfig     `yaml:"health,omitempty"`
	Defaults *PluginDefaults   `yaml:"defaults,omitempty"`
	Plugins  map[string]Plugin `yaml:"plugins,omitempty"`

	// Compiler, when set, is run with a document on stdin and must print
	// the compiled module. Command plugins receive it base64 encoded.
	Compiler []string `yaml:"compiler,omitempty"`
}

// RedisConfig locates the Redis server used by channel plugins and the
// snapshot store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SurfaceConfig configures the renderer hub.
type SurfaceConfig struct {
	Addr        string        `yaml:"addr"`
	OpenTimeout time.Duration `yaml:"open_timeout,omitempty"`
}

// HealthConfig configures the health and metrics server.
type HealthConfig struct {
	Addr     string `yaml:"addr"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// PluginDefaults are applied to plugins that do not set their own values.
type PluginDefaults struct {
	ThrottleDelay time.Duration `yaml:"throttle_delay,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
}

// Plugin describes how to address and launch one plugin.
type Plugin struct {
	// ID is taken from the plugins map key or the plugin directory name.
	ID               string        `yaml:"-"`
	Name             string        `yaml:"name,omitempty"`
	Kind             string        `yaml:"kind,omitempty"`
	Command          []string      `yaml:"command,omitempty"`
	Image            string        `yaml:"image,omitempty"`
	Dir              string        `yaml:"dir,omitempty"`
	DocumentSelector []string      `yaml:"document_selector,omitempty"`
	Debug            bool          `yaml:"debug,omitempty"`
	InspectPort      int           `yaml:"inspect_port,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`
	ThrottleDelay    time.Duration `yaml:"throttle_delay,omitempty"`
}

// Default returns a validated configuration with no plugins, used when the
// workspace has no vista.yml.
func Default() *VistaConfig {
	c := &VistaConfig{Version: DefaultVersion}
	c.ApplyEnv()
	// Defaults always validate.
	_ = c.Validate()
	return c
}

// ApplyEnv overrides file settings with environment variables.
func (c *VistaConfig) ApplyEnv() {
	if v := os.Getenv(EnvInstance); v != "" {
		c.Instance = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = v
	}
	if v := os.Getenv(EnvSurfaceAddr); v != "" {
		if c.Surface == nil {
			c.Surface = &SurfaceConfig{}
		}
		c.Surface.Addr = v
	}
}

// Validate performs strict validation on the configuration and fills in
// defaults for everything left out.
func (c *VistaConfig) Validate() error {
	if c.Version != DefaultVersion {
		return fmt.Errorf("unsupported version: %s (expected: %s)", c.Version, DefaultVersion)
	}

	if c.Instance == "" {
		c.Instance = DefaultInstance
	}
	if !idPattern.MatchString(c.Instance) {
		return fmt.Errorf("invalid instance name: %s", c.Instance)
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = DefaultRedisURL
	}

	if c.Surface == nil {
		c.Surface = &SurfaceConfig{}
	}
	if c.Surface.Addr == "" {
		c.Surface.Addr = DefaultSurfaceAddr
	}
	if c.Surface.OpenTimeout < 0 {
		return fmt.Errorf("surface.open_timeout must be >= 0, got %s", c.Surface.OpenTimeout)
	}
	if c.Surface.OpenTimeout == 0 {
		c.Surface.OpenTimeout = DefaultOpenTimeout
	}

	if c.Health == nil {
		c.Health = &HealthConfig{}
	}
	if c.Health.Addr == "" {
		c.Health.Addr = DefaultHealthAddr
	}

	if c.Defaults == nil {
		c.Defaults = &PluginDefaults{}
	}
	if c.Defaults.ThrottleDelay < 0 {
		return fmt.Errorf("defaults.throttle_delay must be >= 0, got %s", c.Defaults.ThrottleDelay)
	}
	if c.Defaults.Timeout < 0 {
		return fmt.Errorf("defaults.timeout must be >= 0, got %s", c.Defaults.Timeout)
	}
	if c.Defaults.ThrottleDelay == 0 {
		c.Defaults.ThrottleDelay = DefaultThrottleDelay
	}
	if c.Defaults.Timeout == 0 {
		c.Defaults.Timeout = DefaultCallTimeout
	}

	for id, p := range c.Plugins {
		p.ID = id
		if err := p.Validate(*c.Defaults); err != nil {
			return err
		}
		c.Plugins[id] = p
	}
	return nil
}

// PluginList returns the configured plugins ordered by id.
func (c *VistaConfig) PluginList() []Plugin {
	out := make([]Plugin, 0, len(c.Plugins))
	for _, p := range c.Plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate performs validation on a single plugin configuration and
// applies defaults.
func (p *Plugin) Validate(defaults PluginDefaults) error {
	if !idPattern.MatchString(p.ID) {
		return fmt.Errorf("invalid plugin id '%s': must match %s", p.ID, idPattern)
	}

	if p.Kind == "" {
		p.Kind = KindCommand
	}
	switch p.Kind {
	case KindCommand:
		if len(p.Command) == 0 {
			return fmt.Errorf("plugin '%s': command is required", p.ID)
		}
		if p.Image != "" {
			return fmt.Errorf("plugin '%s': image is only valid for channel plugins", p.ID)
		}
	case KindChannel:
		if len(p.Command) > 0 && p.Image != "" {
			return fmt.Errorf("plugin '%s': set either command or image, not both", p.ID)
		}
	default:
		return fmt.Errorf("plugin '%s': invalid kind: %s (must be '%s' or '%s')", p.ID, p.Kind, KindCommand, KindChannel)
	}

	for _, pattern := range p.DocumentSelector {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("plugin '%s': invalid document selector %q: %w", p.ID, pattern, err)
		}
	}

	if p.InspectPort < 0 || p.InspectPort > 65535 {
		return fmt.Errorf("plugin '%s': invalid inspect_port: %d", p.ID, p.InspectPort)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("plugin '%s': timeout must be >= 0, got %s", p.ID, p.Timeout)
	}
	if p.ThrottleDelay < 0 {
		return fmt.Errorf("plugin '%s': throttle_delay must be >= 0, got %s", p.ID, p.ThrottleDelay)
	}
	if p.Timeout == 0 {
		p.Timeout = defaults.Timeout
	}
	if p.ThrottleDelay == 0 {
		p.ThrottleDelay = defaults.ThrottleDelay
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	return nil
}

// Matches reports whether the plugin handles the document at filePath.
// A plugin without a selector handles every document.
func (p *Plugin) Matches(filePath string) bool {
	if len(p.DocumentSelector) == 0 {
		return true
	}
	base := path.Base(filePath)
	for _, pattern := range p.DocumentSelector {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
		if ok, _ := path.Match(pattern, filePath); ok {
			return true
		}
	}
	return false
}

// Load reads and validates vista.yml from the specified path
func Load(path string) (*VistaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config VistaConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path, falling back to Default when it does not exist.
func LoadOrDefault(path string) (*VistaConfig, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadPlugin reads a plugin.yml manifest. The id comes from the caller,
// usually the name of the directory holding the manifest.
func LoadPlugin(path, id string, defaults PluginDefaults) (*Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin manifest: %w", err)
	}

	var p Plugin
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	p.ID = id
	if err := p.Validate(defaults); err != nil {
		return nil, fmt.Errorf("invalid plugin manifest: %w", err)
	}
	return &p, nil
}
