package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/perbu/esxiops/gateway"
	"github.com/perbu/esxiops/plan"
	"github.com/perbu/esxiops/remote"
	"github.com/perbu/esxiops/tools"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration. Durations are given in
// seconds.
type Config struct {
	ESXi struct {
		Host       string  `yaml:"host"`
		User       string  `yaml:"user"`
		Password   string  `yaml:"password"`
		SSHPort    int     `yaml:"ssh_port"`
		SSHTimeout float64 `yaml:"ssh_timeout"`
		KnownHosts string  `yaml:"known_hosts"`
	} `yaml:"esxi"`
	Gemini struct {
		APIKey            string  `yaml:"api_key"`
		Model             string  `yaml:"model"`
		MaxRetries        int     `yaml:"max_retries"`
		RetryDelay        float64 `yaml:"retry_delay"`
		RequestsPerMinute float64 `yaml:"requests_per_minute"`
	} `yaml:"gemini"`
	Defaults struct {
		VMName           string  `yaml:"vm_name"`
		SnapshotName     string  `yaml:"snapshot_name"`
		SnapshotMemory   bool    `yaml:"snapshot_memory"`
		SnapshotQuiesce  bool    `yaml:"snapshot_quiesce"`
		PowerSettleDelay float64 `yaml:"power_settle_delay"`
	} `yaml:"defaults"`
	Prompts struct {
		System string `yaml:"system"`
	} `yaml:"prompts"`
}

// defaultConfig returns the configuration used when neither the file nor
// the environment sets a value.
func defaultConfig() *Config {
	var cfg Config
	cfg.ESXi.SSHPort = 22
	cfg.ESXi.SSHTimeout = 10
	cfg.Gemini.Model = "gemini-2.0-flash"
	cfg.Gemini.MaxRetries = 3
	cfg.Gemini.RetryDelay = 2
	cfg.Defaults.VMName = "ubuntu01"
	cfg.Defaults.SnapshotName = "AutoSnap"
	cfg.Defaults.PowerSettleDelay = 5
	return &cfg
}

// loadConfig loads the configuration from a YAML file on top of the
// defaults. A missing file is not an error unless required is set.
func loadConfig(path string, required bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// envOverrides lists the environment variables that override the file.
// Unset variables stay nil.
type envOverrides struct {
	Host              *string  `mapstructure:"ESXI_HOST"`
	User              *string  `mapstructure:"ESXI_USER"`
	Password          *string  `mapstructure:"ESXI_PASS"`
	SSHPort           *int     `mapstructure:"ESXI_SSH_PORT"`
	SSHTimeout        *float64 `mapstructure:"ESXI_SSH_TIMEOUT"`
	KnownHosts        *string  `mapstructure:"ESXI_KNOWN_HOSTS"`
	GeminiAPIKey      *string  `mapstructure:"GEMINI_API_KEY"`
	GoogleAPIKey      *string  `mapstructure:"GOOGLE_API_KEY"`
	Model             *string  `mapstructure:"GEMINI_MODEL"`
	MaxRetries        *int     `mapstructure:"GEMINI_MAX_RETRIES"`
	RetryDelay        *float64 `mapstructure:"GEMINI_RETRY_DELAY"`
	RequestsPerMinute *float64 `mapstructure:"GEMINI_REQUESTS_PER_MINUTE"`
	VMName            *string  `mapstructure:"DEFAULT_VM_NAME"`
	SnapshotName      *string  `mapstructure:"DEFAULT_SNAPSHOT_NAME"`
	SnapshotMemory    *bool    `mapstructure:"SNAPSHOT_MEMORY"`
	SnapshotQuiesce   *bool    `mapstructure:"SNAPSHOT_QUIESCE"`
	PowerSettleDelay  *float64 `mapstructure:"POWER_SETTLE_DELAY"`
	SystemPrompt      *string  `mapstructure:"SYSTEM_PROMPT"`
}

// applyEnv overrides cfg with the variables present in environ, given in
// os.Environ form.
func (c *Config) applyEnv(environ []string) error {
	vars := make(map[string]any)
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	var env envOverrides
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &env,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(vars); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	set(&c.ESXi.Host, env.Host)
	set(&c.ESXi.User, env.User)
	set(&c.ESXi.Password, env.Password)
	set(&c.ESXi.SSHPort, env.SSHPort)
	set(&c.ESXi.SSHTimeout, env.SSHTimeout)
	set(&c.ESXi.KnownHosts, env.KnownHosts)
	set(&c.Gemini.APIKey, env.GoogleAPIKey)
	set(&c.Gemini.APIKey, env.GeminiAPIKey)
	set(&c.Gemini.Model, env.Model)
	set(&c.Gemini.MaxRetries, env.MaxRetries)
	set(&c.Gemini.RetryDelay, env.RetryDelay)
	set(&c.Gemini.RequestsPerMinute, env.RequestsPerMinute)
	set(&c.Defaults.VMName, env.VMName)
	set(&c.Defaults.SnapshotName, env.SnapshotName)
	set(&c.Defaults.SnapshotMemory, env.SnapshotMemory)
	set(&c.Defaults.SnapshotQuiesce, env.SnapshotQuiesce)
	set(&c.Defaults.PowerSettleDelay, env.PowerSettleDelay)
	set(&c.Prompts.System, env.SystemPrompt)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// validate reports every missing required setting at once, along with
// values that cannot work.
func (c *Config) validate() error {
	var missing []string
	for _, req := range []struct{ name, value string }{
		{"ESXI_HOST", c.ESXi.Host},
		{"ESXI_USER", c.ESXi.User},
		{"ESXI_PASS", c.ESXi.Password},
		{"GEMINI_API_KEY", c.Gemini.APIKey},
	} {
		if strings.TrimSpace(req.value) == "" {
			missing = append(missing, req.name)
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}
	if c.ESXi.SSHPort < 1 || c.ESXi.SSHPort > 65535 {
		errs = append(errs, fmt.Errorf("ssh port %d out of range", c.ESXi.SSHPort))
	}
	if c.ESXi.SSHTimeout <= 0 {
		errs = append(errs, errors.New("ssh timeout must be positive"))
	}
	if c.Gemini.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max retries must be at least 1, got %d", c.Gemini.MaxRetries))
	}
	if c.Gemini.RetryDelay < 0 || c.Defaults.PowerSettleDelay < 0 || c.Gemini.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("delays and rate limits must not be negative"))
	}
	return errors.Join(errs...)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c *Config) remoteSettings() remote.Settings {
	return remote.Settings{
		Host:           c.ESXi.Host,
		Port:           c.ESXi.SSHPort,
		User:           c.ESXi.User,
		Password:       c.ESXi.Password,
		Timeout:        seconds(c.ESXi.SSHTimeout),
		KnownHostsFile: c.ESXi.KnownHosts,
	}
}

func (c *Config) gatewaySettings(systemPrompt string) gateway.Settings {
	return gateway.Settings{
		SystemPrompt:      systemPrompt,
		MaxAttempts:       c.Gemini.MaxRetries,
		RetryDelay:        seconds(c.Gemini.RetryDelay),
		RequestsPerMinute: c.Gemini.RequestsPerMinute,
	}
}

func (c *Config) toolSettings() tools.Settings {
	return tools.Settings{
		SettleDelay:     seconds(c.Defaults.PowerSettleDelay),
		SnapshotMemory:  c.Defaults.SnapshotMemory,
		SnapshotQuiesce: c.Defaults.SnapshotQuiesce,
	}
}

func (c *Config) planDefaults() plan.Defaults {
	return plan.Defaults{
		VMName:       c.Defaults.VMName,
		SnapshotName: c.Defaults.SnapshotName,
	}
}
