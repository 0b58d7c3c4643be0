// Package config provides configuration management for topomap.
//
// Config file locations (priority order):
//  1. $TOPOMAP_CONFIG
//  2. ./topomap.yaml
//  3. $XDG_CONFIG_HOME/topomap/config.yaml
//  4. ~/.config/topomap/config.yaml
//  5. /etc/topomap/config.yaml
//
// Values from the file are layered over DefaultConfig. Command-line flags and
// TOPOMAP_* environment variables are applied on top with ApplyOverrides.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"topomap/internal/errors"
	"topomap/internal/logging"
	"topomap/internal/summary"
)

// DefaultDatabasePath is where snapshots are persisted when unconfigured
const DefaultDatabasePath = "./topomap.db"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file may carry an API key
	return os.WriteFile(path, data, configFilePerm)
}

// DefaultConfig returns sensible defaults for a home network
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Posture: PostureBalanced,
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Scan: ScanConfig{
			Targets:      []string{"192.168.1.0/24"},
			ChunkPrefix:  24,
			FaultBackoff: Duration(5 * time.Second),
			StopTimeout:  Duration(10 * time.Second),
			OSDetection:  true,
			ReverseDNS:   true,
			DNSTimeout:   Duration(3 * time.Second),
			RouteTable:   "/proc/net/route",
		},
		Summary: SummaryConfig{
			Enabled: true,
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   summary.DefaultModel,
			Retries: summary.DefaultRetries,
			Backoff: Duration(summary.DefaultBackoff),
			Timeout: Duration(2 * time.Minute),
		},
		Database: DatabaseConfig{Path: DefaultDatabasePath},
		Logging:  logging.DefaultConfig(),
	}
}

// applyDefaults fills in values a partial file left empty
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Posture == "" {
		c.Posture = PostureBalanced
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Scan.ChunkPrefix == 0 {
		c.Scan.ChunkPrefix = 24
	}
	if c.Summary.Retries == 0 {
		c.Summary.Retries = summary.DefaultRetries
	}
	if c.Logging.Level == "" {
		c.Logging.Level = logging.LevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = logging.FormatText
	}
}

// Validate checks field constraints and returns a VALIDATION error listing
// every offending field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Wrap(errors.CodeValidation, "invalid configuration", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return errors.Newf(errors.CodeValidation, "invalid configuration: %s", strings.Join(problems, "; ")).
		WithOp("config.validate")
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s (got %v)", field, fe.Tag(), fe.Value())
}

// EffectiveProfile returns the posture profile with explicit scan settings
// applied over it
func (c *Config) EffectiveProfile() ScanProfile {
	profile := c.Posture.GetProfile()

	if c.Scan.Timing != "" {
		profile.Timing = c.Scan.Timing
	}
	if c.Scan.Workers > 0 {
		profile.Workers = c.Scan.Workers
	}
	if c.Scan.CycleDelay > 0 {
		profile.CycleDelay = c.Scan.CycleDelay.Duration()
	}
	if c.Scan.ProbeTimeout > 0 {
		profile.ProbeTimeout = c.Scan.ProbeTimeout.Duration()
	}

	return profile
}

// UseLLM reports whether summaries come from the chat completion endpoint
func (c *Config) UseLLM() bool {
	return c.Summary.Enabled && c.Summary.APIKey != ""
}

// ApplyOverrides copies every key explicitly set in v (flag or environment)
// onto the config. Keys use the YAML paths, e.g. "scan.workers".
func (c *Config) ApplyOverrides(v *viper.Viper) {
	if v == nil {
		return
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	flag := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	dur := func(key string, dst *Duration) {
		if v.IsSet(key) {
			*dst = Duration(v.GetDuration(key))
		}
	}

	if v.IsSet("posture") {
		c.Posture = ParsePosture(v.GetString("posture"))
	}
	flag("dev", &c.Dev)

	str("server.addr", &c.Server.Addr)
	flag("server.autostart", &c.Server.AutoStart)

	if v.IsSet("scan.targets") {
		c.Scan.Targets = splitList(v.GetStringSlice("scan.targets"))
	}
	num("scan.chunk_prefix", &c.Scan.ChunkPrefix)
	num("scan.workers", &c.Scan.Workers)
	str("scan.timing", &c.Scan.Timing)
	dur("scan.cycle_delay", &c.Scan.CycleDelay)
	dur("scan.probe_timeout", &c.Scan.ProbeTimeout)
	flag("scan.os_detection", &c.Scan.OSDetection)
	flag("scan.privileged", &c.Scan.Privileged)
	str("scan.nmap_path", &c.Scan.NmapPath)
	flag("scan.reverse_dns", &c.Scan.ReverseDNS)
	if v.IsSet("scan.dns_servers") {
		c.Scan.DNSServers = splitList(v.GetStringSlice("scan.dns_servers"))
	}
	str("scan.vantage_ip", &c.Scan.VantageIP)
	str("scan.local_subnet", &c.Scan.LocalSubnet)
	str("scan.gateway", &c.Scan.Gateway)

	flag("summary.enabled", &c.Summary.Enabled)
	str("summary.base_url", &c.Summary.BaseURL)
	str("summary.model", &c.Summary.Model)
	str("summary.api_key", &c.Summary.APIKey)

	str("database.path", &c.Database.Path)

	if v.IsSet("logging.level") {
		c.Logging.Level = logging.LogLevel(v.GetString("logging.level"))
	}
	if v.IsSet("logging.format") {
		c.Logging.Format = logging.LogFormat(v.GetString("logging.format"))
	}
	str("logging.output", &c.Logging.Output)
}

// splitList flattens comma separated entries, as environment variables carry
// lists in a single value
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Describe returns a human-readable config summary
func (c *Config) Describe() string {
	profile := c.EffectiveProfile()

	var b strings.Builder
	fmt.Fprintf(&b, "Posture: %s, Targets: %s\n", c.Posture, strings.Join(c.Scan.Targets, ", "))
	fmt.Fprintf(&b, "Timing: %s, Workers: %d, Cycle delay: %s, Probe timeout: %s\n",
		profile.Timing, profile.Workers, profile.CycleDelay, profile.ProbeTimeout)

	summarizer := "template"
	switch {
	case !c.Summary.Enabled:
		summarizer = "disabled"
	case c.UseLLM():
		summarizer = c.Summary.Model
	}
	fmt.Fprintf(&b, "Summary: %s, Database: %s", summarizer, c.Database.Path)

	return b.String()
}
