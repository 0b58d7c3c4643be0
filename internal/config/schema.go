package config

import (
	"time"

	"topomap/internal/logging"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Posture  Posture        `yaml:"posture" validate:"omitempty,oneof=stealth cautious balanced aggressive"`
	Server   ServerConfig   `yaml:"server"`
	Scan     ScanConfig     `yaml:"scan"`
	Summary  SummaryConfig  `yaml:"summary"`
	Database DatabaseConfig `yaml:"database"`
	Logging  logging.Config `yaml:"logging"`
	// Dev enables strict registry invariants and debug logging
	Dev bool `yaml:"dev"`
}

// ServerConfig holds the HTTP control surface settings
type ServerConfig struct {
	Addr            string   `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	// AutoStart begins continuous scanning when the server starts
	AutoStart bool `yaml:"autostart"`
}

// ScanConfig holds discovery settings. Zero values for workers, timing and
// cycle delay fall back to the posture profile.
type ScanConfig struct {
	Targets      []string `yaml:"targets" validate:"required,min=1,dive,cidr|ip"`
	ChunkPrefix  int      `yaml:"chunk_prefix" validate:"min=8,max=32"`
	Workers      int      `yaml:"workers" validate:"gte=0,lte=1024"`
	Timing       string   `yaml:"timing,omitempty" validate:"omitempty,oneof=0 1 2 3 4 5 paranoid sneaky polite normal aggressive insane"`
	CycleDelay   Duration `yaml:"cycle_delay" validate:"gte=0"`
	FaultBackoff Duration `yaml:"fault_backoff" validate:"gte=0"`
	StopTimeout  Duration `yaml:"stop_timeout" validate:"gte=0"`
	ProbeTimeout Duration `yaml:"probe_timeout" validate:"gte=0"`

	OSDetection bool   `yaml:"os_detection"`
	Privileged  bool   `yaml:"privileged"`
	NmapPath    string `yaml:"nmap_path,omitempty"`

	ReverseDNS bool     `yaml:"reverse_dns"`
	DNSServers []string `yaml:"dns_servers,omitempty" validate:"dive,hostname_port|ip"`
	DNSTimeout Duration `yaml:"dns_timeout" validate:"gte=0"`

	// Vantage overrides; detected from the routing table when empty
	VantageIP   string `yaml:"vantage_ip,omitempty" validate:"omitempty,ip"`
	LocalSubnet string `yaml:"local_subnet,omitempty" validate:"omitempty,cidr"`
	Gateway     string `yaml:"gateway,omitempty" validate:"omitempty,ip"`
	RouteTable  string `yaml:"route_table,omitempty"`
}

// SummaryConfig holds the network summary settings. Without an API key the
// summary is rendered locally.
type SummaryConfig struct {
	Enabled bool     `yaml:"enabled"`
	BaseURL string   `yaml:"base_url,omitempty" validate:"omitempty,url"`
	Model   string   `yaml:"model,omitempty"`
	APIKey  string   `yaml:"api_key,omitempty"`
	Retries int      `yaml:"retries" validate:"min=1,max=100"`
	Backoff Duration `yaml:"backoff" validate:"gte=0"`
	Timeout Duration `yaml:"timeout" validate:"gte=0"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
