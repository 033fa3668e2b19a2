package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drvig/updns/pkg/types"
)

// DefaultPath is where the updater looks for its configuration
const DefaultPath = "/etc/updns/updns.yaml"

// Config is the full updater configuration: the managed component set,
// the registry used for latest-digest lookups, the verifier's stack
// endpoints, and operational directories.
type Config struct {
	Log      Log               `yaml:"log"`
	DataDir  string            `yaml:"data_dir"`
	Backup   Backup            `yaml:"backup"`
	Runtime  Runtime           `yaml:"runtime"`
	Registry Registry          `yaml:"registry"`
	Stack    Stack             `yaml:"stack"`
	Metrics  Metrics           `yaml:"metrics"`
	Comps    []types.Component `yaml:"components"`
}

// Log holds logging configuration
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// Backup holds backup manager configuration
type Backup struct {
	Dir string `yaml:"dir"`
}

// Runtime holds container runtime configuration
type Runtime struct {
	Socket    string `yaml:"socket"`
	Namespace string `yaml:"namespace"`
}

// Registry holds the v2 registry endpoints used for manifest digest lookups
type Registry struct {
	Endpoint     string        `yaml:"endpoint"`
	AuthEndpoint string        `yaml:"auth_endpoint"`
	Service      string        `yaml:"service"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Stack describes the deployed stack's externally observable surface,
// used by the verifier
type Stack struct {
	// Entrypoint is the address the full chain serves DNS on
	Entrypoint string `yaml:"entrypoint"`

	// TestDomain must resolve through the chain for verification to pass
	TestDomain string `yaml:"test_domain"`

	// BlockedDomain must return the nullroute sentinel
	BlockedDomain string `yaml:"blocked_domain"`

	// Nullroute is the sentinel address the blocker answers for blocked names
	Nullroute string `yaml:"nullroute"`
}

// Metrics holds metrics export configuration
type Metrics struct {
	// Textfile is where run metrics are written in the text exposition
	// format at the end of an update run, for a node-exporter textfile
	// collector to pick up. Empty disables the export.
	Textfile string `yaml:"textfile"`
}

// Default returns a configuration for the stock three-component stack.
// Ranks encode the safe update order: cache first, resolver second,
// blocking frontend last.
func Default() *Config {
	return &Config{
		Log: Log{
			Level: "info",
			Dir:   "/var/log/updns",
		},
		DataDir: "/var/lib/updns",
		Backup: Backup{
			Dir: "/var/lib/updns/backups",
		},
		Runtime: Runtime{
			Socket:    "/run/containerd/containerd.sock",
			Namespace: "dnsstack",
		},
		Registry: Registry{
			Endpoint:     "https://registry-1.docker.io",
			AuthEndpoint: "https://auth.docker.io",
			Service:      "registry.docker.io",
			Timeout:      30 * time.Second,
		},
		Metrics: Metrics{
			Textfile: "/var/lib/updns/metrics.prom",
		},
		Stack: Stack{
			Entrypoint:    "127.0.0.1:53",
			TestDomain:    "example.com",
			BlockedDomain: "doubleclick.net",
			Nullroute:     "0.0.0.0",
		},
		Comps: []types.Component{
			{
				Name:      "cache",
				Container: "dns-cache",
				Image:     "docker.io/library/redis:7-alpine",
				Rank:      0,
				Probe: types.ProbeSpec{
					Type:     types.ProbeTypeRedis,
					Address:  "127.0.0.1:6379",
					Attempts: 10,
					Interval: 5 * time.Second,
					Timeout:  5 * time.Second,
				},
				Volumes:     []types.VolumeRef{{Name: "cache-data", Path: "/var/lib/dnsstack/cache"}},
				StopTimeout: 10 * time.Second,
			},
			{
				Name:      "resolver",
				Container: "dns-resolver",
				Image:     "docker.io/klutchell/unbound:latest",
				Rank:      1,
				Probe: types.ProbeSpec{
					Type:     types.ProbeTypeDNS,
					Address:  "127.0.0.1:5335",
					Domain:   "example.com",
					Attempts: 10,
					Interval: 5 * time.Second,
					Timeout:  5 * time.Second,
				},
				Volumes:     []types.VolumeRef{{Name: "resolver-conf", Path: "/var/lib/dnsstack/unbound"}},
				StopTimeout: 10 * time.Second,
			},
			{
				Name:      "blocker",
				Container: "dns-blocker",
				Image:     "docker.io/pihole/pihole:latest",
				Rank:      2,
				Probe: types.ProbeSpec{
					Type:     types.ProbeTypeExec,
					Command:  []string{"pihole", "status"},
					Expect:   "blocking is enabled",
					Attempts: 12,
					Interval: 5 * time.Second,
					Timeout:  10 * time.Second,
				},
				Volumes: []types.VolumeRef{
					{Name: "blocker-etc", Path: "/var/lib/dnsstack/pihole"},
					{Name: "blocker-dnsmasq", Path: "/var/lib/dnsstack/dnsmasq.d"},
				},
				StopTimeout: 30 * time.Second,
			},
		},
	}
}

// Load reads the configuration file at path, applying defaults for
// anything not set. A missing file is an error; use Default() plus
// WriteDefault to bootstrap one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	cfg.Comps = nil // file declares the component set
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if len(cfg.Comps) == 0 {
		cfg.Comps = Default().Comps
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WriteDefault writes the default configuration to path, refusing to
// overwrite an existing file
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the component set for internal consistency
func (c *Config) Validate() error {
	if len(c.Comps) == 0 {
		return fmt.Errorf("no components declared")
	}

	seen := make(map[string]bool)
	for i := range c.Comps {
		comp := &c.Comps[i]
		if comp.Name == "" {
			return fmt.Errorf("component %d has no name", i)
		}
		if seen[comp.Name] {
			return fmt.Errorf("duplicate component name %q", comp.Name)
		}
		seen[comp.Name] = true

		if comp.Container == "" {
			return fmt.Errorf("component %s has no container", comp.Name)
		}
		if comp.Image == "" {
			return fmt.Errorf("component %s has no image", comp.Name)
		}

		switch comp.Probe.Type {
		case types.ProbeTypeExec:
			if len(comp.Probe.Command) == 0 {
				return fmt.Errorf("component %s: exec probe needs a command", comp.Name)
			}
		case types.ProbeTypeTCP, types.ProbeTypeRedis:
			if comp.Probe.Address == "" {
				return fmt.Errorf("component %s: %s probe needs an address", comp.Name, comp.Probe.Type)
			}
		case types.ProbeTypeDNS:
			if comp.Probe.Address == "" || comp.Probe.Domain == "" {
				return fmt.Errorf("component %s: dns probe needs an address and a domain", comp.Name)
			}
		default:
			return fmt.Errorf("component %s: unknown probe type %q", comp.Name, comp.Probe.Type)
		}

		if comp.Probe.Attempts <= 0 {
			comp.Probe.Attempts = 10
		}
		if comp.Probe.Interval <= 0 {
			comp.Probe.Interval = 5 * time.Second
		}
		if comp.Probe.Timeout <= 0 {
			comp.Probe.Timeout = 5 * time.Second
		}
		if comp.StopTimeout <= 0 {
			comp.StopTimeout = 10 * time.Second
		}
	}

	return nil
}
