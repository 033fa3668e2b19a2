package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drvig/updns/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "updns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
backup:
  dir: /tmp/backups
stack:
  entrypoint: 10.0.0.2:53
  blocked_domain: ads.example.net
components:
  - name: cache
    container: dns-cache
    image: docker.io/library/redis:7-alpine
    rank: 0
    probe:
      type: redis
      address: 127.0.0.1:6379
  - name: blocker
    container: dns-blocker
    image: docker.io/pihole/pihole:latest
    rank: 2
    probe:
      type: exec
      command: [pihole, status]
      attempts: 12
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/backups", cfg.Backup.Dir)
	assert.Equal(t, "10.0.0.2:53", cfg.Stack.Entrypoint)
	assert.Equal(t, "ads.example.net", cfg.Stack.BlockedDomain)

	// Defaults fill what the file leaves unset
	assert.Equal(t, "https://registry-1.docker.io", cfg.Registry.Endpoint)
	assert.Equal(t, "example.com", cfg.Stack.TestDomain)

	require.Len(t, cfg.Comps, 2)
	cache := cfg.Comps[0]
	assert.Equal(t, types.ProbeTypeRedis, cache.Probe.Type)
	assert.Equal(t, 10, cache.Probe.Attempts, "unset attempts get the default budget")
	assert.Equal(t, 5*time.Second, cache.Probe.Interval)

	blocker := cfg.Comps[1]
	assert.Equal(t, 12, blocker.Probe.Attempts, "declared budgets are kept")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			mutate: func(*Config) {},
		},
		{
			name: "duplicate component name",
			mutate: func(c *Config) {
				c.Comps[1].Name = c.Comps[0].Name
			},
			wantErr: "duplicate component name",
		},
		{
			name: "missing container",
			mutate: func(c *Config) {
				c.Comps[0].Container = ""
			},
			wantErr: "no container",
		},
		{
			name: "missing image",
			mutate: func(c *Config) {
				c.Comps[2].Image = ""
			},
			wantErr: "no image",
		},
		{
			name: "exec probe without command",
			mutate: func(c *Config) {
				c.Comps[2].Probe.Command = nil
			},
			wantErr: "needs a command",
		},
		{
			name: "dns probe without domain",
			mutate: func(c *Config) {
				c.Comps[1].Probe.Domain = ""
			},
			wantErr: "needs an address and a domain",
		},
		{
			name: "unknown probe type",
			mutate: func(c *Config) {
				c.Comps[0].Probe.Type = "carrier-pigeon"
			},
			wantErr: "unknown probe type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	assert.Error(t, WriteDefault(path))
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updns.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Comps, 3)
	assert.Equal(t, "cache", cfg.Comps[0].Name)
	assert.Equal(t, 0, cfg.Comps[0].Rank)
	assert.Equal(t, 2, cfg.Comps[2].Rank)
}
