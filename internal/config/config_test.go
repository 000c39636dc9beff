package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
observation_domain_id: 42
interval: 60
interfaces:
  - wlan0
  - eth0
collectors:
  - ip: 10.0.0.5
    port: 4739
    transport: udp
    mtu_hint: 1400
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesTimerDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(42), cfg.ObservationDomainID)
	assert.Equal(t, []string{"wlan0", "eth0"}, cfg.Interfaces)
	require.Len(t, cfg.Collectors, 1)
	assert.Equal(t, TransportUDP, cfg.Collectors[0].Transport)

	assert.Equal(t, 5*time.Second, cfg.Timers.FlowExport())
	assert.Equal(t, 20*time.Second, cfg.Timers.TopologyExport())
	assert.Equal(t, 10*time.Second, cfg.Timers.CaptureStats())
	assert.Equal(t, 30*time.Second, cfg.Timers.ExportTimeout())
}

func TestLoad_RejectsMissingObservationDomain(t *testing.T) {
	path := writeTempConfig(t, `
interfaces: [wlan0]
collectors:
  - ip: 10.0.0.5
    port: 4739
    transport: udp
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
