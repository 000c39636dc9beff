// Package config loads the YAML configuration file named on the command
// line (-f flag) into the descriptor the observation engine is built
// from, grounded on the YAML-plus-defaults loader style used across the
// example pack's small daemons.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport is the wire transport a collector is reached over.
type Transport string

// Transports a collector entry may name.
const (
	TransportUDP  Transport = "udp"
	TransportTCP  Transport = "tcp"
	TransportSCTP Transport = "sctp"
)

// Collector is one IPFIX export destination.
type Collector struct {
	IP        string    `yaml:"ip"`
	Port      uint16    `yaml:"port"`
	Transport Transport `yaml:"transport"`
	MTUHint   int       `yaml:"mtu_hint"`
}

// RecordDescriptor is opaque to the observation engine; it only matters to
// the scalar/system-metric record export timer, which this core's
// scheduler drives but does not interpret.
type RecordDescriptor map[string]any

// Timers holds the wall-clock periods the scheduler runs under, in whole
// seconds (YAML scalars, not Go duration strings). Load applies a default
// to every field the file omits except MaxFlowLifetimeSeconds, which stays
// zero (unbounded).
type Timers struct {
	FlowExportSeconds      uint32 `yaml:"flow_export_interval_seconds"`
	TopologyExportSeconds  uint32 `yaml:"topology_export_interval_seconds"`
	CaptureStatsSeconds    uint32 `yaml:"capture_stats_interval_seconds"`
	ExportTimeoutSeconds   uint32 `yaml:"export_timeout_seconds"`
	MaxFlowLifetimeSeconds uint32 `yaml:"max_flow_lifetime_seconds"`
}

// FlowExport is the configured flow-export timer period.
func (t Timers) FlowExport() time.Duration { return time.Duration(t.FlowExportSeconds) * time.Second }

// TopologyExport is the configured topology-export timer period.
func (t Timers) TopologyExport() time.Duration {
	return time.Duration(t.TopologyExportSeconds) * time.Second
}

// CaptureStats is the configured capture-statistics timer period.
func (t Timers) CaptureStats() time.Duration {
	return time.Duration(t.CaptureStatsSeconds) * time.Second
}

// ExportTimeout is how long a flow may sit without a new packet before
// eviction.
func (t Timers) ExportTimeout() time.Duration {
	return time.Duration(t.ExportTimeoutSeconds) * time.Second
}

// MaxFlowLifetime is the hard ceiling on a flow's age regardless of
// continued activity; zero means unbounded.
func (t Timers) MaxFlowLifetime() time.Duration {
	return time.Duration(t.MaxFlowLifetimeSeconds) * time.Second
}

// Anonymization holds the CryptoPAn key/pad pair for optional address
// anonymization; both empty means anonymization is disabled.
type Anonymization struct {
	Key string `yaml:"key"`
	Pad string `yaml:"pad"`
}

// Config is the full descriptor the observation engine is built from.
type Config struct {
	ObservationDomainID uint32             `yaml:"observation_domain_id"`
	Interval            uint32             `yaml:"interval"`
	Interfaces          []string           `yaml:"interfaces"`
	Collectors          []Collector        `yaml:"collectors"`
	RecordDescriptors   []RecordDescriptor `yaml:"record_descriptors"`
	Promiscuous         bool               `yaml:"promiscuous"`

	XMLFile           string `yaml:"xmlfile"`
	XMLPostprocessing string `yaml:"xmlpostprocessing"`

	CompressionMethod       string `yaml:"compression_method"`
	CompressionMethodParams string `yaml:"compression_method_params"`

	Anonymization Anonymization `yaml:"anonymization"`

	Timers Timers `yaml:"timers"`
}

// Default timer periods, in seconds, applied when the config file omits
// them: flow export every 5s, topology export every 20s, capture stats
// every 10s, flows idle for 30s are evicted.
const (
	defaultFlowExportSeconds     = 5
	defaultTopologyExportSeconds = 20
	defaultCaptureStatsSeconds   = 10
	defaultExportTimeoutSeconds  = 30
)

// Load reads and parses the configuration file at path, applying defaults
// to any timer the file left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.ObservationDomainID == 0 {
		return nil, fmt.Errorf("config: observation_domain_id must be set")
	}
	if len(cfg.Interfaces) == 0 {
		return nil, fmt.Errorf("config: interfaces must name at least one interface")
	}
	if len(cfg.Collectors) == 0 {
		return nil, fmt.Errorf("config: collectors must name at least one destination")
	}

	if cfg.Timers.FlowExportSeconds == 0 {
		cfg.Timers.FlowExportSeconds = defaultFlowExportSeconds
	}
	if cfg.Timers.TopologyExportSeconds == 0 {
		cfg.Timers.TopologyExportSeconds = defaultTopologyExportSeconds
	}
	if cfg.Timers.CaptureStatsSeconds == 0 {
		cfg.Timers.CaptureStatsSeconds = defaultCaptureStatsSeconds
	}
	if cfg.Timers.ExportTimeoutSeconds == 0 {
		cfg.Timers.ExportTimeoutSeconds = defaultExportTimeoutSeconds
	}

	return &cfg, nil
}
