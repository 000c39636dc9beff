// Package capture implements component C1: raw link-layer packet capture
// off one or more network interfaces via AF_PACKET, with a BPF program
// installed per interface to keep the classifier (pkg/classify) from ever
// seeing traffic this system has no use for.
package capture

import (
	"fmt"
	"sync"
)

// Frame is one captured link-layer frame, handed to the classifier by the
// event loop (pkg/eventloop).
type Frame struct {
	Iface   string
	Data    []byte
	WireLen uint32
}

// Stats mirrors the kernel-reported packet counters for one interface
// socket, periodically exported as capture statistics. PacketsDropped is
// the AF_PACKET ring's own drop count (packets the socket could not queue
// fast enough); PacketsIfDropped is the interface-level drop counter
// reported by the NIC driver itself (packets dropped before ever reaching
// the socket, e.g. for lack of buffer space) and is tracked separately
// since the two can diverge independently.
type Stats struct {
	PacketsReceived  uint64
	PacketsDropped   uint64
	PacketsIfDropped uint64
}

// InterfaceSource is the capture backend's per-interface handle. The only
// implementation shipped here is the AF_PACKET one in capture_linux.go;
// the interface exists so the event loop and tests don't need to know that.
type InterfaceSource interface {
	NextPacket() (data []byte, wireLen uint32, err error)
	Stats() (Stats, error)
	Close()
}

// Manager owns one InterfaceSource per monitored interface and fans their
// captured frames into a single channel, mirroring the multi-interface
// fan-in goProbe's capture Manager performs for flow aggregation (here the
// frames themselves are multiplexed, since classification happens
// downstream on the event-loop goroutine rather than per capture thread).
type Manager struct {
	mu      sync.Mutex
	sources map[string]InterfaceSource
	frames  chan Frame
}

// NewManager creates a Manager whose fan-in channel buffers up to
// queueDepth frames before a slow event-loop consumer causes capture
// goroutines to block.
func NewManager(queueDepth int) *Manager {
	return &Manager{
		sources: make(map[string]InterfaceSource),
		frames:  make(chan Frame, queueDepth),
	}
}

// Add registers src under iface and starts reading it in a background
// goroutine. The goroutine exits on the first error from NextPacket, such
// as the one it returns once Close has closed src.
func (m *Manager) Add(iface string, src InterfaceSource) {
	m.mu.Lock()
	m.sources[iface] = src
	m.mu.Unlock()

	go m.readLoop(iface, src)
}

func (m *Manager) readLoop(iface string, src InterfaceSource) {
	for {
		data, wireLen, err := src.NextPacket()
		if err != nil {
			return
		}
		m.frames <- Frame{Iface: iface, Data: data, WireLen: wireLen}
	}
}

// Frames is the channel the event loop selects on.
func (m *Manager) Frames() <-chan Frame {
	return m.frames
}

// Stats returns the current capture counters for every registered
// interface.
func (m *Manager) Stats() (map[string]Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Stats, len(m.sources))
	for iface, src := range m.sources {
		s, err := src.Stats()
		if err != nil {
			return nil, fmt.Errorf("capture: %s: stats: %w", iface, err)
		}
		out[iface] = s
	}
	return out, nil
}

// Close shuts down every registered interface source.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, src := range m.sources {
		src.Close()
	}
}
