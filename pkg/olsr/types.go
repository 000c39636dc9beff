// Package olsr implements the OLSR message decoder and routing-state
// reconstructor (component C4): a node-indexed
// store of neighbor, topology, MID and HNA sets with per-entry validity
// times, rebuilt from passively observed HELLO/LQ_HELLO, TC/LQ_TC, MID and
// HNA messages on UDP/698.
package olsr

import (
	"time"

	"github.com/els0r/olsrflowexport/pkg/addrfam"
)

// MessageType enumerates the OLSR message types this decoder understands
// (the OLSR wire format's message-type octet).
type MessageType uint8

// Recognized OLSR message types (RFC 3626 + the olsrd LQ extension).
const (
	HelloMessage   MessageType = 1
	TCMessage      MessageType = 2
	HelloLQMessage MessageType = 201
	TCLQMessage    MessageType = 202
)

// NeighborEntry is one row of a node's neighbor set.
type NeighborEntry struct {
	Neighbor    addrfam.Addr
	LinkQuality float32
	NeighborLQ  float32
	Validity    time.Time
}

// TopologyEntry is one row of a node's topology set.
type TopologyEntry struct {
	Destination addrfam.Addr
	LinkQuality float32
	NeighborLQ  float32
	Validity    time.Time
}

// MIDEntry is one row of a node's multiple-interface declaration set.
type MIDEntry struct {
	Alias    addrfam.Addr
	Validity time.Time
}

// HNAEntry is one row of a node's host-and-network association set.
type HNAEntry struct {
	Network  addrfam.Addr
	Netmask  addrfam.Addr
	Validity time.Time
}

// NodeEntry is all per-node state hanging off a single originator address
// A node entry belongs to exactly one network
// protocol; every address inside it shares that protocol's width.
type NodeEntry struct {
	Originator addrfam.Addr
	Protocol   addrfam.Protocol

	Neighbors []NeighborEntry
	Topology  []TopologyEntry
	// ansn/hasANSN track the advertised-neighbor sequence number that
	// produced Topology, so a stale TC can be rejected by the
	// wraparound-aware comparison. hasANSN stays false until the first TC
	// is accepted; while it is false, any TC counts as newer.
	ansn    uint16
	hasANSN bool
	MID     []MIDEntry
	HNA     []HNAEntry
}

// ANSN returns the sequence number backing the current topology set and
// whether one has ever been recorded for this node.
func (n *NodeEntry) ANSN() (seq uint16, ok bool) {
	return n.ansn, n.hasANSN
}
