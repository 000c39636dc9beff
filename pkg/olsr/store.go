package olsr

import (
	"time"

	"github.com/els0r/olsrflowexport/pkg/addrfam"
)

// Store is the node-indexed map of reconstructed OLSR routing state
// It owns every NodeEntry and the sets hanging
// off it; there are no cross-ownership cycles. Like the flow table, it is
// mutated only on the single event-loop goroutine.
type Store struct {
	nodes map[addrfam.Addr]*NodeEntry
}

// NewStore creates an empty OLSR state store.
func NewStore() *Store {
	return &Store{nodes: make(map[addrfam.Addr]*NodeEntry)}
}

// nodeFor returns the node entry for originator, creating it (tagged with
// proto) on first reference. Two updates for the same originator merge
// into the existing entry, never duplicate.
func (s *Store) nodeFor(originator addrfam.Addr, proto addrfam.Protocol) *NodeEntry {
	n, ok := s.nodes[originator]
	if !ok {
		n = &NodeEntry{Originator: originator, Protocol: proto}
		s.nodes[originator] = n
	}
	return n
}

// Node returns the node entry for originator, if one exists.
func (s *Store) Node(originator addrfam.Addr) (*NodeEntry, bool) {
	n, ok := s.nodes[originator]
	return n, ok
}

// ForEach walks every known node.
func (s *Store) ForEach(fn func(*NodeEntry)) {
	for _, n := range s.nodes {
		fn(n)
	}
}

// mergeNeighbor implements the HELLO/LQ_HELLO set-entry merge rule of
// refresh validity (and LQ/NLQ) if the neighbor is already present, else
// append.
func mergeNeighbor(n *NodeEntry, e NeighborEntry) {
	for i := range n.Neighbors {
		if n.Neighbors[i].Neighbor == e.Neighbor {
			n.Neighbors[i].Validity = e.Validity
			n.Neighbors[i].LinkQuality = e.LinkQuality
			n.Neighbors[i].NeighborLQ = e.NeighborLQ
			return
		}
	}
	n.Neighbors = append(n.Neighbors, e)
}

func mergeMID(n *NodeEntry, e MIDEntry) {
	for i := range n.MID {
		if n.MID[i].Alias == e.Alias {
			n.MID[i].Validity = e.Validity
			return
		}
	}
	n.MID = append(n.MID, e)
}

func mergeHNA(n *NodeEntry, e HNAEntry) {
	for i := range n.HNA {
		// The original C implementation used memcmp's return value as a
		// boolean, conflating "found" with "differ". This uses explicit
		// equality on both network and netmask instead.
		if n.HNA[i].Network == e.Network && n.HNA[i].Netmask == e.Netmask {
			n.HNA[i].Validity = e.Validity
			return
		}
	}
	n.HNA = append(n.HNA, e)
}

// replaceTopology installs a freshly decoded topology set if ansn is newer
// than the one currently stored, using a wraparound-aware sequence-number
// comparison; stale TCs are dropped silently (returns false).
func replaceTopology(n *NodeEntry, ansn uint16, entries []TopologyEntry) bool {
	if !ansnNewer(ansn, n.ansn, n.hasANSN) {
		return false
	}
	n.ansn = ansn
	n.hasANSN = true
	n.Topology = entries
	return true
}

// pruneExpired drops every entry, in all four sets, whose validity time is
// not after now. It is called by Expire and by the tests.
func (n *NodeEntry) pruneExpired(now time.Time) {
	n.Neighbors = pruneNeighbors(n.Neighbors, now)
	n.Topology = pruneTopology(n.Topology, now)
	n.MID = pruneMID(n.MID, now)
	n.HNA = pruneHNA(n.HNA, now)
}

func pruneNeighbors(es []NeighborEntry, now time.Time) []NeighborEntry {
	out := es[:0]
	for _, e := range es {
		if e.Validity.After(now) {
			out = append(out, e)
		}
	}
	return out
}

func pruneTopology(es []TopologyEntry, now time.Time) []TopologyEntry {
	out := es[:0]
	for _, e := range es {
		if e.Validity.After(now) {
			out = append(out, e)
		}
	}
	return out
}

func pruneMID(es []MIDEntry, now time.Time) []MIDEntry {
	out := es[:0]
	for _, e := range es {
		if e.Validity.After(now) {
			out = append(out, e)
		}
	}
	return out
}

func pruneHNA(es []HNAEntry, now time.Time) []HNAEntry {
	out := es[:0]
	for _, e := range es {
		if e.Validity.After(now) {
			out = append(out, e)
		}
	}
	return out
}

// Expire walks every node, first dropping set entries whose validity has
// passed, then invoking emit once per
// remaining entry, keyed by originator + the entry-specific sub-key.
func (s *Store) Expire(now time.Time, emit func(originator addrfam.Addr, proto addrfam.Protocol, kind EntryKind, entry any)) {
	for addr, n := range s.nodes {
		n.pruneExpired(now)

		for _, e := range n.Neighbors {
			emit(addr, n.Protocol, KindNeighbor, e)
		}
		for _, e := range n.Topology {
			emit(addr, n.Protocol, KindTopology, e)
		}
		for _, e := range n.MID {
			emit(addr, n.Protocol, KindMID, e)
		}
		for _, e := range n.HNA {
			emit(addr, n.Protocol, KindHNA, e)
		}
	}
}

// EntryKind distinguishes which OLSR set an exported entry came from.
type EntryKind uint8

// Set kinds emitted by Store.Expire.
const (
	KindNeighbor EntryKind = iota
	KindTopology
	KindMID
	KindHNA
)
