// Package flowtable implements the bidirectional IP flow aggregator
// (component C3). It mirrors the key/value bookkeeping of the original
// LInEx flows.c khash tables, but replaces the custom hashcode/equals pair
// with a canonical key built once on insertion, which lets the table live
// on Go's native map instead of a hand-rolled hash table while preserving
// the same bidirectional-collapse invariant.
//
// The table is not safe for concurrent use: all mutation happens on the
// single event-loop goroutine.
package flowtable

import (
	"time"

	"github.com/els0r/olsrflowexport/pkg/addrfam"
)

// Transport identifies the layer-4 protocol of a flow.
type Transport uint8

// Recognized transport protocols (IANA protocol numbers).
const (
	TCP Transport = 6
	UDP Transport = 17
)

func (t Transport) String() string {
	if t == TCP {
		return "TCP"
	}
	return "UDP"
}

// endpoint is one side of a flow (address, port).
type endpoint struct {
	Addr addrfam.Addr
	Port uint16
}

func (e endpoint) less(o endpoint) bool {
	if e.Addr != o.Addr {
		return e.Addr.Less(o.Addr)
	}
	return e.Port < o.Port
}

// Key is the canonicalized, bidirectional flow identity: two keys built
// from opposite directions of the same 5-tuple compare equal under Go's
// native ==.
type Key struct {
	A, B      endpoint
	Transport Transport
}

// NewKey builds the canonical key for a captured packet's 5-tuple. Both
// directions of a connection produce an identical Key.
func NewKey(transport Transport, srcAddr, dstAddr addrfam.Addr, srcPort, dstPort uint16) Key {
	src := endpoint{Addr: srcAddr, Port: srcPort}
	dst := endpoint{Addr: dstAddr, Port: dstPort}
	if dst.less(src) {
		return Key{A: dst, B: src, Transport: transport}
	}
	return Key{A: src, B: dst, Transport: transport}
}

// Entry is the mutable per-flow accumulator.
type Entry struct {
	FirstPacketTime time.Time
	LastPacketTime  time.Time
	TotalBytes      uint64
	TotalPackets    uint64
}

// Packet carries the fields the table needs out of a classified packet.
type Packet struct {
	Transport Transport
	SrcAddr   addrfam.Addr
	DstAddr   addrfam.Addr
	SrcPort   uint16
	DstPort   uint16
	// WireLen is the packet's original on-wire length, not the (possibly
	// shorter) captured snapshot length.
	WireLen uint32
	// TCPSYN/TCPACK are only meaningful when Transport == TCP; they gate
	// admission of brand new entries.
	TCPSYN bool
	TCPACK bool
}

// Table is a bidirectional keyed aggregator for one network protocol
// (IPv4 or IPv6); callers keep IPv4 and IPv6 in separate tables so each
// map's key stays a fixed-size, monomorphic type.
type Table struct {
	entries map[Key]*Entry
}

// New creates an empty flow table.
func New() *Table {
	return &Table{entries: make(map[Key]*Entry)}
}

// Len reports the number of tracked flows.
func (t *Table) Len() int {
	return len(t.entries)
}

// Observe admits or updates a flow entry for the given packet at time now.
// It reports whether a new entry was created. TCP packets that do not carry
// the admission handshake (SYN set, ACK clear) and do not already have a
// tracked entry are silently ignored.
func (t *Table) Observe(now time.Time, pkt Packet) (created bool) {
	key := NewKey(pkt.Transport, pkt.SrcAddr, pkt.DstAddr, pkt.SrcPort, pkt.DstPort)

	entry, ok := t.entries[key]
	if !ok {
		if pkt.Transport == TCP && !(pkt.TCPSYN && !pkt.TCPACK) {
			return false
		}
		entry = &Entry{FirstPacketTime: now}
		t.entries[key] = entry
		created = true
	}

	entry.LastPacketTime = now
	entry.TotalBytes += uint64(pkt.WireLen)
	entry.TotalPackets++
	return created
}

// Record is a flow entry paired with its identifying key, returned by
// ForEach/Expire so callers (the scheduler and the IPFIX emitter) don't need
// to reach into the table's internals.
type Record struct {
	Key   Key
	Entry Entry
}

// ForEach walks every tracked flow without removing anything.
func (t *Table) ForEach(fn func(Record)) {
	for k, e := range t.entries {
		fn(Record{Key: k, Entry: *e})
	}
}

// Expire walks the table, invoking emit for every entry (entries not yet
// timed out are left in place but still exported), and removes entries
// that have exceeded exportTimeout since their last packet or
// maxFlowLifetime since their first.
func (t *Table) Expire(now time.Time, exportTimeout, maxFlowLifetime time.Duration, emit func(Record)) {
	for k, e := range t.entries {
		emit(Record{Key: k, Entry: *e})

		timedOut := exportTimeout > 0 && now.Sub(e.LastPacketTime) > exportTimeout
		aged := maxFlowLifetime > 0 && now.Sub(e.FirstPacketTime) > maxFlowLifetime
		if timedOut || aged {
			delete(t.entries, k)
		}
	}
}
