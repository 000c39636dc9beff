package flowtable

import (
	"testing"
	"time"

	"github.com/els0r/olsrflowexport/pkg/addrfam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipv4(a, b, c, d byte) addrfam.Addr {
	return addrfam.FromBytes(addrfam.IPv4, []byte{a, b, c, d})
}

// S1: bidirectional UDP collapses into a single entry with summed bytes.
func TestObserve_BidirectionalUDPCollapses(t *testing.T) {
	tbl := New()
	t0 := time.Now()

	created := tbl.Observe(t0, Packet{
		Transport: UDP,
		SrcAddr:   ipv4(10, 0, 0, 1), DstAddr: ipv4(10, 0, 0, 2),
		SrcPort: 5000, DstPort: 53,
		WireLen: 100,
	})
	require.True(t, created)
	require.Equal(t, 1, tbl.Len())

	created = tbl.Observe(t0.Add(time.Second), Packet{
		Transport: UDP,
		SrcAddr:   ipv4(10, 0, 0, 2), DstAddr: ipv4(10, 0, 0, 1),
		SrcPort: 53, DstPort: 5000,
		WireLen: 120,
	})
	require.False(t, created)
	require.Equal(t, 1, tbl.Len())

	var rec Record
	tbl.ForEach(func(r Record) { rec = r })
	assert.Equal(t, uint64(220), rec.Entry.TotalBytes)
	assert.Equal(t, uint64(2), rec.Entry.TotalPackets)
	assert.False(t, rec.Entry.LastPacketTime.Before(rec.Entry.FirstPacketTime))
}

// S2: TCP admission requires SYN set, ACK clear on the first packet of a flow.
func TestObserve_TCPAdmission(t *testing.T) {
	tbl := New()
	t0 := time.Now()

	created := tbl.Observe(t0, Packet{
		Transport: TCP,
		SrcAddr:   ipv4(10, 0, 0, 1), DstAddr: ipv4(10, 0, 0, 2),
		SrcPort: 40000, DstPort: 80,
		WireLen: 60,
		TCPACK:  true,
	})
	require.False(t, created)
	require.Equal(t, 0, tbl.Len())

	created = tbl.Observe(t0, Packet{
		Transport: TCP,
		SrcAddr:   ipv4(10, 0, 0, 1), DstAddr: ipv4(10, 0, 0, 2),
		SrcPort: 40000, DstPort: 80,
		WireLen: 60,
		TCPSYN:  true,
	})
	require.True(t, created)
	require.Equal(t, 1, tbl.Len())

	var rec Record
	tbl.ForEach(func(r Record) { rec = r })
	assert.Equal(t, uint64(60), rec.Entry.TotalBytes)

	created = tbl.Observe(t0, Packet{
		Transport: TCP,
		SrcAddr:   ipv4(10, 0, 0, 2), DstAddr: ipv4(10, 0, 0, 1),
		SrcPort: 80, DstPort: 40000,
		WireLen: 60,
		TCPSYN:  true, TCPACK: true,
	})
	require.False(t, created)
	require.Equal(t, 1, tbl.Len())

	tbl.ForEach(func(r Record) { rec = r })
	assert.Equal(t, uint64(120), rec.Entry.TotalBytes)
}

// S6: export cadence — an entry lingers until it crosses export_timeout.
func TestExpire_Cadence(t *testing.T) {
	tbl := New()
	t0 := time.Now()
	tbl.Observe(t0.Add(10*time.Second), Packet{
		Transport: UDP,
		SrcAddr:   ipv4(10, 0, 0, 1), DstAddr: ipv4(10, 0, 0, 2),
		SrcPort: 1, DstPort: 2, WireLen: 10,
	})

	exportTimeout := 30 * time.Second
	for _, tick := range []int{15, 20, 25, 30, 35} {
		seen := false
		tbl.Expire(t0.Add(time.Duration(tick)*time.Second), exportTimeout, 0, func(Record) { seen = true })
		assert.Truef(t, seen, "flow should still be present/emitted at t=%d", tick)
	}

	// The pass at t=45 exports the flow one last time and evicts it.
	seen := false
	tbl.Expire(t0.Add(45*time.Second), exportTimeout, 0, func(Record) { seen = true })
	assert.True(t, seen, "flow should be emitted on the pass that evicts it at t=45")
	assert.Equal(t, 0, tbl.Len(), "flow should have been evicted by t=45")

	seen = false
	tbl.Expire(t0.Add(50*time.Second), exportTimeout, 0, func(Record) { seen = true })
	assert.False(t, seen, "flow should be absent after its eviction at t=45")
}
