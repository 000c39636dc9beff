package ipfixexport

import (
	"net"
	"testing"
	"time"

	"github.com/els0r/olsrflowexport/pkg/addrfam"
	"github.com/els0r/olsrflowexport/pkg/flowtable"
	"github.com/els0r/olsrflowexport/pkg/olsr"
	"github.com/stretchr/testify/require"
)

func newWiredExporter(t *testing.T) (*Exporter, *net.UDPConn) {
	t.Helper()
	conn, port := listenUDP(t)

	e := InitExporter(1)
	require.NoError(t, e.AddCollector(net.IPv4(127, 0, 0, 1), uint16(port), UDP, 1400))
	for _, tmpl := range Templates() {
		e.DeclareTemplate(tmpl)
	}
	return e, conn
}

func TestEmitFlow_IPv4(t *testing.T) {
	e, conn := newWiredExporter(t)
	defer conn.Close()

	rec := flowtable.Record{
		Key: flowtable.NewKey(flowtable.TCP,
			addrfam.FromBytes(addrfam.IPv4, []byte{10, 0, 0, 1}),
			addrfam.FromBytes(addrfam.IPv4, []byte{10, 0, 0, 2}),
			1234, 80),
		Entry: flowtable.Entry{
			FirstPacketTime: time.Now(),
			LastPacketTime:  time.Now(),
			TotalBytes:      1000,
			TotalPackets:    10,
		},
	}

	require.NoError(t, e.EmitFlow(rec))
	require.NoError(t, e.SendCurrentMessage())
}

func TestEmitOLSREntry_Neighbor(t *testing.T) {
	e, conn := newWiredExporter(t)
	defer conn.Close()

	originator := addrfam.FromBytes(addrfam.IPv4, []byte{10, 0, 0, 9})
	entry := olsr.NeighborEntry{
		Neighbor:    addrfam.FromBytes(addrfam.IPv4, []byte{10, 0, 0, 10}),
		LinkQuality: 0.9,
		NeighborLQ:  0.8,
		Validity:    time.Now().Add(6 * time.Second),
	}

	require.NoError(t, e.EmitOLSREntry(originator, olsr.KindNeighbor, entry))
	require.NoError(t, e.SendCurrentMessage())
}

func TestEmitCaptureStats(t *testing.T) {
	e, conn := newWiredExporter(t)
	defer conn.Close()

	require.NoError(t, e.EmitCaptureStats(1, 1000, 5, 2))
	require.NoError(t, e.SendCurrentMessage())
}
