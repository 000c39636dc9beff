package ipfixexport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func TestExporter_SendCurrentMessage_IncludesTemplatesOnFirstSend(t *testing.T) {
	conn, port := listenUDP(t)
	defer conn.Close()

	e := InitExporter(7)
	require.NoError(t, e.AddCollector(net.IPv4(127, 0, 0, 1), uint16(port), UDP, 1400))
	e.DeclareTemplate(Template{ID: 999, Elements: []InformationElement{ie(1, 4)}})

	require.NoError(t, e.StartDataSet(999))
	require.NoError(t, e.PutDataField(u32Field(42)))
	require.NoError(t, e.EndDataSet())
	require.NoError(t, e.SendCurrentMessage())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Greater(t, n, messageHeaderLen)
	assert.Equal(t, uint16(ipfixVersion), be16(buf[0:2]))
	// The first set after the message header is the template set.
	assert.Equal(t, uint16(templateSetID), be16(buf[messageHeaderLen:messageHeaderLen+2]))
}

func TestExporter_RejectsSCTP(t *testing.T) {
	e := InitExporter(1)
	err := e.AddCollector(net.IPv4(127, 0, 0, 1), 4739, SCTP, 1400)
	assert.ErrorIs(t, err, errSCTPUnsupported)
}

func TestExporter_StartDataSet_UnknownTemplate(t *testing.T) {
	e := InitExporter(1)
	err := e.StartDataSet(1234)
	assert.ErrorIs(t, err, errUnknownTemplate)
}

func TestExporter_PutDataField_WithoutOpenSet(t *testing.T) {
	e := InitExporter(1)
	err := e.PutDataField([]byte{1})
	assert.ErrorIs(t, err, errNoDataSetOpen)
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
