package classify

import (
	"encoding/binary"
	"testing"

	"github.com/els0r/olsrflowexport/pkg/flowtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ethHeader(ethertype uint16) []byte {
	h := make([]byte, 14)
	binary.BigEndian.PutUint16(h[12:14], ethertype)
	return h
}

func ipv4Header(protocol byte, src, dst [4]byte, payloadLen int) []byte {
	h := make([]byte, 20)
	h[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(h[2:4], uint16(20+payloadLen))
	h[9] = protocol
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	return h
}

func udpHeader(srcPort, dstPort uint16, payloadLen int) []byte {
	h := make([]byte, 8)
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	binary.BigEndian.PutUint16(h[4:6], uint16(8+payloadLen))
	return h
}

func tcpHeader(srcPort, dstPort uint16, flags byte) []byte {
	h := make([]byte, 20)
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	h[13] = flags
	return h
}

func TestClassify_UDPFlow(t *testing.T) {
	frame := append(ethHeader(etherTypeIPv4), ipv4Header(ipProtoUDP, [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 16)...)
	frame = append(frame, udpHeader(5000, 9999, 8)...)
	frame = append(frame, []byte("payload!")...)

	res, err := Classify(frame, uint32(len(frame)))
	require.NoError(t, err)
	require.True(t, res.HasFlow)
	assert.False(t, res.HasOLSR)
	assert.Equal(t, flowtable.UDP, res.Flow.Transport)
	assert.Equal(t, uint16(5000), res.Flow.SrcPort)
	assert.Equal(t, uint16(9999), res.Flow.DstPort)
}

func TestClassify_OLSRPortFlaggedForDecoder(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	frame := append(ethHeader(etherTypeIPv4), ipv4Header(ipProtoUDP, [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 8+len(payload))...)
	frame = append(frame, udpHeader(698, OLSRPort, len(payload))...)
	frame = append(frame, payload...)

	res, err := Classify(frame, uint32(len(frame)))
	require.NoError(t, err)
	require.True(t, res.HasFlow)
	require.True(t, res.HasOLSR)
	assert.Equal(t, payload, res.OLSRPayload)
}

func TestClassify_TCPSYNFlags(t *testing.T) {
	frame := append(ethHeader(etherTypeIPv4), ipv4Header(ipProtoTCP, [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 20)...)
	frame = append(frame, tcpHeader(4000, 80, 0x02)...)

	res, err := Classify(frame, uint32(len(frame)))
	require.NoError(t, err)
	require.True(t, res.HasFlow)
	assert.True(t, res.Flow.TCPSYN)
	assert.False(t, res.Flow.TCPACK)
}

func TestClassify_TruncatedEthernetFrame(t *testing.T) {
	_, err := Classify([]byte{1, 2, 3}, 3)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestClassify_TruncatedIPv4Header(t *testing.T) {
	frame := append(ethHeader(etherTypeIPv4), []byte{0x45, 0, 0, 10}...)
	_, err := Classify(frame, uint32(len(frame)))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestClassify_UnknownEtherTypeIgnored(t *testing.T) {
	frame := ethHeader(0x0806) // ARP
	res, err := Classify(frame, uint32(len(frame)))
	require.NoError(t, err)
	assert.False(t, res.HasFlow)
	assert.False(t, res.HasOLSR)
}

func TestClassify_IPv6HopByHopThenUDP(t *testing.T) {
	eth := ethHeader(etherTypeIPv6)
	ip6 := make([]byte, 40)
	ip6[6] = ipv6HopByHop
	copy(ip6[8:24], []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	copy(ip6[24:40], []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2})

	hopByHop := make([]byte, 8) // next header = UDP, hdrExtLen=0 -> 8 bytes total
	hopByHop[0] = ipProtoUDP

	udp := udpHeader(1111, 2222, 0)

	frame := append(eth, ip6...)
	frame = append(frame, hopByHop...)
	frame = append(frame, udp...)

	res, err := Classify(frame, uint32(len(frame)))
	require.NoError(t, err)
	require.True(t, res.HasFlow)
	assert.Equal(t, uint16(1111), res.Flow.SrcPort)
}
