// Package classify implements the packet classifier (component C2):
// Ethernet, IPv4/IPv6 and TCP/UDP header parsing with
// byte-exact bounds checks, producing either a flow-table packet, an OLSR
// payload destined for the decoder in pkg/olsr, or both.
//
// Parsing proceeds strictly left to right; any header that would extend
// past the captured data causes the frame to be dropped (ErrTruncated),
// incrementing the caller's parse-error counter rather than panicking.
package classify

import (
	"encoding/binary"
	"errors"

	"github.com/els0r/olsrflowexport/pkg/addrfam"
	"github.com/els0r/olsrflowexport/pkg/flowtable"
)

// OLSRPort is the well-known UDP port OLSR control traffic runs over.
const OLSRPort = 698

// ErrTruncated marks a frame that ended before a header it committed to
// could be fully read.
var ErrTruncated = errors.New("classify: truncated frame")

const (
	ipProtoTCP = 6
	ipProtoUDP = 17

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD

	ipv6NoNextHeader  = 59
	ipv6HopByHop      = 0
	ipv6Routing       = 43
	ipv6Fragment      = 44
	ipv6DestOptions   = 60
	ipv6MobilityOpt   = 135
	maxExtHeaderCount = 8 // bounds the extension-header walk against crafted loops
)

// Result is everything the classifier extracted from one frame.
type Result struct {
	HasFlow bool
	Proto   addrfam.Protocol
	Flow    flowtable.Packet

	HasOLSR     bool
	OLSRPayload []byte
}

// Classify parses frame (captured bytes) given its original on-wire length
// wireLen, and reports what it found. A nil error with both Has* fields
// false means the frame was successfully parsed but carries nothing this
// system tracks (e.g. ARP, or an L4 protocol other than TCP/UDP).
func Classify(frame []byte, wireLen uint32) (Result, error) {
	if len(frame) < 14 {
		return Result{}, ErrTruncated
	}
	ethertype := binary.BigEndian.Uint16(frame[12:14])
	payload := frame[14:]

	switch ethertype {
	case etherTypeIPv4:
		return classifyIPv4(payload, wireLen)
	case etherTypeIPv6:
		return classifyIPv6(payload, wireLen)
	default:
		return Result{}, nil
	}
}

func classifyIPv4(b []byte, wireLen uint32) (Result, error) {
	if len(b) < 20 {
		return Result{}, ErrTruncated
	}
	ihl := int(b[0]&0x0F) * 4
	if ihl < 20 || ihl > len(b) {
		return Result{}, ErrTruncated
	}
	protocol := b[9]
	src := addrfam.FromBytes(addrfam.IPv4, b[12:16])
	dst := addrfam.FromBytes(addrfam.IPv4, b[16:20])

	return classifyTransport(addrfam.IPv4, protocol, src, dst, b[ihl:], wireLen)
}

func classifyIPv6(b []byte, wireLen uint32) (Result, error) {
	if len(b) < 40 {
		return Result{}, ErrTruncated
	}
	nextHeader := b[6]
	src := addrfam.FromBytes(addrfam.IPv6, b[8:24])
	dst := addrfam.FromBytes(addrfam.IPv6, b[24:40])
	rest := b[40:]

	for i := 0; i < maxExtHeaderCount; i++ {
		switch nextHeader {
		case ipProtoTCP, ipProtoUDP:
			return classifyTransport(addrfam.IPv6, nextHeader, src, dst, rest, wireLen)
		case ipv6NoNextHeader:
			return Result{}, nil
		case ipv6HopByHop, ipv6Routing, ipv6DestOptions, ipv6MobilityOpt:
			if len(rest) < 2 {
				return Result{}, ErrTruncated
			}
			extLen := (int(rest[1]) + 1) * 8
			if extLen > len(rest) {
				return Result{}, ErrTruncated
			}
			nextHeader = rest[0]
			rest = rest[extLen:]
		case ipv6Fragment:
			if len(rest) < 8 {
				return Result{}, ErrTruncated
			}
			nextHeader = rest[0]
			rest = rest[8:]
		default:
			// Unrecognized transport protocol (e.g. ESP, ICMPv6): nothing
			// to track, not a parse error.
			return Result{}, nil
		}
	}
	return Result{}, ErrTruncated
}

func classifyTransport(proto addrfam.Protocol, protocol byte, src, dst addrfam.Addr, b []byte, wireLen uint32) (Result, error) {
	switch protocol {
	case ipProtoTCP:
		return classifyTCP(proto, src, dst, b, wireLen)
	case ipProtoUDP:
		return classifyUDP(proto, src, dst, b, wireLen)
	default:
		return Result{}, nil
	}
}

func classifyTCP(proto addrfam.Protocol, src, dst addrfam.Addr, b []byte, wireLen uint32) (Result, error) {
	if len(b) < 20 {
		return Result{}, ErrTruncated
	}
	srcPort := binary.BigEndian.Uint16(b[0:2])
	dstPort := binary.BigEndian.Uint16(b[2:4])
	flags := b[13]

	return Result{
		HasFlow: true,
		Proto:   proto,
		Flow: flowtable.Packet{
			Transport: flowtable.TCP,
			SrcAddr:   src, DstAddr: dst,
			SrcPort: srcPort, DstPort: dstPort,
			WireLen: wireLen,
			TCPSYN:  flags&0x02 != 0,
			TCPACK:  flags&0x10 != 0,
		},
	}, nil
}

func classifyUDP(proto addrfam.Protocol, src, dst addrfam.Addr, b []byte, wireLen uint32) (Result, error) {
	if len(b) < 8 {
		return Result{}, ErrTruncated
	}
	srcPort := binary.BigEndian.Uint16(b[0:2])
	dstPort := binary.BigEndian.Uint16(b[2:4])

	res := Result{
		HasFlow: true,
		Proto:   proto,
		Flow: flowtable.Packet{
			Transport: flowtable.UDP,
			SrcAddr:   src, DstAddr: dst,
			SrcPort: srcPort, DstPort: dstPort,
			WireLen: wireLen,
		},
	}

	if dstPort == OLSRPort && len(b) > 8 {
		res.HasOLSR = true
		res.OLSRPayload = b[8:]
	}

	return res, nil
}
