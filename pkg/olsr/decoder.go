package olsr

import (
	"encoding/binary"
	"time"

	"github.com/els0r/olsrflowexport/pkg/addrfam"
)

// commonHeaderLen is the length, in bytes, of an OLSR message header before
// the originator address: type(1) vtime(1) size(2) = 4.
const commonHeaderLen = 4

// afterAddrLen is ttl(1) hops(1) seqno(2) following the originator address.
const afterAddrLen = 4

// lqExtraLen is the per-address LQ(1)/NLQ(1)/reserved(2) trailer carried by
// the LQ_HELLO/LQ_TC variants.
const lqExtraLen = 4

// vtime expands the 1-byte mantissa/exponent validity-time encoding per
// ((16 + mant) * 2^exp) / 16 seconds, mantissa in the high
// nibble and exponent in the low nibble.
func vtime(b byte) time.Duration {
	mant := int64(b >> 4)
	exp := uint(b & 0x0F)
	sixteenths := (16 + mant) << exp
	return time.Duration(sixteenths) * time.Second / 16
}

// Decode parses one OLSR packet and folds its
// messages into store. It returns the number of parse errors encountered;
// each malformed message is dropped without corrupting messages decoded
// before or after it, because the decoder always advances by a message's
// declared size field, never by how much of it parsed successfully.
func Decode(data []byte, proto addrfam.Protocol, store *Store, now time.Time) (parseErrors int) {
	if len(data) < 4 {
		return 1
	}
	// packet header: size(2) seqno(2) — seqno is not consumed by the state
	// reconstructor, only the message stream that follows matters here.
	offset := 4
	addrWidth := proto.Width()
	minHeaderLen := commonHeaderLen + addrWidth + afterAddrLen

	for offset+commonHeaderLen <= len(data) {
		msgType := MessageType(data[offset])
		vtimeByte := data[offset+1]
		msgSize := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))

		if msgSize < minHeaderLen || offset+msgSize > len(data) {
			parseErrors++
			if msgSize <= 0 {
				break // can't safely advance; stop rather than loop forever
			}
			offset += msgSize
			continue
		}

		msgEnd := offset + msgSize
		originator := addrfam.FromBytes(proto, data[offset+commonHeaderLen:offset+commonHeaderLen+addrWidth])
		bodyStart := offset + commonHeaderLen + addrWidth + afterAddrLen
		body := data[bodyStart:msgEnd]
		validity := now.Add(vtime(vtimeByte))

		if err := decodeMessage(store, msgType, originator, proto, body, validity, now); err != nil {
			parseErrors++
		}

		offset = msgEnd
	}

	return parseErrors
}

func decodeMessage(store *Store, msgType MessageType, originator addrfam.Addr, proto addrfam.Protocol, body []byte, validity, now time.Time) error {
	switch msgType {
	case HelloMessage, HelloLQMessage:
		return decodeHello(store, originator, proto, body, validity, msgType == HelloLQMessage)
	case TCMessage, TCLQMessage:
		return decodeTC(store, originator, proto, body, validity, msgType == TCLQMessage)
	case 3: // MID
		return decodeMID(store, originator, proto, body, validity)
	case 4: // HNA
		return decodeHNA(store, originator, proto, body, validity)
	default:
		// Unknown types: nothing to do, the caller already skips the
		// declared payload length via the outer loop.
		return nil
	}
}

func decodeHello(store *Store, originator addrfam.Addr, proto addrfam.Protocol, body []byte, validity time.Time, lq bool) error {
	const helloHeaderLen = 4 // 2 reserved + htime(1) + willingness(1)
	if len(body) < helloHeaderLen {
		return errShortMessage
	}
	body = body[helloHeaderLen:]

	addrWidth := proto.Width()
	var pending []NeighborEntry

	for len(body) >= 4 {
		blockSize := int(binary.BigEndian.Uint16(body[2:4]))
		if blockSize < 4 || blockSize > len(body) {
			return errShortMessage
		}
		addrs := body[4:blockSize]
		entryLen := addrWidth
		if lq {
			entryLen += lqExtraLen
		}
		for len(addrs) >= entryLen {
			neighbor := addrfam.FromBytes(proto, addrs[:addrWidth])
			var linkQ, neighborQ float32 = 1, 1
			if lq {
				linkQ = float32(addrs[addrWidth]) / 255
				neighborQ = float32(addrs[addrWidth+1]) / 255
			}
			pending = append(pending, NeighborEntry{
				Neighbor:    neighbor,
				LinkQuality: linkQ,
				NeighborLQ:  neighborQ,
				Validity:    validity,
			})
			addrs = addrs[entryLen:]
		}
		body = body[blockSize:]
	}

	node := store.nodeFor(originator, proto)
	for _, e := range pending {
		mergeNeighbor(node, e)
	}
	return nil
}

func decodeTC(store *Store, originator addrfam.Addr, proto addrfam.Protocol, body []byte, validity time.Time, lq bool) error {
	const tcHeaderLen = 4 // ansn(2) + reserved/border(2)
	if len(body) < tcHeaderLen {
		return errShortMessage
	}
	ansn := binary.BigEndian.Uint16(body[0:2])
	body = body[tcHeaderLen:]

	addrWidth := proto.Width()
	entryLen := addrWidth
	if lq {
		entryLen += lqExtraLen
	}
	if len(body)%entryLen != 0 {
		return errShortMessage
	}

	entries := make([]TopologyEntry, 0, len(body)/entryLen)
	for len(body) >= entryLen {
		dest := addrfam.FromBytes(proto, body[:addrWidth])
		var linkQ, neighborQ float32 = 1, 1
		if lq {
			linkQ = float32(body[addrWidth]) / 255
			neighborQ = float32(body[addrWidth+1]) / 255
		}
		entries = append(entries, TopologyEntry{
			Destination: dest,
			LinkQuality: linkQ,
			NeighborLQ:  neighborQ,
			Validity:    validity,
		})
		body = body[entryLen:]
	}

	node := store.nodeFor(originator, proto)
	replaceTopology(node, ansn, entries)
	return nil
}

func decodeMID(store *Store, originator addrfam.Addr, proto addrfam.Protocol, body []byte, validity time.Time) error {
	addrWidth := proto.Width()
	if len(body)%addrWidth != 0 {
		return errShortMessage
	}
	node := store.nodeFor(originator, proto)
	for len(body) >= addrWidth {
		mergeMID(node, MIDEntry{Alias: addrfam.FromBytes(proto, body[:addrWidth]), Validity: validity})
		body = body[addrWidth:]
	}
	return nil
}

func decodeHNA(store *Store, originator addrfam.Addr, proto addrfam.Protocol, body []byte, validity time.Time) error {
	addrWidth := proto.Width()
	pairLen := addrWidth * 2
	if len(body)%pairLen != 0 {
		return errShortMessage
	}
	node := store.nodeFor(originator, proto)
	for len(body) >= pairLen {
		mergeHNA(node, HNAEntry{
			Network:  addrfam.FromBytes(proto, body[:addrWidth]),
			Netmask:  addrfam.FromBytes(proto, body[addrWidth:pairLen]),
			Validity: validity,
		})
		body = body[pairLen:]
	}
	return nil
}
