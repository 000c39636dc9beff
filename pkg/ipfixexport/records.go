package ipfixexport

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/els0r/olsrflowexport/pkg/addrfam"
	"github.com/els0r/olsrflowexport/pkg/flowtable"
	"github.com/els0r/olsrflowexport/pkg/olsr"
)

// Template IDs, one per record shape this emitter produces: IPv4/IPv6
// flow, neighbor, topology, MID, HNA, and capture stats. Scalar
// system-metric records are driven by the same record-export timer but
// shaped entirely by the (opaque) configured record descriptors, so they
// carry no fixed template here.
const (
	TemplateIPv4Flow     uint16 = 256
	TemplateIPv6Flow     uint16 = 257
	TemplateNeighbor     uint16 = 258
	TemplateTopology     uint16 = 259
	TemplateMID          uint16 = 260
	TemplateHNA          uint16 = 261
	TemplateCaptureStats uint16 = 262
)

// enterpriseOLSR is the private enterprise number under which the
// OLSR-specific information elements below are registered; OLSR routing
// state (link quality, validity time, node originator) has no IANA flow
// IE of its own.
const enterpriseOLSR uint32 = 56309

// IANA information elements used for flow records (RFC 5102 registry).
const (
	ieOctetDeltaCount          = 1
	ieProtocolIdentifier       = 4
	ieSourceTransportPort      = 7
	ieSourceIPv4Address        = 8
	ieDestinationIPv4Address   = 12
	ieDestinationTransportPort = 11
	iePacketDeltaCount         = 2
	ieFlowStartSeconds         = 150
	ieFlowEndSeconds           = 151
	ieSourceIPv6Address        = 27
	ieDestinationIPv6Address   = 28
)

// Private OLSR information elements, addressed under enterpriseOLSR.
const (
	ieOLSROriginatorV4   = 1
	ieOLSROriginatorV6   = 2
	ieOLSRNeighborV4     = 3
	ieOLSRNeighborV6     = 4
	ieOLSRLinkQuality    = 5
	ieOLSRNeighborLQ     = 6
	ieOLSRValiditySecs   = 7
	ieOLSRAliasV4        = 8
	ieOLSRAliasV6        = 9
	ieOLSRNetworkV4      = 10
	ieOLSRNetworkV6      = 11
	ieOLSRNetmaskV4      = 12
	ieOLSRNetmaskV6      = 13
	ieCaptureIfaceIndex  = 14
	iePacketsReceived    = 15
	iePacketsDropped     = 16
	iePacketsIfDropped   = 17
)

func ie(id uint16, length uint16) InformationElement { return InformationElement{ID: id, Length: length} }

func olsrIE(id uint16, length uint16) InformationElement {
	return InformationElement{ID: id, Length: length, Enterprise: enterpriseOLSR}
}

// Templates returns every template this emitter declares at startup.
func Templates() []Template {
	return []Template{
		{ID: TemplateIPv4Flow, Elements: []InformationElement{
			ie(ieSourceIPv4Address, 4), ie(ieDestinationIPv4Address, 4),
			ie(ieSourceTransportPort, 2), ie(ieDestinationTransportPort, 2),
			ie(ieProtocolIdentifier, 1),
			ie(ieOctetDeltaCount, 8), ie(iePacketDeltaCount, 8),
			ie(ieFlowStartSeconds, 4), ie(ieFlowEndSeconds, 4),
		}},
		{ID: TemplateIPv6Flow, Elements: []InformationElement{
			ie(ieSourceIPv6Address, 16), ie(ieDestinationIPv6Address, 16),
			ie(ieSourceTransportPort, 2), ie(ieDestinationTransportPort, 2),
			ie(ieProtocolIdentifier, 1),
			ie(ieOctetDeltaCount, 8), ie(iePacketDeltaCount, 8),
			ie(ieFlowStartSeconds, 4), ie(ieFlowEndSeconds, 4),
		}},
		{ID: TemplateNeighbor, Elements: []InformationElement{
			olsrIE(ieOLSROriginatorV4, 4), olsrIE(ieOLSROriginatorV6, 16),
			olsrIE(ieOLSRNeighborV4, 4), olsrIE(ieOLSRNeighborV6, 16),
			olsrIE(ieOLSRLinkQuality, 4), olsrIE(ieOLSRNeighborLQ, 4),
			olsrIE(ieOLSRValiditySecs, 4),
		}},
		{ID: TemplateTopology, Elements: []InformationElement{
			olsrIE(ieOLSROriginatorV4, 4), olsrIE(ieOLSROriginatorV6, 16),
			olsrIE(ieOLSRNeighborV4, 4), olsrIE(ieOLSRNeighborV6, 16),
			olsrIE(ieOLSRLinkQuality, 4), olsrIE(ieOLSRNeighborLQ, 4),
			olsrIE(ieOLSRValiditySecs, 4),
		}},
		{ID: TemplateMID, Elements: []InformationElement{
			olsrIE(ieOLSROriginatorV4, 4), olsrIE(ieOLSROriginatorV6, 16),
			olsrIE(ieOLSRAliasV4, 4), olsrIE(ieOLSRAliasV6, 16),
			olsrIE(ieOLSRValiditySecs, 4),
		}},
		{ID: TemplateHNA, Elements: []InformationElement{
			olsrIE(ieOLSROriginatorV4, 4), olsrIE(ieOLSROriginatorV6, 16),
			olsrIE(ieOLSRNetworkV4, 4), olsrIE(ieOLSRNetworkV6, 16),
			olsrIE(ieOLSRNetmaskV4, 4), olsrIE(ieOLSRNetmaskV6, 16),
			olsrIE(ieOLSRValiditySecs, 4),
		}},
		{ID: TemplateCaptureStats, Elements: []InformationElement{
			olsrIE(ieCaptureIfaceIndex, 4),
			olsrIE(iePacketsReceived, 8), olsrIE(iePacketsDropped, 8),
			olsrIE(iePacketsIfDropped, 8),
		}},
	}
}

func addrField(a addrfam.Addr) []byte {
	b := a.Bytes()
	return b[:a.Proto.Width()]
}

func u16Field(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32Field(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u64Field(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func floatField(v float32) []byte {
	return u32Field(math.Float32bits(v))
}

func secondsField(t time.Time) []byte {
	return u32Field(uint32(t.Unix()))
}

// EmitFlow maps one flow-table record into an IPFIX data record on the
// IPv4 or IPv6 flow template, chosen by rec's address family.
func (e *Exporter) EmitFlow(rec flowtable.Record) error {
	templateID := TemplateIPv4Flow
	if rec.Key.A.Addr.Proto == addrfam.IPv6 {
		templateID = TemplateIPv6Flow
	}

	if err := e.StartDataSet(templateID); err != nil {
		return err
	}
	fields := [][]byte{
		addrField(rec.Key.A.Addr), addrField(rec.Key.B.Addr),
		u16Field(rec.Key.A.Port), u16Field(rec.Key.B.Port),
		{byte(rec.Key.Transport)},
		u64Field(rec.Entry.TotalBytes), u64Field(rec.Entry.TotalPackets),
		secondsField(rec.Entry.FirstPacketTime), secondsField(rec.Entry.LastPacketTime),
	}
	for _, f := range fields {
		if err := e.PutDataField(f); err != nil {
			return err
		}
	}
	return e.EndDataSet()
}

func originatorFields(originator addrfam.Addr) (v4, v6 []byte) {
	empty4, empty6 := make([]byte, 4), make([]byte, 16)
	if originator.Proto == addrfam.IPv4 {
		return addrField(originator), empty6
	}
	return empty4, addrField(originator)
}

// EmitOLSREntry maps one reconstructed OLSR set entry (neighbor, topology,
// MID or HNA) into the matching IPFIX data record.
func (e *Exporter) EmitOLSREntry(originator addrfam.Addr, kind olsr.EntryKind, entry any) error {
	originatorV4, originatorV6 := originatorFields(originator)
	empty4, empty6 := make([]byte, 4), make([]byte, 16)

	switch kind {
	case olsr.KindNeighbor:
		ent := entry.(olsr.NeighborEntry)
		neighborV4, neighborV6 := empty4, empty6
		if ent.Neighbor.Proto == addrfam.IPv4 {
			neighborV4 = addrField(ent.Neighbor)
		} else {
			neighborV6 = addrField(ent.Neighbor)
		}
		return e.emitRecord(TemplateNeighbor, [][]byte{
			originatorV4, originatorV6, neighborV4, neighborV6,
			floatField(ent.LinkQuality), floatField(ent.NeighborLQ),
			secondsField(ent.Validity),
		})

	case olsr.KindTopology:
		ent := entry.(olsr.TopologyEntry)
		destV4, destV6 := empty4, empty6
		if ent.Destination.Proto == addrfam.IPv4 {
			destV4 = addrField(ent.Destination)
		} else {
			destV6 = addrField(ent.Destination)
		}
		return e.emitRecord(TemplateTopology, [][]byte{
			originatorV4, originatorV6, destV4, destV6,
			floatField(ent.LinkQuality), floatField(ent.NeighborLQ),
			secondsField(ent.Validity),
		})

	case olsr.KindMID:
		ent := entry.(olsr.MIDEntry)
		aliasV4, aliasV6 := empty4, empty6
		if ent.Alias.Proto == addrfam.IPv4 {
			aliasV4 = addrField(ent.Alias)
		} else {
			aliasV6 = addrField(ent.Alias)
		}
		return e.emitRecord(TemplateMID, [][]byte{
			originatorV4, originatorV6, aliasV4, aliasV6, secondsField(ent.Validity),
		})

	case olsr.KindHNA:
		ent := entry.(olsr.HNAEntry)
		netV4, netV6, maskV4, maskV6 := empty4, empty6, empty4, empty6
		if ent.Network.Proto == addrfam.IPv4 {
			netV4, maskV4 = addrField(ent.Network), addrField(ent.Netmask)
		} else {
			netV6, maskV6 = addrField(ent.Network), addrField(ent.Netmask)
		}
		return e.emitRecord(TemplateHNA, [][]byte{
			originatorV4, originatorV6, netV4, netV6, maskV4, maskV6, secondsField(ent.Validity),
		})

	default:
		return fmt.Errorf("ipfixexport: unknown OLSR entry kind %d", kind)
	}
}

// EmitCaptureStats maps one interface's kernel capture counters into a
// data record. packetsIfDropped is the driver-reported interface-level
// drop count, distinct from packetsDropped (the capture socket's own
// ring-buffer drop count).
func (e *Exporter) EmitCaptureStats(ifaceIndex uint32, packetsReceived, packetsDropped, packetsIfDropped uint64) error {
	return e.emitRecord(TemplateCaptureStats, [][]byte{
		u32Field(ifaceIndex), u64Field(packetsReceived), u64Field(packetsDropped), u64Field(packetsIfDropped),
	})
}

func (e *Exporter) emitRecord(templateID uint16, fields [][]byte) error {
	if err := e.StartDataSet(templateID); err != nil {
		return err
	}
	for _, f := range fields {
		if err := e.PutDataField(f); err != nil {
			return err
		}
	}
	return e.EndDataSet()
}
