// Package ipfixexport implements component C6, the IPFIX (RFC 7011)
// record emitter. The underlying transport library (collector
// registration, template declaration, message framing, send over
// UDP/TCP/SCTP) is treated as an external collaborator described only by
// the operations it exposes; this package is that collaborator's concrete
// implementation. pkg/engine calls InitExporter, AddCollector and
// DeclareTemplate; pkg/scheduler calls the EmitFlow, EmitOLSREntry and
// EmitCaptureStats helpers (built on StartDataSet, PutDataField and
// EndDataSet) followed by SendCurrentMessage.
package ipfixexport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// Transport is the collector's transport protocol.
type Transport int

// Transports a collector may be reached over.
const (
	UDP Transport = iota
	TCP
	SCTP
)

func (t Transport) String() string {
	switch t {
	case UDP:
		return "udp"
	case TCP:
		return "tcp"
	case SCTP:
		return "sctp"
	default:
		return "unknown"
	}
}

const (
	ipfixVersion = 10

	messageHeaderLen = 16
	setHeaderLen     = 4

	templateSetID = 2
)

// InformationElement is one field specifier inside a template record
// (RFC 7011 §3.2). Enterprise carries a private enterprise number for the
// locally-defined OLSR elements this system emits; it is zero for the
// standard IANA-registered flow elements.
type InformationElement struct {
	ID         uint16
	Length     uint16
	Enterprise uint32
}

// Template is an ordered field layout registered under ID, matching one
// record shape the emitter produces (IPv4 flow, IPv6 flow, neighbor,
// topology, MID, HNA, capture stats; see Templates).
type Template struct {
	ID       uint16
	Elements []InformationElement
}

func (t Template) encode() []byte {
	const enterpriseBit = 0x8000

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, t.ID)
	binary.Write(buf, binary.BigEndian, uint16(len(t.Elements)))
	for _, ie := range t.Elements {
		id := ie.ID
		if ie.Enterprise != 0 {
			id |= enterpriseBit
		}
		binary.Write(buf, binary.BigEndian, id)
		binary.Write(buf, binary.BigEndian, ie.Length)
		if ie.Enterprise != 0 {
			binary.Write(buf, binary.BigEndian, ie.Enterprise)
		}
	}
	return buf.Bytes()
}

var (
	errNoDataSetOpen    = errors.New("ipfixexport: no data set open")
	errDataSetOpen      = errors.New("ipfixexport: a data set is already open")
	errUnknownTemplate  = errors.New("ipfixexport: unknown template id")
	errSCTPUnsupported  = errors.New("ipfixexport: sctp collectors are not supported by this build")
	errNoCollectors     = errors.New("ipfixexport: no collectors registered")
)

// Anonymizer transforms an address field before it is emitted, e.g. with
// CryptoPAn prefix-preserving anonymization. No implementation ships here,
// and no function in this package accepts one: addresses are emitted as
// captured.
type Anonymizer interface {
	AnonymizeIPv4(addr [4]byte) [4]byte
	AnonymizeIPv6(addr [16]byte) [16]byte
}

// collector is one registered destination and whether it still needs the
// current template set sent. The flag is set when the collector is added
// and on every DeclareTemplate call, and cleared once a message carrying
// the template set has gone out; templates are not resent periodically
// after that.
type collector struct {
	conn      net.Conn
	transport Transport
	mtuHint   int
	needsTmpl bool
}

// setBuilder accumulates PutDataField calls for one open data set.
type setBuilder struct {
	templateID uint16
	fields     [][]byte
}

// Exporter is the stateful emitter: one per observation domain.
type Exporter struct {
	domainID   uint32
	seq        uint32
	templates  map[uint16]Template
	collectors []*collector

	pendingSets [][]byte
	open        *setBuilder

	now func() time.Time
}

// InitExporter creates an Exporter for one observation domain id.
func InitExporter(domainID uint32) *Exporter {
	return &Exporter{
		domainID:  domainID,
		templates: make(map[uint16]Template),
		now:       time.Now,
	}
}

// AddCollector registers a new export destination. SCTP is not
// implemented: Go's standard library has no SCTP client, and none of the
// libraries available to this module provide one either, so SCTP
// collectors are rejected up front rather than silently downgraded.
func (e *Exporter) AddCollector(ip net.IP, port uint16, transport Transport, mtuHint int) error {
	switch transport {
	case UDP:
	case TCP:
	case SCTP:
		return errSCTPUnsupported
	default:
		return fmt.Errorf("ipfixexport: unknown transport %d", transport)
	}

	addr := net.JoinHostPort(ip.String(), fmt.Sprintf("%d", port))
	conn, err := net.Dial(transport.String(), addr)
	if err != nil {
		return fmt.Errorf("ipfixexport: dial %s %s: %w", transport, addr, err)
	}

	e.collectors = append(e.collectors, &collector{
		conn:      conn,
		transport: transport,
		mtuHint:   mtuHint,
		needsTmpl: true,
	})
	return nil
}

// DeclareTemplate registers tmpl and flags every collector to receive it
// again before the next data set referencing it is sent.
func (e *Exporter) DeclareTemplate(tmpl Template) {
	e.templates[tmpl.ID] = tmpl
	for _, c := range e.collectors {
		c.needsTmpl = true
	}
}

// StartDataSet opens a new data set for templateID. Only one data set may
// be open at a time; call EndDataSet before starting another.
func (e *Exporter) StartDataSet(templateID uint16) error {
	if e.open != nil {
		return errDataSetOpen
	}
	if _, ok := e.templates[templateID]; !ok {
		return errUnknownTemplate
	}
	e.open = &setBuilder{templateID: templateID}
	return nil
}

// PutDataField appends one already-encoded field to the open data set.
func (e *Exporter) PutDataField(data []byte) error {
	if e.open == nil {
		return errNoDataSetOpen
	}
	e.open.fields = append(e.open.fields, data)
	return nil
}

// EndDataSet closes the open data set, encoding it as a pending IPFIX set
// to be flushed by the next SendCurrentMessage call.
func (e *Exporter) EndDataSet() error {
	if e.open == nil {
		return errNoDataSetOpen
	}
	set := e.open
	e.open = nil

	buf := new(bytes.Buffer)
	buf.Write(make([]byte, setHeaderLen))
	for _, f := range set.fields {
		buf.Write(f)
	}
	out := buf.Bytes()
	binary.BigEndian.PutUint16(out[0:2], set.templateID)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))

	e.pendingSets = append(e.pendingSets, out)
	return nil
}

// SendCurrentMessage frames every pending data set (and, for collectors
// that need it, the declared templates) into one IPFIX message per
// collector and writes it out, advancing the sequence number by the
// number of records sent this message (RFC 7011 §3.1).
func (e *Exporter) SendCurrentMessage() error {
	if len(e.collectors) == 0 {
		return errNoCollectors
	}
	if e.open != nil {
		return errDataSetOpen
	}

	recordCount := e.pendingRecordCount()
	tmplSet := e.encodeTemplateSet()

	for _, c := range e.collectors {
		sets := e.pendingSets
		if c.needsTmpl && tmplSet != nil {
			sets = append([][]byte{tmplSet}, sets...)
			c.needsTmpl = false
		}
		if len(sets) == 0 {
			continue
		}
		msg := e.encodeMessage(sets)
		if _, err := c.conn.Write(msg); err != nil {
			return fmt.Errorf("ipfixexport: write to %s: %w", c.conn.RemoteAddr(), err)
		}
	}

	e.seq += uint32(recordCount)
	e.pendingSets = nil
	return nil
}

// pendingRecordCount assumes one record per data set, which holds for
// every emitter call site in pkg/scheduler today.
func (e *Exporter) pendingRecordCount() int {
	return len(e.pendingSets)
}

func (e *Exporter) encodeTemplateSet() []byte {
	if len(e.templates) == 0 {
		return nil
	}
	buf := new(bytes.Buffer)
	buf.Write(make([]byte, setHeaderLen))
	for _, tmpl := range e.templates {
		buf.Write(tmpl.encode())
	}
	out := buf.Bytes()
	binary.BigEndian.PutUint16(out[0:2], templateSetID)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))
	return out
}

func (e *Exporter) encodeMessage(sets [][]byte) []byte {
	buf := new(bytes.Buffer)
	buf.Write(make([]byte, messageHeaderLen))
	for _, s := range sets {
		buf.Write(s)
	}
	out := buf.Bytes()
	binary.BigEndian.PutUint16(out[0:2], ipfixVersion)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))
	binary.BigEndian.PutUint32(out[4:8], uint32(e.now().Unix()))
	binary.BigEndian.PutUint32(out[8:12], e.seq)
	binary.BigEndian.PutUint32(out[12:16], e.domainID)
	return out
}

// Close shuts down every collector connection.
func (e *Exporter) Close() {
	for _, c := range e.collectors {
		c.conn.Close()
	}
}
