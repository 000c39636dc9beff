package capture

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fako1024/gopacket/afpacket"
	"golang.org/x/net/bpf"
)

// DefaultSnapLen holds a full standard Ethernet frame (1500-byte MTU plus
// the 14-byte header). Besides the headers, the classifier hands the whole
// UDP payload of OLSR traffic to the decoder, so the snapshot has to carry
// that payload too.
const DefaultSnapLen = 1514

const (
	defaultRingTargetSize = 4 * 1024 * 1024
	pollTimeout           = 200 * time.Millisecond
)

// AFPacketSource is an InterfaceSource backed by a memory-mapped AF_PACKET
// socket, grounded on goProbe's afpacket capture source.
type AFPacketSource struct {
	handle *afpacket.TPacket
	iface  string
}

// NewAFPacketSource opens a raw capture socket on iface and installs filter,
// as built by FilterFor (ipOnlyFilter or egressExcludingIPFilter). None of
// the options passed to afpacket enable promiscuous mode, so the socket
// sees only the traffic the interface itself accepts.
func NewAFPacketSource(iface string, filter []bpf.RawInstruction) (*AFPacketSource, error) {
	szFrame, szBlock, numBlocks, err := computeRingSize(defaultRingTargetSize, DefaultSnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("capture: %s: %w", iface, err)
	}

	opts := []interface{}{
		afpacket.OptFrameSize(szFrame),
		afpacket.OptBlockSize(szBlock),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptAddVLANHeader(false),
		afpacket.OptPollTimeout(pollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	}
	if !strings.EqualFold(iface, "any") {
		opts = append(opts, afpacket.OptInterface(iface))
	}

	handle, err := afpacket.NewTPacket(opts...)
	if err != nil {
		return nil, fmt.Errorf("capture: %s: open: %w", iface, err)
	}

	if len(filter) > 0 {
		if err := handle.SetBPF(filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("capture: %s: set filter: %w", iface, err)
		}
	}

	return &AFPacketSource{handle: handle, iface: iface}, nil
}

// NextPacket blocks until a frame is available or the socket is closed.
func (s *AFPacketSource) NextPacket() (data []byte, wireLen uint32, err error) {
	raw, ci, err := s.handle.ZeroCopyReadPacketData()
	if err != nil {
		return nil, 0, err
	}
	return raw, uint32(ci.Length), nil
}

// Stats returns the kernel's packets-received/dropped counters for this
// socket, plus the interface-level drop counter the NIC driver reports
// via sysfs (packets dropped before ever reaching this socket).
func (s *AFPacketSource) Stats() (Stats, error) {
	_, stats, err := s.handle.SocketStats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		PacketsReceived:  uint64(stats.Packets()),
		PacketsDropped:   uint64(stats.Drops()),
		PacketsIfDropped: ifaceRxDropped(s.iface),
	}, nil
}

// ifaceRxDropped reads the driver-reported rx_dropped counter for iface
// from sysfs. A missing or unreadable counter (e.g. the "any" pseudo-
// interface, which has no sysfs entry) is reported as zero rather than
// an error, since this counter is a supplementary metric, not load-bearing.
func ifaceRxDropped(iface string) uint64 {
	data, err := os.ReadFile(filepath.Join("/sys/class/net", iface, "statistics/rx_dropped"))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Close releases the underlying socket.
func (s *AFPacketSource) Close() {
	s.handle.Close()
}

// FilterFor builds the BPF program to attach for iface: an egress-excluding
// filter when the interface's hardware address is known (the normal case
// for any wired/wireless NIC), falling back to the plain IP-only filter
// for pseudo-interfaces (e.g. "any") that carry no single MAC.
func FilterFor(iface string) ([]bpf.RawInstruction, error) {
	nic, err := net.InterfaceByName(iface)
	if err != nil || len(nic.HardwareAddr) != 6 {
		return ipOnlyFilter()
	}
	return egressExcludingIPFilter(nic.HardwareAddr)
}

// computeRingSize picks a frame size, block size and block count for the
// AF_PACKET mmap ring such that the ring's total size, blockSize*numBlocks,
// stays at or under targetSize, with a frame size of at least snaplen and
// 128 frames per block (grounded on goProbe's afpacketComputeSize).
func computeRingSize(targetSize, snaplen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if snaplen < pageSize {
		frameSize = pageSize / (pageSize / snaplen)
	} else {
		frameSize = (snaplen/pageSize + 1) * pageSize
	}

	blockSize = frameSize * 128
	numBlocks = targetSize / blockSize
	if numBlocks == 0 {
		return 0, 0, 0, fmt.Errorf("capture: target ring size %d too small for frame size %d", targetSize, frameSize)
	}

	return frameSize, blockSize, numBlocks, nil
}
