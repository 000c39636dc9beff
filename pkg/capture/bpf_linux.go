package capture

import (
	"encoding/binary"
	"errors"
	"net"

	"golang.org/x/net/bpf"
)

var errInvalidMAC = errors.New("capture: interface hardware address is not 6 bytes")

const (
	ethOffsetSrcMAC = 6
	ethOffsetType   = 12
	ethHeaderLen    = 14

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
)

// ipOnlyFilter accepts only IPv4 and IPv6 frames, rejecting everything
// else (ARP, STP, LLDP, ...) at the kernel's ring-buffer boundary so the
// classifier never has to.
func ipOnlyFilter() ([]bpf.RawInstruction, error) {
	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: ethOffsetType, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipTrue: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv6, SkipTrue: 1},
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: 0xffffffff},
	}
	return bpf.Assemble(prog)
}

// egressExcludingIPFilter is ipOnlyFilter further restricted to drop
// frames whose source MAC is iface's own address, so traffic this host
// transmits is not also captured (and double-counted) coming back off the
// wire on interfaces that loop transmitted frames past the capture point.
func egressExcludingIPFilter(iface net.HardwareAddr) ([]bpf.RawInstruction, error) {
	if len(iface) != 6 {
		return nil, errInvalidMAC
	}
	macHi := binary.BigEndian.Uint32(iface[0:4])
	macLo := uint32(binary.BigEndian.Uint16(iface[4:6]))

	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: ethOffsetType, Size: 2}, // 0
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipTrue: 1},         // 1
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv6, SkipFalse: 4},        // 2
		bpf.LoadAbsolute{Off: ethOffsetSrcMAC, Size: 4},                         // 3
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: macHi, SkipFalse: 3},               // 4
		bpf.LoadAbsolute{Off: ethOffsetSrcMAC + 4, Size: 2},                     // 5
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: macLo, SkipFalse: 1},               // 6
		bpf.RetConstant{Val: 0},                                                 // 7: reject (egress)
		bpf.RetConstant{Val: 0xffffffff},                                        // 8: accept
	}
	return bpf.Assemble(prog)
}
