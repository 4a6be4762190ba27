// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package flowrec provides the typed flow record shapes and identity keys
// used to index engine state: the uniform 128-bit address container, the
// decoded FlowRecord, and the HostKey used to address the host table.
package flowrec

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Addr is a 128-bit IP address container. IPv4 addresses are stored
// right-aligned in the low 4 bytes with the conventional IPv4-in-IPv6
// mapped prefix in the high 12 bytes, so is_v4/is_v6 and byte-compare fall
// out of the same representation without a separate tag bit.
type Addr struct {
	hi uint64 // bytes 0-7, network order
	lo uint64 // bytes 8-15, network order
}

var v4MappedPrefix = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// AddrFromV4 builds an Addr from four IPv4 octets, right-aligned.
func AddrFromV4(a, b, c, d byte) Addr {
	var buf [16]byte
	copy(buf[:12], v4MappedPrefix[:])
	buf[12], buf[13], buf[14], buf[15] = a, b, c, d
	return AddrFromBytes(buf)
}

// AddrFromV4Uint32 builds an Addr from a big-endian packed u32, as carried
// on the wire by the transport's SRC_IP/DST_IP fields for IPv4 flows.
func AddrFromV4Uint32(v uint32) Addr {
	var buf [16]byte
	copy(buf[:12], v4MappedPrefix[:])
	binary.BigEndian.PutUint32(buf[12:], v)
	return AddrFromBytes(buf)
}

// AddrFromNetIP converts a standard library net.IP into an Addr.
func AddrFromNetIP(ip net.IP) Addr {
	if v4 := ip.To4(); v4 != nil {
		return AddrFromV4(v4[0], v4[1], v4[2], v4[3])
	}
	v6 := ip.To16()
	var buf [16]byte
	copy(buf[:], v6)
	return AddrFromBytes(buf)
}

// ParseAddrString parses a dotted-quad or canonical IPv6 string, the inverse
// of Addr.String, used by the daily-log reader to round-trip Event fields.
func ParseAddrString(s string) (Addr, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return Addr{}, fmt.Errorf("invalid IP address %q", s)
	}
	return AddrFromNetIP(ip), nil
}

// AddrFromBytes builds an Addr from 16 raw bytes in network order.
func AddrFromBytes(b [16]byte) Addr {
	return Addr{
		hi: binary.BigEndian.Uint64(b[0:8]),
		lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// Bytes renders the address back to its 16-byte network-order form.
func (a Addr) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], a.hi)
	binary.BigEndian.PutUint64(b[8:16], a.lo)
	return b
}

// IsV4 reports whether the address carries the IPv4-mapped prefix.
func (a Addr) IsV4() bool {
	return a.hi == 0 && uint32(a.lo>>32) == 0x0000ffff
}

// IsV6 reports the complement of IsV4.
func (a Addr) IsV6() bool {
	return !a.IsV4()
}

// AsU32V4 returns the 32-bit representation of an IPv4 address. Behavior is
// undefined (returns the low 32 bits verbatim) if the address is not IPv4;
// callers must check IsV4 first.
func (a Addr) AsU32V4() uint32 {
	return uint32(a.lo & 0xffffffff)
}

// Compare performs an opaque byte-wise comparison, matching the contract
// that HostKey equality never inspects address family.
func (a Addr) Compare(o Addr) int {
	switch {
	case a.hi < o.hi:
		return -1
	case a.hi > o.hi:
		return 1
	case a.lo < o.lo:
		return -1
	case a.lo > o.lo:
		return 1
	default:
		return 0
	}
}

// String renders a dotted-quad for IPv4 or the canonical net.IP form for
// IPv6. Used for logging and Event rendering only, never for comparison.
func (a Addr) String() string {
	if a.IsV4() {
		return fmt.Sprintf("%d.%d.%d.%d",
			byte(a.lo>>24), byte(a.lo>>16), byte(a.lo>>8), byte(a.lo))
	}
	b := a.Bytes()
	return net.IP(b[:]).String()
}

// MaskV4 applies a /prefixLen CIDR mask (0-32) to an IPv4 address, keeping
// the IPv4-mapped prefix intact in the high bytes.
func (a Addr) MaskV4(prefixLen int) Addr {
	if prefixLen >= 32 {
		return a
	}
	if prefixLen <= 0 {
		return AddrFromV4Uint32(0)
	}
	mask := ^uint32(0) << uint(32-prefixLen)
	return AddrFromV4Uint32(a.AsU32V4() & mask)
}

// MaskV6 applies a /prefixLen CIDR mask (0-128) to an arbitrary address.
func (a Addr) MaskV6(prefixLen int) Addr {
	if prefixLen >= 128 {
		return a
	}
	hi, lo := a.hi, a.lo
	switch {
	case prefixLen <= 0:
		hi, lo = 0, 0
	case prefixLen < 64:
		hi &= ^uint64(0) << uint(64-prefixLen)
		lo = 0
	default:
		lo &= ^uint64(0) << uint(128-prefixLen)
	}
	return Addr{hi: hi, lo: lo}
}
