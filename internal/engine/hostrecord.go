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

// Package engine implements the stateful core of the detector: the bounded
// host table, the host-profile aggregator, the rolling interval accumulator,
// the rule engine, and the sweep scheduler that ties them together.
package engine

import (
	"math"

	"hoststats/pkg/flowrec"
)

// saturatingAddU32 adds delta to v, clamping at math.MaxUint32 instead of
// wrapping. Every HostRecord counter goes through this primitive.
func saturatingAddU32(v uint32, delta uint32) uint32 {
	if math.MaxUint32-v < delta {
		return math.MaxUint32
	}
	return v + delta
}

func saturatingAddU64(v uint64, delta uint64) uint64 {
	if math.MaxUint64-v < delta {
		return math.MaxUint64
	}
	return v + delta
}

func saturatingIncU32(v uint32) uint32 {
	return saturatingAddU32(v, 1)
}

// directionCounters holds the flow/packet/byte/flag counters maintained for
// one (in|out) x (all|req|rsp) combination. A HostRecord carries six of
// these: out_all, out_req, out_rsp, in_all, in_req, in_rsp.
type directionCounters struct {
	Flows     uint32
	Packets   uint32
	Bytes     uint64
	Syn       uint32
	Ack       uint32
	Fin       uint32
	Rst       uint32
	Psh       uint32
	Urg       uint32
	UniqueIPs uint32
}

func (c *directionCounters) add(packets uint32, bytes uint64, flags uint8) {
	c.Flows = saturatingIncU32(c.Flows)
	c.Packets = saturatingAddU32(c.Packets, packets)
	c.Bytes = saturatingAddU64(c.Bytes, bytes)
	if flags&flowrec.TCPSyn != 0 {
		c.Syn = saturatingIncU32(c.Syn)
	}
	if flags&flowrec.TCPAck != 0 {
		c.Ack = saturatingIncU32(c.Ack)
	}
	if flags&flowrec.TCPFin != 0 {
		c.Fin = saturatingIncU32(c.Fin)
	}
	if flags&flowrec.TCPRst != 0 {
		c.Rst = saturatingIncU32(c.Rst)
	}
	if flags&flowrec.TCPPsh != 0 {
		c.Psh = saturatingIncU32(c.Psh)
	}
	if flags&flowrec.TCPUrg != 0 {
		c.Urg = saturatingIncU32(c.Urg)
	}
}

// SubProfile is the narrower counter set attached to a HostRecord only when
// at least one flow matched its filter (SSH: TCP/22; DNS: TCP or UDP/53).
// Modeled as a tagged optional per spec.md's Design Notes rather than a bare
// pointer: Present distinguishes "never allocated" from "allocated but
// zero".
type SubProfile struct {
	Present bool

	OutAll directionCounters
	OutReq directionCounters
	OutRsp directionCounters
	InAll  directionCounters
	InReq  directionCounters
	InRsp  directionCounters

	// DNS-only: counts of responses at/above the 1000-byte "overlimit"
	// threshold, observed on each side.
	OutRspOverlimitCnt uint32
	InRspOverlimitCnt  uint32
}

func (s *SubProfile) ensure() *SubProfile {
	s.Present = true
	return s
}

// HostRecord is the dense, saturating counter set the engine keeps for one
// HostKey. It is mutated only by the ingest thread holding the owning
// table slot's lock, and read by the sweep thread under the same lock.
type HostRecord struct {
	OutAll directionCounters
	OutReq directionCounters
	OutRsp directionCounters
	InAll  directionCounters
	InReq  directionCounters
	InRsp  directionCounters

	LinkBits  uint64
	FirstSeen uint32
	LastSeen  uint32

	SSH *SubProfile
	DNS *SubProfile
}

// NewHostRecord returns a freshly zeroed record, as get_or_insert hands back
// for a key not previously present.
func NewHostRecord() *HostRecord {
	return &HostRecord{}
}

// touch updates the record's observation window and link bitfield; called
// once per flow regardless of which side (src/dst) the record represents.
func (h *HostRecord) touch(r flowrec.FlowRecord) {
	if h.FirstSeen == 0 || r.TimeFirstSec < h.FirstSeen {
		h.FirstSeen = r.TimeFirstSec
	}
	if r.TimeLastSec > h.LastSeen {
		h.LastSeen = r.TimeLastSec
	}
	h.LinkBits |= r.LinkBits
}

// subProfileMatches reports whether r belongs to the named sub-profile's
// flow filter, per spec.md §4.C5 step 4.
func subProfileMatches(name string, r flowrec.FlowRecord) bool {
	switch name {
	case "ssh":
		return r.Protocol == 6 && (r.SrcPort == 22 || r.DstPort == 22)
	case "dns":
		return (r.Protocol == 6 || r.Protocol == 17) && (r.SrcPort == 53 || r.DstPort == 53)
	default:
		return false
	}
}

// dnsOverlimitBytes is the §4.C7 R5 "overlimit" threshold: a response of at least
// 1000 bytes.
const dnsOverlimitBytes = 1000
