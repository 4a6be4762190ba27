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

package flowrec

// HostKey is the identity used to index engine state: an opaque 128-bit IP
// container. Keys never carry direction; in/out counters live alongside each
// other inside the same HostRecord.
type HostKey struct {
	Addr Addr
}

// fnvOffset/fnvPrime are the 64-bit FNV-1a constants; the engine hashes the
// 16 address bytes with them rather than pulling in a general hash package,
// matching the spec's "FNV-style over the 16 bytes" contract exactly.
const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

// Hash64 computes an FNV-1a hash over the key's 16 address bytes.
func (k HostKey) Hash64() uint64 {
	b := k.Addr.Bytes()
	h := uint64(fnvOffset)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime
	}
	return h
}

// Equal compares two keys as opaque bytes.
func (k HostKey) Equal(o HostKey) bool {
	return k.Addr.Compare(o.Addr) == 0
}

func (k HostKey) String() string {
	return k.Addr.String()
}

// Direction tags classify a flow's observed role.
type Direction uint8

const (
	DirNotRecognized Direction = iota
	DirRequest
	DirResponse
	DirSingleFlow
)

// decodeDirection maps the wire DIR_BIT_FIELD (0x8=REQ, 0x4=RSP, 0x2=SF,
// 0x1=NRC) onto Direction. Multiple bits set resolve in REQ > RSP > SF > NRC
// priority order, matching how the upstream exporter documents the field.
func decodeDirection(bits uint8) Direction {
	switch {
	case bits&0x8 != 0:
		return DirRequest
	case bits&0x4 != 0:
		return DirResponse
	case bits&0x2 != 0:
		return DirSingleFlow
	default:
		return DirNotRecognized
	}
}

// TCP flag bits, as carried in FlowRecord.TCPFlags (a union across the flow).
const (
	TCPFin = 1 << iota
	TCPSyn
	TCPRst
	TCPPsh
	TCPAck
	TCPUrg
)

// FlowRecord is the decoded, typed summary of one unidirectional flow as
// produced by the upstream exporter's transport frame.
type FlowRecord struct {
	SrcIP, DstIP     Addr
	SrcPort, DstPort uint16
	Protocol         uint8 // L4 code: 6=TCP, 17=UDP
	Packets          uint32
	Bytes            uint64
	TimeFirstSec     uint32
	TimeFirstMillis  uint16
	TimeLastSec      uint32
	TimeLastMillis   uint16
	TCPFlags         uint8
	DirBits          uint8
	LinkBits         uint64
}

// Direction decodes the DIR_BIT_FIELD into the Direction enum.
func (r FlowRecord) Direction() Direction {
	return decodeDirection(r.DirBits)
}

// Duration returns the flow's duration in whole seconds per spec.md's
// d = time_last - time_first + 1 convention (inclusive of both endpoints).
func (r FlowRecord) Duration() uint32 {
	if r.TimeLastSec < r.TimeFirstSec {
		return 1
	}
	return r.TimeLastSec - r.TimeFirstSec + 1
}

// Valid reports the record's one hard invariant: time_last >= time_first.
func (r FlowRecord) Valid() bool {
	if r.TimeLastSec != r.TimeFirstSec {
		return r.TimeLastSec > r.TimeFirstSec
	}
	return r.TimeLastMillis >= r.TimeFirstMillis
}

// IsFragmentArtifact reports the upstream fragment-reassembly artifact
// spec.md calls out: UDP flows with both ports zero are silently skipped.
func (r FlowRecord) IsFragmentArtifact() bool {
	return r.Protocol == 17 && r.SrcPort == 0 && r.DstPort == 0
}

// SourceKey and DestKey are the HostKeys this flow contributes to.
func (r FlowRecord) SourceKey() HostKey { return HostKey{Addr: r.SrcIP} }
func (r FlowRecord) DestKey() HostKey   { return HostKey{Addr: r.DstIP} }
