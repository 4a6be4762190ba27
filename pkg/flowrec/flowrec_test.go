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

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddrV4RoundTrip(t *testing.T) {
	a := AddrFromV4(192, 168, 1, 42)
	assert.True(t, a.IsV4())
	assert.False(t, a.IsV6())
	assert.Equal(t, uint32(0xC0A8012A), a.AsU32V4())
	assert.Equal(t, "192.168.1.42", a.String())
}

func TestAddrV6IsNotV4(t *testing.T) {
	var b [16]byte
	b[0] = 0x20
	b[1] = 0x01
	a := AddrFromBytes(b)
	assert.True(t, a.IsV6())
	assert.False(t, a.IsV4())
}

func TestAddrMaskV4(t *testing.T) {
	a := AddrFromV4(203, 0, 113, 42)
	masked := a.MaskV4(24)
	assert.Equal(t, "203.0.113.0", masked.String())
}

func TestHostKeyHashStable(t *testing.T) {
	k1 := HostKey{Addr: AddrFromV4(10, 0, 0, 1)}
	k2 := HostKey{Addr: AddrFromV4(10, 0, 0, 1)}
	assert.Equal(t, k1.Hash64(), k2.Hash64())
	assert.True(t, k1.Equal(k2))

	k3 := HostKey{Addr: AddrFromV4(10, 0, 0, 2)}
	assert.False(t, k1.Equal(k3))
}

func TestFlowRecordValidInvariant(t *testing.T) {
	r := FlowRecord{TimeFirstSec: 100, TimeLastSec: 99}
	assert.False(t, r.Valid())

	r2 := FlowRecord{TimeFirstSec: 100, TimeLastSec: 100, TimeFirstMillis: 500, TimeLastMillis: 100}
	assert.False(t, r2.Valid())

	r3 := FlowRecord{TimeFirstSec: 100, TimeLastSec: 101}
	assert.True(t, r3.Valid())
}

func TestFragmentArtifact(t *testing.T) {
	r := FlowRecord{Protocol: 17, SrcPort: 0, DstPort: 0}
	assert.True(t, r.IsFragmentArtifact())
	r.DstPort = 53
	assert.False(t, r.IsFragmentArtifact())
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	orig := FlowRecord{
		SrcIP: AddrFromV4(10, 0, 0, 1), DstIP: AddrFromV4(192, 168, 0, 1),
		SrcPort: 4321, DstPort: 22, Protocol: 6,
		Packets: 5, Bytes: 1500,
		TimeFirstSec: 1000, TimeFirstMillis: 1, TimeLastSec: 1002, TimeLastMillis: 5,
		TCPFlags: TCPSyn, DirBits: 0x8, LinkBits: 7,
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, orig))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestDecodeEndOfStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeEndOfStream(&buf))
	_, err := Decode(&buf)
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestDecodeShortFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x04, 0xDE, 0xAD, 0xBE, 0xEF})
	_, err := Decode(&buf)
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestDirectionDecode(t *testing.T) {
	assert.Equal(t, DirRequest, FlowRecord{DirBits: 0x8}.Direction())
	assert.Equal(t, DirResponse, FlowRecord{DirBits: 0x4}.Direction())
	assert.Equal(t, DirSingleFlow, FlowRecord{DirBits: 0x2}.Direction())
	assert.Equal(t, DirNotRecognized, FlowRecord{DirBits: 0x1}.Direction())
	assert.Equal(t, DirNotRecognized, FlowRecord{DirBits: 0x0}.Direction())
}
