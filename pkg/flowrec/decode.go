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
	"encoding/binary"
	"errors"
	"io"
)

// FixedPartSize is the byte length of a FlowRecord's fixed-size wire
// encoding: 2x16 address + 2x2 ports + 1 proto + 4 packets + 8 bytes
// + 4+2 time_first + 4+2 time_last + 1 tcp flags + 1 dir bits + 8 link bits.
const FixedPartSize = 16 + 16 + 2 + 2 + 1 + 4 + 8 + 4 + 2 + 4 + 2 + 1 + 1 + 8

// ErrEndOfStream is returned by Decode when it reads the transport's 1-byte
// end-of-stream marker; callers should stop ingest cleanly, not treat it as
// an error condition.
var ErrEndOfStream = errors.New("flowrec: end of stream marker")

// ErrShortFrame is returned when a frame's fixed part is smaller than
// FixedPartSize; the decoder contract rejects such frames outright.
var ErrShortFrame = errors.New("flowrec: frame shorter than fixed part")

// Decode reads one transport frame from r and produces a FlowRecord.
//
// Frames are length-prefixed: a 2-byte big-endian length followed by that
// many bytes of payload. A length of exactly 1 signals the end-of-stream
// marker and yields ErrEndOfStream with no FlowRecord. A payload shorter
// than FixedPartSize is rejected with ErrShortFrame; the caller logs and
// continues (this is an input-validation error, not fatal to the stream).
func Decode(r io.Reader) (FlowRecord, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return FlowRecord{}, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	if n == 1 {
		var marker [1]byte
		if _, err := io.ReadFull(r, marker[:]); err != nil {
			return FlowRecord{}, err
		}
		return FlowRecord{}, ErrEndOfStream
	}
	if int(n) < FixedPartSize {
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return FlowRecord{}, err
		}
		return FlowRecord{}, ErrShortFrame
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return FlowRecord{}, err
	}
	return decodeFixed(buf), nil
}

func decodeFixed(b []byte) FlowRecord {
	var src, dst [16]byte
	copy(src[:], b[0:16])
	copy(dst[:], b[16:32])
	off := 32
	rec := FlowRecord{
		SrcIP:   AddrFromBytes(src),
		DstIP:   AddrFromBytes(dst),
		SrcPort: binary.BigEndian.Uint16(b[off:]),
		DstPort: binary.BigEndian.Uint16(b[off+2:]),
	}
	off += 4
	rec.Protocol = b[off]
	off++
	rec.Packets = binary.BigEndian.Uint32(b[off:])
	off += 4
	rec.Bytes = binary.BigEndian.Uint64(b[off:])
	off += 8
	rec.TimeFirstSec = binary.BigEndian.Uint32(b[off:])
	off += 4
	rec.TimeFirstMillis = binary.BigEndian.Uint16(b[off:])
	off += 2
	rec.TimeLastSec = binary.BigEndian.Uint32(b[off:])
	off += 4
	rec.TimeLastMillis = binary.BigEndian.Uint16(b[off:])
	off += 2
	rec.TCPFlags = b[off]
	off++
	rec.DirBits = b[off]
	off++
	rec.LinkBits = binary.BigEndian.Uint64(b[off:])
	return rec
}

// Encode is the inverse of Decode, used by the replay tool to build fixture
// files and by tests to round-trip records.
func Encode(w io.Writer, r FlowRecord) error {
	buf := make([]byte, FixedPartSize)
	src, dst := r.SrcIP.Bytes(), r.DstIP.Bytes()
	copy(buf[0:16], src[:])
	copy(buf[16:32], dst[:])
	off := 32
	binary.BigEndian.PutUint16(buf[off:], r.SrcPort)
	binary.BigEndian.PutUint16(buf[off+2:], r.DstPort)
	off += 4
	buf[off] = r.Protocol
	off++
	binary.BigEndian.PutUint32(buf[off:], r.Packets)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], r.Bytes)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], r.TimeFirstSec)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], r.TimeFirstMillis)
	off += 2
	binary.BigEndian.PutUint32(buf[off:], r.TimeLastSec)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], r.TimeLastMillis)
	off += 2
	buf[off] = r.TCPFlags
	off++
	buf[off] = r.DirBits
	off++
	binary.BigEndian.PutUint64(buf[off:], r.LinkBits)

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// EncodeEndOfStream writes the 1-byte end-of-stream marker frame.
func EncodeEndOfStream(w io.Writer) error {
	if _, err := w.Write([]byte{0x00, 0x01, 0x00}); err != nil {
		return err
	}
	return nil
}
