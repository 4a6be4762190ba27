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

package bloom

import "hoststats/pkg/flowrec"

// Key is the packed (src_ip, dst_ip, first_seen-low-15-bits, origin) tuple
// inserted into a Pair. The origin bit disambiguates "the src side inserted
// this peer edge" from "the dst side inserted this peer edge" so that the
// same edge bumps both endpoints' unique-peer estimate independently.
type Key struct {
	Src, Dst flowrec.Addr
	Epoch15  uint16 // first_seen timestamp, low 15 bits
	Origin   bool
}

// WithOrigin returns a copy of the key with the origin bit set as requested;
// makes the src/dst duality explicit at call sites instead of a bare bool
// parameter.
func (k Key) WithOrigin(origin bool) Key {
	k.Origin = origin
	return k
}

// hash64 is FNV-1a over b starting from seed. Hashes calls it with two
// different seeds (the first is the standard FNV offset basis, the same one
// flowrec.HostKey uses), so the pair (h1, h2) behaves as two independent hash
// functions for the Kirsch-Mitzenmacher double-hashing scheme.
func hash64(seed uint64, b []byte) uint64 {
	h := seed
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

// Hashes derives the two independent 64-bit hashes bloom.Pair needs from the
// packed key fields.
func (k Key) Hashes() (h1, h2 uint64) {
	srcB := k.Src.Bytes()
	dstB := k.Dst.Bytes()
	buf := make([]byte, 0, 36)
	buf = append(buf, srcB[:]...)
	buf = append(buf, dstB[:]...)
	var epochByte [2]byte
	epochByte[0] = byte(k.Epoch15 >> 8)
	epochByte[1] = byte(k.Epoch15)
	if k.Origin {
		epochByte[0] |= 0x80
	}
	buf = append(buf, epochByte[:]...)

	h1 = hash64(14695981039346656037, buf)
	h2 = hash64(0xcbf29ce484222325^0x9e3779b97f4a7c15, buf)
	return h1, h2
}
