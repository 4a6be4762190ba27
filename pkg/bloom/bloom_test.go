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

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hoststats/pkg/flowrec"
)

func TestFilterInsertContains(t *testing.T) {
	f := New(1000, 0.01)
	h1, h2 := uint64(12345), uint64(67890)
	assert.False(t, f.Contains(h1, h2))
	f.Insert(h1, h2)
	assert.True(t, f.Contains(h1, h2))
}

func TestFilterClear(t *testing.T) {
	f := New(1000, 0.01)
	f.Insert(1, 2)
	f.Clear()
	assert.False(t, f.Contains(1, 2))
}

func TestPairContainsAndInsertFirstSeenFalse(t *testing.T) {
	p := NewPair(1000, 0.01)
	seen := p.ContainsAndInsert(111, 222)
	assert.False(t, seen, "first observation must report not-previously-seen")

	seen = p.ContainsAndInsert(111, 222)
	assert.True(t, seen, "second observation within the same window must report seen")
}

func TestPairSwapIdempotentWhenEmpty(t *testing.T) {
	p := NewPair(1000, 0.01)
	p.Swap()
	p.Swap()
	assert.False(t, p.ContainsAndInsert(1, 2))
}

func TestPairSwapCarriesLearningForward(t *testing.T) {
	p := NewPair(1000, 0.01)
	p.ContainsAndInsert(99, 100)
	p.Swap()
	assert.True(t, p.ContainsAndInsert(99, 100), "learning half must carry membership across a swap")
}

func TestKeyHashesDeterministic(t *testing.T) {
	k := bloomKeyFixture()
	h1a, h2a := k.Hashes()
	h1b, h2b := k.Hashes()
	assert.Equal(t, h1a, h1b)
	assert.Equal(t, h2a, h2b)
}

func TestKeyOriginBitChangesHash(t *testing.T) {
	k := bloomKeyFixture()
	h1, h2 := k.Hashes()
	k2 := k.WithOrigin(!k.Origin)
	h1b, h2b := k2.Hashes()
	assert.False(t, h1 == h1b && h2 == h2b, "flipping the origin bit must change at least one hash")
}

func bloomKeyFixture() Key {
	return Key{
		Src:     flowrec.AddrFromV4(10, 0, 0, 1),
		Dst:     flowrec.AddrFromV4(192, 168, 0, 1),
		Epoch15: 1234,
		Origin:  false,
	}
}
