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

// Package bloom provides a fixed-size Bloom filter and the active/learning
// pair the engine rotates to approximate a sliding window of distinct peers
// without storing them.
package bloom

import (
	"math"
)

// Filter is a fixed-capacity Bloom filter sized at construction for an
// expected element count and false-positive probability. It never grows.
type Filter struct {
	bits []uint64
	m    uint64 // number of bits, rounded up to a multiple of 64
	k    int    // number of hash probes
}

// New sizes a filter for n expected elements at false-positive probability p,
// using the standard m = -n*ln(p)/ln(2)^2 and k = (m/n)*ln(2) formulas.
func New(n int, p float64) *Filter {
	if n < 1 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m < 64 {
		m = 64
	}
	words := (m + 63) / 64
	k := int(math.Round((float64(words*64) / float64(n)) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return &Filter{
		bits: make([]uint64, words),
		m:    words * 64,
		k:    k,
	}
}

// probe implements Kirsch-Mitzenmacher double hashing: the i-th probe index
// is derived from two independent 64-bit hashes without computing k
// separate hash functions.
func (f *Filter) probe(h1, h2 uint64, i int) uint64 {
	return (h1 + uint64(i)*h2) % f.m
}

// Insert sets the k bits for key (h1, h2 — two independent hashes of the
// key, typically FNV-1a with two different seeds).
func (f *Filter) Insert(h1, h2 uint64) {
	for i := 0; i < f.k; i++ {
		idx := f.probe(h1, h2, i)
		f.bits[idx/64] |= 1 << (idx % 64)
	}
}

// Contains tests membership without mutating the filter.
func (f *Filter) Contains(h1, h2 uint64) bool {
	for i := 0; i < f.k; i++ {
		idx := f.probe(h1, h2, i)
		if f.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// Clear zeroes every bit, restoring the filter to empty.
func (f *Filter) Clear() {
	for i := range f.bits {
		f.bits[i] = 0
	}
}

// Pair is the active/learning rotation described in spec.md §4.C3: active
// answers membership queries; both active and learning accumulate inserts,
// so learning has been warming up for half a window by the time it becomes
// active.
type Pair struct {
	active, learning *Filter
}

// NewPair builds a pair of filters, each sized for n expected elements at
// false-positive probability p.
func NewPair(n int, p float64) *Pair {
	return &Pair{active: New(n, p), learning: New(n, p)}
}

// ContainsAndInsert tests membership in the active filter and inserts into
// both active and learning, per spec.md's contains_and_insert contract. It
// returns false only if the key has not been observed within the current
// effective window (up to the filter's false-positive rate).
func (p *Pair) ContainsAndInsert(h1, h2 uint64) bool {
	seen := p.active.Contains(h1, h2)
	p.active.Insert(h1, h2)
	p.learning.Insert(h1, h2)
	return seen
}

// Swap clears the active filter and exchanges active/learning, so
// membership decisions going forward use the filter that has been
// accumulating inserts for the previous half-window.
func (p *Pair) Swap() {
	p.active.Clear()
	p.active, p.learning = p.learning, p.active
}
