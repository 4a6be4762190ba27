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

package engine

import (
	"sync"
	"sync/atomic"

	"hoststats/pkg/flowrec"
)

const (
	maxKicks   = 8 // bounded cuckoo-kick chain length before falling back to the stash
	stashSize  = 4
	minStripes = 4
)

type tableSlot struct {
	occupied bool
	key      flowrec.HostKey
	rec      *HostRecord
}

// stripe owns a contiguous, independently-locked region of the table plus a
// small stash. get_or_insert on keys hashing into different stripes never
// blocks on each other, per spec.md §4.C2's striping requirement.
type stripe struct {
	mu    sync.Mutex
	slots []tableSlot
	stash [stashSize]tableSlot
	mask  uint64
}

// Kicked describes an entry evicted by get_or_insert's cuckoo-kick policy.
// Evicted entries are handed back to the caller, never silently dropped —
// spec.md's Design Notes call this out explicitly (Inserted | Replaced |
// Kicked).
type Kicked struct {
	Key    flowrec.HostKey
	Record *HostRecord
}

// Table is the fixed-capacity, striped, kick-on-collision map from HostKey
// to HostRecord shared by the ingest thread (updates) and the sweep thread
// (read/delete).
type Table struct {
	stripes     []*stripe
	stripeMask  uint64
	slotsPerOA  uint64 // local open-addressing slots per stripe
	capacity    int

	entries   atomic.Int64
	kicks     atomic.Int64
	evictions atomic.Int64
}

// NewTable builds a table sized for at least requestedSize entries, rounded
// up to a power of two (warning if the caller asked for something else).
// warn is invoked (may be nil) with the rounded size if rounding occurred.
func NewTable(requestedSize int, warn func(roundedTo int)) *Table {
	size := nextPow2(requestedSize)
	if size != requestedSize && warn != nil {
		warn(size)
	}

	numStripes := nextPow2(minStripes)
	for numStripes*numStripes < size && numStripes < size {
		numStripes <<= 1
	}
	if numStripes > size {
		numStripes = size
	}
	slotsPerOA := uint64(size) / uint64(numStripes)
	if slotsPerOA < 2 {
		slotsPerOA = 2
	}

	t := &Table{
		stripeMask: uint64(numStripes - 1),
		slotsPerOA: slotsPerOA,
		capacity:   size,
	}
	t.stripes = make([]*stripe, numStripes)
	for i := range t.stripes {
		t.stripes[i] = &stripe{
			slots: make([]tableSlot, slotsPerOA),
			mask:  slotsPerOA - 1,
		}
	}
	return t
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the table's rounded, fixed capacity.
func (t *Table) Capacity() int { return t.capacity }

// Len returns the current entry count (approximate under concurrent use;
// exact once all in-flight updates drain).
func (t *Table) Len() int { return int(t.entries.Load()) }

func (t *Table) KicksTotal() int64     { return t.kicks.Load() }
func (t *Table) EvictionsTotal() int64 { return t.evictions.Load() }

func (t *Table) stripeFor(h uint64) *stripe {
	idx := (h >> 32) & t.stripeMask
	return t.stripes[idx]
}

func altLocal(h uint64, mask uint64) uint64 {
	mixed := (h ^ (h >> 17)) * 0x9e3779b97f4a7c15
	return mixed & mask
}

// Handle is a held lock on one table slot plus the record it guards. Callers
// must call Unlock once done; RemoveLocked (Table method) must be invoked
// while the handle is still held.
type Handle struct {
	t       *Table
	s       *stripe
	inStash bool
	idx     int
	Key     flowrec.HostKey
	Record  *HostRecord
}

// Unlock releases the slot's stripe lock.
func (h *Handle) Unlock() {
	h.s.mu.Unlock()
}

// GetOrInsert returns a locked handle to key's record, creating a fresh
// zeroed record if absent. If both candidate slots (primary and alternate)
// hold other keys, a bounded cuckoo-kick chain tries to relocate the
// occupants; failing that, the key goes into a free stash slot; if the stash
// is full as well, the primary slot's occupant is evicted and the evicted
// pair is returned so the caller can run detection on it before releasing it.
func (t *Table) GetOrInsert(key flowrec.HostKey) (*Handle, *Kicked) {
	h := key.Hash64()
	s := t.stripeFor(h)
	primary := h & s.mask
	alt := altLocal(h, s.mask)

	s.mu.Lock()

	if s.slots[primary].occupied && s.slots[primary].key.Equal(key) {
		return &Handle{t: t, s: s, idx: int(primary), Key: key, Record: s.slots[primary].rec}, nil
	}
	if s.slots[alt].occupied && s.slots[alt].key.Equal(key) {
		return &Handle{t: t, s: s, idx: int(alt), Key: key, Record: s.slots[alt].rec}, nil
	}
	for i := range s.stash {
		if s.stash[i].occupied && s.stash[i].key.Equal(key) {
			return &Handle{t: t, s: s, inStash: true, idx: i, Key: key, Record: s.stash[i].rec}, nil
		}
	}

	rec := NewHostRecord()

	if !s.slots[primary].occupied {
		s.slots[primary] = tableSlot{occupied: true, key: key, rec: rec}
		t.entries.Add(1)
		return &Handle{t: t, s: s, idx: int(primary), Key: key, Record: rec}, nil
	}
	if !s.slots[alt].occupied {
		s.slots[alt] = tableSlot{occupied: true, key: key, rec: rec}
		t.entries.Add(1)
		return &Handle{t: t, s: s, idx: int(alt), Key: key, Record: rec}, nil
	}

	// Both candidate slots are occupied by other keys: attempt a bounded
	// cuckoo-kick chain starting from the primary slot.
	if s.kickChain(primary, s.mask) {
		s.slots[primary] = tableSlot{occupied: true, key: key, rec: rec}
		t.entries.Add(1)
		t.kicks.Add(1)
		return &Handle{t: t, s: s, idx: int(primary), Key: key, Record: rec}, nil
	}

	for i := range s.stash {
		if !s.stash[i].occupied {
			s.stash[i] = tableSlot{occupied: true, key: key, rec: rec}
			t.entries.Add(1)
			return &Handle{t: t, s: s, inStash: true, idx: i, Key: key, Record: rec}, nil
		}
	}

	// Stash is also full: evict the primary slot's occupant outright.
	old := s.slots[primary]
	s.slots[primary] = tableSlot{occupied: true, key: key, rec: rec}
	t.evictions.Add(1)
	handle := &Handle{t: t, s: s, idx: int(primary), Key: key, Record: rec}
	return handle, &Kicked{Key: old.key, Record: old.rec}
}

// kickChain walks the alternate-position chain starting at start, looking
// for a vacancy within maxKicks hops. If found, every occupant along the
// path is shifted one step down the chain, leaving start empty for the
// caller to occupy; this is the standard cuckoo-displacement path
// compression rather than a single blind swap.
func (s *stripe) kickChain(start uint64, mask uint64) bool {
	path := []uint64{start}
	cur := start
	for i := 0; i < maxKicks; i++ {
		occ := s.slots[cur]
		altPos := altLocal(occ.key.Hash64(), mask)
		if altPos == cur {
			return false
		}
		if !s.slots[altPos].occupied {
			targets := append(append([]uint64{}, path[1:]...), altPos)
			for j := len(path) - 1; j >= 0; j-- {
				s.slots[targets[j]] = s.slots[path[j]]
			}
			s.slots[start] = tableSlot{}
			return true
		}
		path = append(path, altPos)
		cur = altPos
	}
	return false
}

// GetLocked returns a locked handle to key's record if present, or false.
func (t *Table) GetLocked(key flowrec.HostKey) (*Handle, bool) {
	h := key.Hash64()
	s := t.stripeFor(h)
	primary := h & s.mask
	alt := altLocal(h, s.mask)

	s.mu.Lock()
	if s.slots[primary].occupied && s.slots[primary].key.Equal(key) {
		return &Handle{t: t, s: s, idx: int(primary), Key: key, Record: s.slots[primary].rec}, true
	}
	if s.slots[alt].occupied && s.slots[alt].key.Equal(key) {
		return &Handle{t: t, s: s, idx: int(alt), Key: key, Record: s.slots[alt].rec}, true
	}
	for i := range s.stash {
		if s.stash[i].occupied && s.stash[i].key.Equal(key) {
			return &Handle{t: t, s: s, inStash: true, idx: i, Key: key, Record: s.stash[i].rec}, true
		}
	}
	s.mu.Unlock()
	return nil, false
}

// RemoveLocked releases h's slot. Must be called with h still held; the
// caller is responsible for calling Unlock afterward.
func (t *Table) RemoveLocked(h *Handle) {
	if h.inStash {
		h.s.stash[h.idx] = tableSlot{}
	} else {
		h.s.slots[h.idx] = tableSlot{}
	}
	t.entries.Add(-1)
}

// IterSweep walks every valid entry, invoking f under that entry's stripe
// lock. f returns true to delete the current entry. Iteration order across
// stripes is unspecified; within a stripe, slots then stash.
func (t *Table) IterSweep(f func(key flowrec.HostKey, rec *HostRecord) bool) {
	for _, s := range t.stripes {
		s.mu.Lock()
		for i := range s.slots {
			if !s.slots[i].occupied {
				continue
			}
			if f(s.slots[i].key, s.slots[i].rec) {
				s.slots[i] = tableSlot{}
				t.entries.Add(-1)
			}
		}
		for i := range s.stash {
			if !s.stash[i].occupied {
				continue
			}
			if f(s.stash[i].key, s.stash[i].rec) {
				s.stash[i] = tableSlot{}
				t.entries.Add(-1)
			}
		}
		s.mu.Unlock()
	}
}

// ClearAll walks every entry calling f for cleanup, then resets the table.
func (t *Table) ClearAll(f func(key flowrec.HostKey, rec *HostRecord)) {
	for _, s := range t.stripes {
		s.mu.Lock()
		for i := range s.slots {
			if s.slots[i].occupied {
				f(s.slots[i].key, s.slots[i].rec)
				s.slots[i] = tableSlot{}
			}
		}
		for i := range s.stash {
			if s.stash[i].occupied {
				f(s.stash[i].key, s.stash[i].rec)
				s.stash[i] = tableSlot{}
			}
		}
		t.entries.Store(0)
		s.mu.Unlock()
	}
}
