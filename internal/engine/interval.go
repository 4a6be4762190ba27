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
	"github.com/google/uuid"

	"hoststats/internal/config"
	"hoststats/pkg/flowrec"
)

// floodDescriptor tracks an in-progress volumetric DDoS report for one
// destination: when it was first reported and how many bytes have accrued
// above baseline. The sources map is allocated when the flood opens but is
// never filled: per-source contributors are not tracked, and a flood closes
// only on the rate check or the age limit.
type floodDescriptor struct {
	id            uuid.UUID
	firstReported uint32
	excessBytes   uint64
	sources       map[flowrec.Addr]uint64 // masked source -> bytes contributed
}

// destAccumulator is the per-destination ring described in spec.md §3
// (IntervalRing) and §4.C4.
type destAccumulator struct {
	slots     []uint64 // bytes per interval
	total     uint64
	slotIndex int
	flood     *floodDescriptor
}

// DDoSTracker implements the C4 rolling interval accumulator and feeds R6.
// It owns its state exclusively from the ingest thread, per spec.md §5's
// shared-resource policy.
type DDoSTracker struct {
	cfg     config.Config
	interval  uint32
	n         int
	byDest    map[flowrec.Addr]*destAccumulator
	current   uint32 // current_time: max time_last seen so far
	intervalStart uint32

	onEvent func(Event)
}

// NewDDoSTracker builds a tracker sized from cfg.
func NewDDoSTracker(cfg config.Config) *DDoSTracker {
	return &DDoSTracker{
		cfg:      cfg,
		interval: uint32(cfg.DDoSInterval),
		n:        cfg.WindowSlots(),
		byDest:   make(map[flowrec.Addr]*destAccumulator),
	}
}

// SetEventSink installs the callback fired when R6 opens, re-reports, or
// closes a flood. Must be called before Observe.
func (t *DDoSTracker) SetEventSink(f func(Event)) { t.onEvent = f }

// Observe applies one flow's bytes to dst's interval ring, implementing the
// flow-spread rule and window-advance logic of spec.md §4.C4, then runs the
// R6 volumetric check.
func (t *DDoSTracker) Observe(dst flowrec.Addr, r flowrec.FlowRecord) {
	if r.TimeLastSec > t.current {
		t.advanceClock(r.TimeLastSec)
	}

	acc, ok := t.byDest[dst]
	if !ok {
		acc = &destAccumulator{slots: make([]uint64, t.n)}
		acc.slotIndex = int((t.intervalStart / t.interval)) % t.n
		t.byDest[dst] = acc
	}

	t.spreadFlow(acc, r)
}

// advanceClock moves current_time forward and, if the interval boundary was
// crossed, advances every tracked destination's ring by the implied number
// of slots.
func (t *DDoSTracker) advanceClock(newTime uint32) {
	t.current = newTime
	newIntervalStart := newTime - newTime%t.interval
	if newIntervalStart == t.intervalStart {
		return
	}
	m := int((newIntervalStart - t.intervalStart) / t.interval)
	t.intervalStart = newIntervalStart

	for dst, acc := range t.byDest {
		t.advanceAccumulator(dst, acc, m)
	}
}

// advanceAccumulator zeroes the m newest slots (or tears the ring down
// entirely if m >= N), per spec.md's window-advance rule.
func (t *DDoSTracker) advanceAccumulator(dst flowrec.Addr, acc *destAccumulator, m int) {
	if m <= 0 {
		return
	}
	if m >= t.n {
		delete(t.byDest, dst)
		return
	}
	for i := 0; i < m; i++ {
		acc.slotIndex = (acc.slotIndex + 1) % t.n
		old := acc.slots[acc.slotIndex]
		acc.total -= old
		acc.slots[acc.slotIndex] = 0
	}
	// Window has advanced at least one full interval for this destination:
	// this is the periodic point at which R6 evaluates and re-reports,
	// looking at the interval that just completed (the slot immediately
	// behind the new, still-empty current slot).
	completed := (acc.slotIndex - 1 + t.n) % t.n
	t.checkVolumetric(dst, acc, completed)
	if acc.total == 0 && acc.flood == nil {
		delete(t.byDest, dst)
	}
}

// spreadFlow implements the byte-spreading rule across overlapping
// intervals, walking backward from the current interval.
func (t *DDoSTracker) spreadFlow(acc *destAccumulator, r flowrec.FlowRecord) {
	d := uint64(r.Duration())
	remainingBytes := r.Bytes
	remainingDuration := d
	intervalStart := t.intervalStart
	slot := acc.slotIndex

	for remainingBytes > 0 && remainingDuration > 0 {
		if r.TimeLastSec < intervalStart {
			// Flow ends before this interval starts: skip to the older one.
			if intervalStart < t.interval {
				break
			}
			intervalStart -= t.interval
			slot = (slot - 1 + t.n) % t.n
			continue
		}
		if r.TimeFirstSec >= intervalStart {
			// Flow starts within this interval: deposit everything here.
			depositAt(acc, slot, remainingBytes)
			return
		}
		if r.TimeFirstSec < intervalStart && r.TimeLastSec >= intervalStart+t.interval-1 {
			// Flow spans the entire interval.
			deposit := remainingBytes * uint64(t.interval) / remainingDuration
			depositAt(acc, slot, deposit)
			remainingBytes -= deposit
			remainingDuration -= uint64(t.interval)
			if intervalStart < t.interval {
				return
			}
			intervalStart -= t.interval
			slot = (slot - 1 + t.n) % t.n
			continue
		}
		// Flow ends inside this interval.
		secondsInInterval := uint64(r.TimeLastSec - intervalStart + 1)
		deposit := remainingBytes * secondsInInterval / remainingDuration
		depositAt(acc, slot, deposit)
		return
	}
}

func depositAt(acc *destAccumulator, slot int, bytes uint64) {
	acc.slots[slot] = saturatingAddU64(acc.slots[slot], bytes)
	acc.total = saturatingAddU64(acc.total, bytes)
}

// checkVolumetric implements R6: it compares the latest interval against the
// running average of the others, opening, re-reporting, or closing a flood
// descriptor on dst as appropriate.
func (t *DDoSTracker) checkVolumetric(dst flowrec.Addr, acc *destAccumulator, latestSlot int) {
	latest := acc.slots[latestSlot]
	var sumOthers uint64
	for i, v := range acc.slots {
		if i == latestSlot {
			continue
		}
		sumOthers += v
	}
	avgOthers := float64(sumOthers) / float64(t.n-1)
	minFlow := t.cfg.DDoSMinFlowPerSecond * float64(t.interval)

	exceeds := avgOthers > minFlow && float64(latest) > t.cfg.DDoSThresholdFlowRate*avgOthers

	if acc.flood == nil {
		if exceeds {
			acc.flood = &floodDescriptor{
				id:            uuid.New(),
				firstReported: t.current,
				excessBytes:   uint64(float64(latest) - avgOthers),
				sources:       make(map[flowrec.Addr]uint64),
			}
			t.fire(dst, acc.flood, "volumetric DDoS opened")
		}
		return
	}

	maxAge := t.interval * uint32(2*t.n-1)
	age := t.current - acc.flood.firstReported
	if !exceeds || age >= maxAge {
		t.fire(dst, acc.flood, "volumetric DDoS closed")
		acc.flood = nil
		return
	}

	acc.flood.excessBytes = saturatingAddU64(acc.flood.excessBytes, uint64(float64(latest)-avgOthers))
	t.fire(dst, acc.flood, "volumetric DDoS ongoing")
}

func (t *DDoSTracker) fire(dst flowrec.Addr, f *floodDescriptor, note string) {
	if t.onEvent == nil {
		return
	}
	scale := f.excessBytes
	if scale > uint64(^uint32(0)) {
		scale = uint64(^uint32(0))
	}
	t.onEvent(Event{
		Type:      EventSynFlood,
		TimeFirst: f.firstReported,
		TimeLast:  f.firstReported,
		DstAddrs:  []flowrec.Addr{dst},
		Scale:     uint32(scale),
		Note:      note,
	})
}
