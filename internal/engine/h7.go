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
	"hoststats/internal/config"
	"hoststats/pkg/flowrec"
)

const h7InlineCap = 10

// h7Key is (source IP, destination port) packed per spec.md §4.C7 R7.
type h7Key struct {
	Src  flowrec.Addr
	Port uint16
}

// h7Entry tracks the distinct destination IPs a single (src, dst-port) pair
// has touched: an inline array up to h7InlineCap, overflowing into a map up
// to NumAddrsThreshold.
type h7Entry struct {
	inline    [h7InlineCap]flowrec.Addr
	inlineLen int
	overflow  map[flowrec.Addr]struct{}
	allSingleSYN bool
	lastTouch uint32
	fired     bool
}

func (e *h7Entry) count() int {
	if e.overflow == nil {
		return e.inlineLen
	}
	return e.inlineLen + len(e.overflow)
}

func (e *h7Entry) add(dst flowrec.Addr) {
	for i := 0; i < e.inlineLen; i++ {
		if e.inline[i].Compare(dst) == 0 {
			return
		}
	}
	if e.overflow != nil {
		if _, ok := e.overflow[dst]; ok {
			return
		}
	}
	if e.inlineLen < h7InlineCap {
		e.inline[e.inlineLen] = dst
		e.inlineLen++
		return
	}
	if e.overflow == nil {
		e.overflow = make(map[flowrec.Addr]struct{})
	}
	e.overflow[dst] = struct{}{}
}

// H7Tracker is the compact per-source-port horizontal scan detector (R7),
// kept separate from the main host table per spec.md's description of it as
// "a separate compact detector".
type H7Tracker struct {
	cfg     config.Config
	entries map[h7Key]*h7Entry
	onEvent func(Event)
}

func NewH7Tracker(cfg config.Config) *H7Tracker {
	return &H7Tracker{cfg: cfg, entries: make(map[h7Key]*h7Entry)}
}

func (t *H7Tracker) SetEventSink(f func(Event)) { t.onEvent = f }

// Observe applies one flow to the R7 detector and fires a portscan_h event
// once the threshold is reached, provided every contributing flow has been a
// single-packet TCP SYN.
func (t *H7Tracker) Observe(src flowrec.Addr, r flowrec.FlowRecord) {
	if r.Protocol != 6 {
		return
	}
	key := h7Key{Src: src, Port: r.DstPort}
	e, ok := t.entries[key]
	if !ok {
		e = &h7Entry{allSingleSYN: true}
		t.entries[key] = e
	}
	if e.fired {
		return
	}

	isSingleSYN := r.Packets == 1 && r.TCPFlags == flowrec.TCPSyn
	if !isSingleSYN {
		e.allSingleSYN = false
	}
	if e.count() < t.cfg.NumAddrsThreshold {
		e.add(r.DstIP)
	}
	e.lastTouch = r.TimeLastSec

	if e.allSingleSYN && e.count() >= t.cfg.NumAddrsThreshold {
		e.fired = true
		t.fire(src, r.DstPort, e)
	}
}

func (t *H7Tracker) fire(src flowrec.Addr, port uint16, e *h7Entry) {
	if t.onEvent == nil {
		return
	}
	n := e.inlineLen
	if n > 4 {
		n = 4
	}
	dsts := make([]flowrec.Addr, n)
	copy(dsts, e.inline[:n])
	t.onEvent(Event{
		Type:      EventPortscanHorizontal,
		TimeFirst: e.lastTouch,
		TimeLast:  e.lastTouch,
		SrcAddrs:  []flowrec.Addr{src},
		DstAddrs:  dsts,
		DstPorts:  []uint16{port},
		Scale:     uint32(e.count()),
		Note:      "horizontal scan (per-source-port)",
	})
}

// Prune removes entries untouched for idle_threshold seconds or longer. The
// sweep scheduler calls it on every sweep pass (every det-start-time
// seconds); the PortScanPruningSec setting is not consulted.
func (t *H7Tracker) Prune(now uint32) {
	idle := uint32(t.cfg.PortScanIdleSec)
	for k, e := range t.entries {
		if now-e.lastTouch >= idle {
			delete(t.entries, k)
		}
	}
}
