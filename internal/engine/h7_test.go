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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoststats/internal/config"
	"hoststats/pkg/flowrec"
)

func singleSYN(src, dst flowrec.Addr, dstPort uint16, at uint32) flowrec.FlowRecord {
	return flowrec.FlowRecord{
		SrcIP: src, DstIP: dst, DstPort: dstPort,
		Protocol: 6, Packets: 1, TCPFlags: flowrec.TCPSyn,
		TimeFirstSec: at, TimeLastSec: at,
	}
}

func TestH7FiresAtThreshold(t *testing.T) {
	cfg := config.Defaults()
	cfg.NumAddrsThreshold = 5
	tr := NewH7Tracker(cfg)

	var got []Event
	tr.SetEventSink(func(ev Event) { got = append(got, ev) })

	src := flowrec.AddrFromV4(10, 0, 0, 1)
	for i := 0; i < cfg.NumAddrsThreshold; i++ {
		dst := flowrec.AddrFromV4(192, 168, 0, byte(i+1))
		tr.Observe(src, singleSYN(src, dst, 22, uint32(i)))
	}

	require.Len(t, got, 1)
	assert.Equal(t, EventPortscanHorizontal, got[0].Type)
	assert.Equal(t, uint32(cfg.NumAddrsThreshold), got[0].Scale)
	assert.LessOrEqual(t, len(got[0].DstAddrs), 4)
}

func TestH7DoesNotFireBelowThreshold(t *testing.T) {
	cfg := config.Defaults()
	cfg.NumAddrsThreshold = 5
	tr := NewH7Tracker(cfg)

	var got []Event
	tr.SetEventSink(func(ev Event) { got = append(got, ev) })

	src := flowrec.AddrFromV4(10, 0, 0, 2)
	for i := 0; i < cfg.NumAddrsThreshold-1; i++ {
		dst := flowrec.AddrFromV4(192, 168, 0, byte(i+1))
		tr.Observe(src, singleSYN(src, dst, 22, uint32(i)))
	}

	assert.Empty(t, got)
}

func TestH7NonSingleSYNDisqualifiesKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.NumAddrsThreshold = 3
	tr := NewH7Tracker(cfg)

	var got []Event
	tr.SetEventSink(func(ev Event) { got = append(got, ev) })

	src := flowrec.AddrFromV4(10, 0, 0, 3)
	multi := singleSYN(src, flowrec.AddrFromV4(192, 168, 0, 1), 22, 0)
	multi.Packets = 3
	tr.Observe(src, multi)

	for i := 1; i <= cfg.NumAddrsThreshold; i++ {
		dst := flowrec.AddrFromV4(192, 168, 0, byte(i+1))
		tr.Observe(src, singleSYN(src, dst, 22, uint32(i)))
	}

	assert.Empty(t, got, "a key with any non-single-SYN flow must never fire")
}

func TestH7NonTCPIgnored(t *testing.T) {
	cfg := config.Defaults()
	cfg.NumAddrsThreshold = 1
	tr := NewH7Tracker(cfg)

	var got []Event
	tr.SetEventSink(func(ev Event) { got = append(got, ev) })

	src := flowrec.AddrFromV4(10, 0, 0, 4)
	udp := singleSYN(src, flowrec.AddrFromV4(192, 168, 0, 1), 53, 0)
	udp.Protocol = 17
	tr.Observe(src, udp)

	assert.Empty(t, got)
}

func TestH7PruneRemovesIdleEntries(t *testing.T) {
	cfg := config.Defaults()
	cfg.PortScanIdleSec = 10
	tr := NewH7Tracker(cfg)

	src := flowrec.AddrFromV4(10, 0, 0, 5)
	tr.Observe(src, singleSYN(src, flowrec.AddrFromV4(192, 168, 0, 1), 22, 0))
	assert.Len(t, tr.entries, 1)

	tr.Prune(100)
	assert.Empty(t, tr.entries)
}

func TestH7FiresOnlyOncePerKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.NumAddrsThreshold = 2
	tr := NewH7Tracker(cfg)

	var got []Event
	tr.SetEventSink(func(ev Event) { got = append(got, ev) })

	src := flowrec.AddrFromV4(10, 0, 0, 6)
	for i := 0; i < 5; i++ {
		dst := flowrec.AddrFromV4(192, 168, 0, byte(i+1))
		tr.Observe(src, singleSYN(src, dst, 22, uint32(i)))
	}

	assert.Len(t, got, 1, "a latched key must not re-fire on subsequent flows")
}
