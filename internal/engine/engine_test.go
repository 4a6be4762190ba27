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

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoststats/internal/config"
	"hoststats/pkg/flowrec"
)

func testEngine(t *testing.T) (*Engine, *[]Event) {
	t.Helper()
	cfg := config.Defaults()
	cfg.TableSize = 1024
	var events []Event
	e := New(cfg, zerolog.Nop(), func(ev Event) { events = append(events, ev) })
	return e, &events
}

func synFlow(src, dst flowrec.Addr, srcPort, dstPort uint16, t0, t1 uint32) flowrec.FlowRecord {
	return flowrec.FlowRecord{
		SrcIP: src, DstIP: dst, SrcPort: srcPort, DstPort: dstPort,
		Protocol: 6, Packets: 1, Bytes: 60,
		TimeFirstSec: t0, TimeLastSec: t1,
		TCPFlags: flowrec.TCPSyn, DirBits: 0x8,
	}
}

func TestIngestRejectsInvalidRecord(t *testing.T) {
	e, _ := testEngine(t)
	r := synFlow(flowrec.AddrFromV4(1, 1, 1, 1), flowrec.AddrFromV4(2, 2, 2, 2), 1, 2, 100, 99)
	assert.False(t, e.Ingest(r))
}

func TestIngestSkipsFragmentArtifact(t *testing.T) {
	e, _ := testEngine(t)
	r := flowrec.FlowRecord{Protocol: 17, SrcPort: 0, DstPort: 0, TimeFirstSec: 1, TimeLastSec: 1}
	assert.False(t, e.Ingest(r))
}

func TestIngestUpdatesBothSides(t *testing.T) {
	e, _ := testEngine(t)
	src := flowrec.AddrFromV4(10, 0, 0, 1)
	dst := flowrec.AddrFromV4(192, 168, 0, 1)
	r := synFlow(src, dst, 4321, 22, 100, 100)

	require.True(t, e.Ingest(r))

	hs, ok := e.Table.GetLocked(flowrec.HostKey{Addr: src})
	require.True(t, ok)
	assert.Equal(t, uint32(1), hs.Record.OutAll.Flows)
	assert.Equal(t, uint32(1), hs.Record.OutAll.Syn)
	hs.Unlock()

	hd, ok := e.Table.GetLocked(flowrec.HostKey{Addr: dst})
	require.True(t, ok)
	assert.Equal(t, uint32(1), hd.Record.InAll.Flows)
	hd.Unlock()
}

type fakeBlacklist struct{ bitmap uint32 }

func (f fakeBlacklist) LookupIP(flowrec.Addr, uint16) uint32 { return f.bitmap }

func TestIngestEmitsBlacklistIPEvent(t *testing.T) {
	e, events := testEngine(t)
	e.SetBlacklist(fakeBlacklist{bitmap: 1})

	src := flowrec.AddrFromV4(203, 0, 113, 42)
	dst := flowrec.AddrFromV4(10, 0, 0, 1)
	require.True(t, e.Ingest(synFlow(src, dst, 1234, 80, 10, 10)))

	found := false
	for _, ev := range *events {
		if ev.Type == EventBlacklistIP {
			found = true
			assert.Equal(t, uint32(1), ev.Scale)
		}
	}
	assert.True(t, found, "expected a blacklist-ip event for a flagged source address")
}

func TestHorizontalScanFiresR1(t *testing.T) {
	e, _ := testEngine(t)
	cfg := config.Defaults()
	attacker := flowrec.AddrFromV4(10, 0, 0, 1)

	for i := 0; i < cfg.SynScanIPs+1; i++ {
		dst := flowrec.AddrFromV4(192, 168, byte(i/256), byte(i%256))
		r := synFlow(attacker, dst, 53421, 22, 1, 1)
		e.Ingest(r)
	}

	h, _ := e.Table.GetLocked(flowrec.HostKey{Addr: attacker})
	fired := EvaluateGenericRules(h.Key, h.Record, cfg)
	h.Unlock()

	found := false
	for _, ev := range fired {
		if ev.Type == EventPortscanHorizontal {
			found = true
		}
	}
	assert.True(t, found, "expected R1 to fire for a wide horizontal scan")
}
