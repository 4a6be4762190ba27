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

package emit

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoststats/internal/engine"
	"hoststats/pkg/flowrec"
)

func sampleEvent() engine.Event {
	return engine.Event{
		Type:      engine.EventDoS,
		TimeFirst: 100,
		TimeLast:  160,
		SrcAddrs:  []flowrec.Addr{flowrec.AddrFromV4(10, 0, 0, 1)},
		DstAddrs:  []flowrec.Addr{flowrec.AddrFromV4(192, 0, 2, 10), flowrec.AddrFromV4(192, 0, 2, 11)},
		SrcPorts:  []uint16{1234},
		DstPorts:  []uint16{80},
		Protocols: []uint8{6},
		Scale:     300000,
		Note:      "SYN flood",
	}
}

func TestFormatLineThenParseLineRoundTrips(t *testing.T) {
	ev := sampleEvent()
	line := FormatLine(ev)

	parsed, err := ParseLine(line)
	require.NoError(t, err)

	assert.Equal(t, ev.Type, parsed.Type)
	assert.Equal(t, ev.TimeFirst, parsed.TimeFirst)
	assert.Equal(t, ev.TimeLast, parsed.TimeLast)
	assert.Equal(t, ev.Protocols, parsed.Protocols)
	assert.Equal(t, ev.SrcAddrs, parsed.SrcAddrs)
	assert.Equal(t, ev.DstAddrs, parsed.DstAddrs)
	assert.Equal(t, ev.SrcPorts, parsed.SrcPorts)
	assert.Equal(t, ev.DstPorts, parsed.DstPorts)
	assert.Equal(t, ev.Scale, parsed.Scale)
	assert.Equal(t, ev.Note, parsed.Note)
}

func TestFileSinkWritesToDailyPath(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	s := NewFileSink(dir, zerolog.Nop())
	s.now = func() time.Time { return fixed }

	s.Send(sampleEvent())

	path := filepath.Join(dir, "20260305.log")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	line := scanner.Text()
	assert.Contains(t, line, "dos")
	assert.Contains(t, line, "SYN flood")
}

func TestFileSinkAppendsMultipleEvents(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	s := NewFileSink(dir, zerolog.Nop())
	s.now = func() time.Time { return fixed }

	s.Send(sampleEvent())
	s.Send(sampleEvent())

	f, err := os.Open(filepath.Join(dir, "20260305.log"))
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestNoteTruncatedTo200Bytes(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	ev := sampleEvent()
	ev.Note = string(long)
	line := FormatLine(ev)
	parsed, err := ParseLine(line)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(parsed.Note), maxNoteBytes)
}
