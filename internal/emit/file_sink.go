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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hoststats/internal/engine"
	"hoststats/pkg/flowrec"
)

const maxNoteBytes = 200

// FileSink writes one line per event to a daily log file at
// <log_dir>/YYYYMMDD.log, semicolon-separated fields in the order
// spec.md §6 fixes: time_first;time_last;type;protos;src_addrs;dst_addrs;
// src_ports;dst_ports;scale;note. The file is opened in append mode per
// event — acceptable at current event rates per spec.md §9's Design Notes.
type FileSink struct {
	logDir string
	log    zerolog.Logger
	now    func() time.Time
}

// NewFileSink builds a FileSink writing under logDir.
func NewFileSink(logDir string, log zerolog.Logger) *FileSink {
	return &FileSink{logDir: logDir, log: log.With().Str("component", "file-sink").Logger(), now: time.Now}
}

func (s *FileSink) Send(ev engine.Event) {
	day := s.clock().UTC().Format("20060102")
	path := filepath.Join(s.logDir, day+".log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("failed to open daily event log; event dropped")
		return
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev) + "\n"); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("failed to write event to daily log")
	}
}

func (s *FileSink) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func joinAddrs(as []flowrec.Addr) string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}

func joinU16(ps []uint16) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = strconv.FormatUint(uint64(p), 10)
	}
	return strings.Join(parts, ",")
}

func joinU8(ps []uint8) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = strconv.FormatUint(uint64(p), 10)
	}
	return strings.Join(parts, ",")
}

func truncateNote(note string) string {
	if len(note) > maxNoteBytes {
		return note[:maxNoteBytes]
	}
	return note
}

// FormatLine renders ev in the daily-log field order.
func FormatLine(ev engine.Event) string {
	fields := []string{
		strconv.FormatUint(uint64(ev.TimeFirst), 10),
		strconv.FormatUint(uint64(ev.TimeLast), 10),
		ev.Type.String(),
		joinU8(ev.Protocols),
		joinAddrs(ev.SrcAddrs),
		joinAddrs(ev.DstAddrs),
		joinU16(ev.SrcPorts),
		joinU16(ev.DstPorts),
		strconv.FormatUint(uint64(ev.Scale), 10),
		truncateNote(ev.Note),
	}
	return strings.Join(fields, ";")
}

var eventTypeByName = map[string]engine.EventType{
	"portscan":          engine.EventPortscan,
	"portscan-h":        engine.EventPortscanHorizontal,
	"portscan-v":        engine.EventPortscanVertical,
	"bruteforce":        engine.EventBruteforce,
	"dos":               engine.EventDoS,
	"dns-amplification": engine.EventDNSAmplification,
	"syn-flood":         engine.EventSynFlood,
	"blacklist-ip":      engine.EventBlacklistIP,
	"blacklist-url":     engine.EventBlacklistURL,
	"blacklist-dns":     engine.EventBlacklistDNS,
}

// ParseLine reverses FormatLine, reconstructing every typed field the daily
// log carries (everything but the emitter-assigned dedup id, which the log
// format never records).
func ParseLine(line string) (engine.Event, error) {
	parts := strings.SplitN(line, ";", 10)
	if len(parts) != 10 {
		return engine.Event{}, fmt.Errorf("expected 10 fields, got %d", len(parts))
	}

	timeFirst, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return engine.Event{}, fmt.Errorf("bad time_first: %w", err)
	}
	timeLast, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return engine.Event{}, fmt.Errorf("bad time_last: %w", err)
	}
	typ, ok := eventTypeByName[parts[2]]
	if !ok {
		return engine.Event{}, fmt.Errorf("unknown event type %q", parts[2])
	}
	protos, err := splitU8(parts[3])
	if err != nil {
		return engine.Event{}, fmt.Errorf("bad protos: %w", err)
	}
	srcAddrs, err := splitAddrs(parts[4])
	if err != nil {
		return engine.Event{}, fmt.Errorf("bad src_addrs: %w", err)
	}
	dstAddrs, err := splitAddrs(parts[5])
	if err != nil {
		return engine.Event{}, fmt.Errorf("bad dst_addrs: %w", err)
	}
	srcPorts, err := splitU16(parts[6])
	if err != nil {
		return engine.Event{}, fmt.Errorf("bad src_ports: %w", err)
	}
	dstPorts, err := splitU16(parts[7])
	if err != nil {
		return engine.Event{}, fmt.Errorf("bad dst_ports: %w", err)
	}
	scale, err := strconv.ParseUint(parts[8], 10, 32)
	if err != nil {
		return engine.Event{}, fmt.Errorf("bad scale: %w", err)
	}

	return engine.Event{
		Type:      typ,
		TimeFirst: uint32(timeFirst),
		TimeLast:  uint32(timeLast),
		Protocols: protos,
		SrcAddrs:  srcAddrs,
		DstAddrs:  dstAddrs,
		SrcPorts:  srcPorts,
		DstPorts:  dstPorts,
		Scale:     uint32(scale),
		Note:      parts[9],
	}, nil
}

func splitU8(s string) ([]uint8, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]uint8, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return nil, err
		}
		out[i] = uint8(v)
	}
	return out, nil
}

func splitU16(s string) ([]uint16, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]uint16, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return nil, err
		}
		out[i] = uint16(v)
	}
	return out, nil
}

func splitAddrs(s string) ([]flowrec.Addr, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]flowrec.Addr, len(fields))
	for i, f := range fields {
		ip, err := flowrec.ParseAddrString(f)
		if err != nil {
			return nil, err
		}
		out[i] = ip
	}
	return out, nil
}
