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

	"hoststats/pkg/flowrec"
)

// EventType is the stable, wire-level event type code (spec.md §6).
type EventType uint8

const (
	EventPortscan           EventType = 1
	EventPortscanHorizontal EventType = 2
	EventPortscanVertical   EventType = 3
	EventBruteforce         EventType = 10
	EventDoS                EventType = 11
	EventDNSAmplification   EventType = 12
	EventSynFlood           EventType = 13
	EventBlacklistIP        EventType = 20
	EventBlacklistURL       EventType = 21
	EventBlacklistDNS       EventType = 22
)

func (t EventType) String() string {
	switch t {
	case EventPortscan:
		return "portscan"
	case EventPortscanHorizontal:
		return "portscan-h"
	case EventPortscanVertical:
		return "portscan-v"
	case EventBruteforce:
		return "bruteforce"
	case EventDoS:
		return "dos"
	case EventDNSAmplification:
		return "dns-amplification"
	case EventSynFlood:
		return "syn-flood"
	case EventBlacklistIP:
		return "blacklist-ip"
	case EventBlacklistURL:
		return "blacklist-url"
	case EventBlacklistDNS:
		return "blacklist-dns"
	default:
		return "unknown"
	}
}

// Event is the typed alert record the rule engine produces and the emitter
// writes out (spec.md §3, §6). At least one of SrcAddrs/DstAddrs must be
// non-empty, and TimeFirst must not exceed TimeLast.
type Event struct {
	Type      EventType
	TimeFirst uint32
	TimeLast  uint32

	SrcAddrs []flowrec.Addr
	DstAddrs []flowrec.Addr
	SrcPorts []uint16
	DstPorts []uint16
	Protocols []uint8

	Scale uint32
	Note  string // human-readable, truncated to 200 bytes by the emitter

	id uuid.UUID // populated by the emitter for stream dedup, not by rules
}

// WithID returns a copy of ev stamped with a fresh identifier, used by the
// emitter exactly once per event instance.
func (ev Event) WithID() Event {
	ev.id = uuid.New()
	return ev
}

// ID returns the event's dedup identifier (zero UUID if never stamped).
func (ev Event) ID() uuid.UUID { return ev.id }

// Valid reports the §8 testable invariant for emitted events.
func (ev Event) Valid() bool {
	if ev.TimeFirst > ev.TimeLast {
		return false
	}
	if len(ev.SrcAddrs) == 0 && len(ev.DstAddrs) == 0 {
		return false
	}
	return ev.Scale > 0
}
