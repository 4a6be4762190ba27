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

// Package emit serializes engine Event records to output transports: the
// abstract Sink interface plus the channel, daily-log-file and Redis-Streams
// implementations (spec.md §4.C9, §4.A5).
package emit

import "hoststats/internal/engine"

// Sink is one output transport for Event records. Send must never block the
// caller past its own internal deadline; a saturated sink drops the event
// after logging, per spec.md's "non-blocking send, drop if full" contract.
type Sink interface {
	Send(ev engine.Event)
}

// Fanout sends every event to all configured sinks. A nil or failing sink
// never blocks the others — each Sink implementation owns its own
// saturation handling.
type Fanout []Sink

func (f Fanout) Send(ev engine.Event) {
	for _, s := range f {
		if s != nil {
			s.Send(ev)
		}
	}
}
