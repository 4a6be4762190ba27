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
	"github.com/rs/zerolog"

	"hoststats/internal/engine"
)

// ChannelSink is the default in-process sink: a bounded buffered channel
// consumed by whatever reads Events() (the online entrypoint's drain loop,
// a test assertion, or a bridge into another transport). Send
// never blocks; once the buffer is full, the event is dropped and logged.
type ChannelSink struct {
	out chan engine.Event
	log zerolog.Logger
}

// NewChannelSink builds a ChannelSink with the given buffer size.
func NewChannelSink(bufferSize int, log zerolog.Logger) *ChannelSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &ChannelSink{
		out: make(chan engine.Event, bufferSize),
		log: log.With().Str("component", "channel-sink").Logger(),
	}
}

func (s *ChannelSink) Send(ev engine.Event) {
	select {
	case s.out <- ev:
	default:
		s.log.Warn().Str("type", ev.Type.String()).Msg("dropping event: channel sink saturated")
	}
}

// Events exposes the receive side for consumers to range over.
func (s *ChannelSink) Events() <-chan engine.Event { return s.out }

// Close closes the underlying channel; callers must stop sending first.
func (s *ChannelSink) Close() { close(s.out) }
