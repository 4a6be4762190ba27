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
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSinkDeliversEvent(t *testing.T) {
	s := NewChannelSink(4, zerolog.Nop())
	s.Send(sampleEvent())

	select {
	case ev := <-s.Events():
		assert.Equal(t, sampleEvent().Type, ev.Type)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestChannelSinkDropsWhenSaturated(t *testing.T) {
	s := NewChannelSink(1, zerolog.Nop())
	s.Send(sampleEvent())
	s.Send(sampleEvent()) // buffer is full; must not block or panic

	count := 0
	for {
		select {
		case <-s.Events():
			count++
		default:
			require.Equal(t, 1, count, "a saturated sink drops the second event")
			return
		}
	}
}
