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

package blacklist

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherFlagsOnWrite(t *testing.T) {
	path := writeTempFile(t, "ip.bl", "203.0.113.0/24,1\n")
	w, err := NewWatcher(zerolog.Nop(), path)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	assert.False(t, w.ReloadRequested())

	require.NoError(t, os.WriteFile(path, []byte("203.0.113.0/24,2\n"), 0o644))

	require.Eventually(t, func() bool {
		return w.ReloadRequested()
	}, 2*time.Second, 10*time.Millisecond, "watcher should observe the write event")
}

func TestWatcherFlagClearedAfterRead(t *testing.T) {
	path := writeTempFile(t, "ip.bl", "203.0.113.0/24,1\n")
	w, err := NewWatcher(zerolog.Nop(), path)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("203.0.113.0/24,2\n"), 0o644))
	require.Eventually(t, func() bool { return w.ReloadRequested() }, 2*time.Second, 10*time.Millisecond)

	assert.False(t, w.ReloadRequested(), "the flag must be cleared by the first read")
}
