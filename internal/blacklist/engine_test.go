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

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoststats/pkg/flowrec"
)

func TestEngineLookupIPAfterLoad(t *testing.T) {
	path := writeTempFile(t, "ip.bl", "203.0.113.0/24,1\n")
	e, err := New(zerolog.Nop(), Paths{IPv4: path})
	require.NoError(t, err)

	got := e.LookupIP(flowrec.AddrFromV4(203, 0, 113, 42), 0)
	assert.Equal(t, uint32(1), got)
}

func TestEngineEmptyPathsAlwaysMiss(t *testing.T) {
	e, err := New(zerolog.Nop(), Paths{})
	require.NoError(t, err)

	assert.Equal(t, uint32(0), e.LookupIP(flowrec.AddrFromV4(1, 2, 3, 4), 0))
	assert.Equal(t, uint32(0), e.LookupDNS("example.com"))
	assert.Equal(t, uint32(0), e.LookupURL("example.com/x"))
}

func TestEngineReloadPicksUpNewEntries(t *testing.T) {
	path := writeTempFile(t, "ip.bl", "203.0.113.0/24,1\n")
	e, err := New(zerolog.Nop(), Paths{IPv4: path})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("203.0.113.0/24,1\n198.51.100.0/24,2\n"), 0o644))
	e.Reload()

	got := e.LookupIP(flowrec.AddrFromV4(198, 51, 100, 9), 0)
	assert.Equal(t, uint32(2), got)
}

func TestEngineReloadKeepsOldTableOnFailure(t *testing.T) {
	path := writeTempFile(t, "ip.bl", "203.0.113.0/24,1\n")
	e, err := New(zerolog.Nop(), Paths{IPv4: path})
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	e.Reload()

	got := e.LookupIP(flowrec.AddrFromV4(203, 0, 113, 42), 0)
	assert.Equal(t, uint32(1), got, "a failed reload must leave the previous snapshot in place")
}
