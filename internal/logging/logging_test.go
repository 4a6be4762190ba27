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

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStampsRunID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Output: &buf})
	log.Info().Msg("hello")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.NotEmpty(t, fields["run_id"])
	assert.Equal(t, "hello", fields["message"])
}

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "not-a-level", Output: &buf})
	log.Debug().Msg("should be suppressed")
	assert.Empty(t, buf.String())

	log.Info().Msg("should appear")
	assert.NotEmpty(t, buf.String())
}
