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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsValidate(t *testing.T) {
	c := Defaults()
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsZeroTableSize(t *testing.T) {
	c := Defaults()
	c.TableSize = 0
	assert.Error(t, c.Validate())
}

func TestValidateRejectsNegativeTimeout(t *testing.T) {
	c := Defaults()
	c.TimeoutInactive = -1
	assert.Error(t, c.Validate())
}

func TestWindowSlotsMatchesDefaults(t *testing.T) {
	c := Defaults()
	// (330 + 90) / 60 = 7
	assert.Equal(t, 7, c.WindowSlots())
}

func TestWindowSlotsRoundsUp(t *testing.T) {
	c := Defaults()
	c.MaxFlowLen = 100
	c.MaxFlowDelay = 21
	c.DDoSInterval = 60
	assert.Equal(t, 3, c.WindowSlots())
}
