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

// Package config defines the engine's configuration surface: a plain struct
// validated with go-playground/validator. Populating it from flags, env, or
// a file is the entrypoint's job, not this package's.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config covers every option in spec.md §6's configuration table.
type Config struct {
	TableSize        int `validate:"min=1"`
	DetStartTime     int `validate:"min=1"`
	TimeoutActive    int `validate:"min=1"`
	TimeoutInactive  int `validate:"min=1"`

	RulesGeneric bool
	RulesSSH     bool
	RulesDNS     bool
	PortFlowDir  bool

	SynScanThreshold                int     `validate:"min=1"`
	SynScanSynToAckRatio            float64 `validate:"gt=0"`
	SynScanRequestToResponseRatio   float64 `validate:"gt=0"`
	SynScanIPs                      int     `validate:"min=1"`

	DosVictimConnectionsSynflood   int64   `validate:"min=1"`
	DosVictimConnectionsOthers     int64   `validate:"min=1"`
	DosVictimPacketRatio           float64 `validate:"gt=0"`
	DosAttackerConnectionsSynflood int64   `validate:"min=1"`
	DosAttackerConnectionsOthers   int64   `validate:"min=1"`
	DosAttackerPacketRatio         float64 `validate:"gt=0"`
	DosReqRspEstRatio              float64 `validate:"gt=0"`
	DosRspReqEstRatio              float64 `validate:"gt=0"`

	// R4 SSH brute-force envelope.
	BruteforceReqPacketsPerSynMin float64 `validate:"gt=0"`
	BruteforceReqPacketsPerSynMax float64 `validate:"gt=0"`
	BruteforceRspPacketsPerSynMin float64 `validate:"gt=0"`
	BruteforceRspPacketsPerSynMax float64 `validate:"gt=0"`
	BruteforceMinReqSyn           int     `validate:"min=1"`
	BruteforceMinRspSyn           int     `validate:"min=1"`
	BruteforceReqToOutboundRatio  float64 `validate:"gt=0"`

	DNSAmplifThreshold int64 `validate:"min=1"`

	DDoSInterval          int     `validate:"min=1"`
	DDoSThresholdFlowRate float64 `validate:"gt=0"`
	DDoSMinFlowPerSecond  float64 `validate:"gt=0"`
	MaxFlowLen            int     `validate:"min=1"`
	MaxFlowDelay          int     `validate:"min=1"`

	// R7 horizontal address scan (per-source-port).
	NumAddrsThreshold  int `validate:"min=1"`
	PortScanIdleSec    int `validate:"min=1"`
	PortScanPruningSec int `validate:"min=1"`

	BlacklistIPv4File string
	BlacklistIPv6File string
	BlacklistURLFile  string
	BlacklistDNSFile  string

	LogDir string `validate:"required"`

	RedisAddr   string
	RedisStream string
}

// Defaults returns the documented defaults from spec.md §6 and its
// supplemental §4.A1 additions.
func Defaults() Config {
	return Config{
		TableSize:       65536,
		DetStartTime:    10,
		TimeoutActive:   300,
		TimeoutInactive: 30,

		RulesGeneric: true,
		RulesSSH:     false,
		RulesDNS:     false,
		PortFlowDir:  false,

		SynScanThreshold:              200,
		SynScanSynToAckRatio:          20,
		SynScanRequestToResponseRatio: 5,
		SynScanIPs:                    200,

		DosVictimConnectionsSynflood:   270000,
		DosVictimConnectionsOthers:     1000000,
		DosVictimPacketRatio:           2,
		DosAttackerConnectionsSynflood: 270000,
		DosAttackerConnectionsOthers:   1000000,
		DosAttackerPacketRatio:         2,
		DosReqRspEstRatio:              0.8,
		DosRspReqEstRatio:              0.2,

		BruteforceReqPacketsPerSynMin: 5,
		BruteforceReqPacketsPerSynMax: 20,
		BruteforceRspPacketsPerSynMin: 10,
		BruteforceRspPacketsPerSynMax: 25,
		BruteforceMinReqSyn:           60,
		BruteforceMinRspSyn:           30,
		BruteforceReqToOutboundRatio:  3,

		DNSAmplifThreshold: 10000,

		DDoSInterval:          60,
		DDoSThresholdFlowRate: 4,
		DDoSMinFlowPerSecond:  250,
		MaxFlowLen:            330,
		MaxFlowDelay:          90,

		NumAddrsThreshold:  50,
		PortScanIdleSec:    300,
		PortScanPruningSec: 60,

		LogDir: "./logs",
	}
}

var validate = validator.New()

// Validate checks the struct tags above and the few cross-field invariants
// that validator tags can't express. A failure here is a startup error
// (spec.md §7, class b): the process refuses to start.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MaxFlowDelay >= c.DDoSInterval*1_000_000 {
		return fmt.Errorf("config: max-flow-delay implausibly large relative to ddos-interval")
	}
	return nil
}

// WindowSlots returns N, the rolling interval accumulator's ring size, per
// spec.md §3: ceil((max_flow_len + max_flow_delay) / interval_seconds).
func (c Config) WindowSlots() int {
	sum := c.MaxFlowLen + c.MaxFlowDelay
	n := sum / c.DDoSInterval
	if sum%c.DDoSInterval != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}
