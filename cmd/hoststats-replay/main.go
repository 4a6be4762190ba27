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

// Package main is the offline-mode entrypoint: it drives the single-thread
// replay path (internal/engine.RunOffline) over a file of length-prefixed
// encoded flow records, for deterministic bulk analysis of a capture.
package main

import (
	"bufio"
	"errors"
	"flag"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"hoststats/internal/blacklist"
	"hoststats/internal/config"
	"hoststats/internal/emit"
	"hoststats/internal/engine"
	"hoststats/internal/logging"
	"hoststats/internal/metrics"
	"hoststats/pkg/flowrec"
)

func main() {
	cfg := config.Defaults()

	inputPath := flag.String("input", "", "Path to a file of length-prefixed encoded flow records (required)")
	logLevel := flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logPretty := flag.Bool("log_pretty", false, "Use zerolog's console writer instead of JSON")

	flag.IntVar(&cfg.TableSize, "table_size", cfg.TableSize, "Host table capacity (rounded up to a power of two)")
	flag.IntVar(&cfg.DetStartTime, "det_start_time", cfg.DetStartTime, "Seconds between sweep passes")
	flag.IntVar(&cfg.TimeoutActive, "timeout_active", cfg.TimeoutActive, "Active-flow timeout in seconds")
	flag.IntVar(&cfg.TimeoutInactive, "timeout_inactive", cfg.TimeoutInactive, "Inactive-flow timeout in seconds")
	flag.BoolVar(&cfg.RulesSSH, "rules_ssh", cfg.RulesSSH, "Enable the SSH brute-force sub-profile")
	flag.BoolVar(&cfg.RulesDNS, "rules_dns", cfg.RulesDNS, "Enable the DNS amplification sub-profile")
	flag.BoolVar(&cfg.PortFlowDir, "port_flow_dir", cfg.PortFlowDir, "Derive direction from ports instead of the upstream direction tag")

	flag.StringVar(&cfg.BlacklistIPv4File, "blacklist_ipv4_file", cfg.BlacklistIPv4File, "IPv4 blacklist file path (empty disables)")
	flag.StringVar(&cfg.BlacklistIPv6File, "blacklist_ipv6_file", cfg.BlacklistIPv6File, "IPv6 blacklist file path (empty disables)")
	flag.StringVar(&cfg.BlacklistURLFile, "blacklist_url_file", cfg.BlacklistURLFile, "URL blacklist file path (empty disables)")
	flag.StringVar(&cfg.BlacklistDNSFile, "blacklist_dns_file", cfg.BlacklistDNSFile, "DNS blacklist file path (empty disables)")
	flag.StringVar(&cfg.LogDir, "log_dir", cfg.LogDir, "Directory for the daily event log file")

	flag.Parse()

	log := logging.New(logging.Options{Level: *logLevel, Pretty: *logPretty})

	if *inputPath == "" {
		log.Error().Msg("-input is required")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	f, err := os.Open(*inputPath)
	if err != nil {
		log.Error().Err(err).Str("path", *inputPath).Msg("failed to open replay input")
		os.Exit(1)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	met := metrics.New(prometheus.NewRegistry())
	fileSink := emit.NewFileSink(cfg.LogDir, log)

	var count int
	eng := engine.New(cfg, log, func(ev engine.Event) {
		ev = ev.WithID()
		met.EventEmitted(ev.Type.String())
		fileSink.Send(ev)
		count++
	})
	eng.SetMetrics(met)

	if bl := loadBlacklistIfConfigured(cfg, log); bl != nil {
		eng.SetBlacklist(bl)
	}

	if err := engine.RunOffline(eng, log, decodeSkippingShortFrames(r, log)); err != nil {
		log.Error().Err(err).Msg("replay failed")
		os.Exit(1)
	}

	log.Info().Int("events_emitted", count).Msg("replay complete")
}

// decodeSkippingShortFrames wraps flowrec.Decode so malformed frames are
// logged and skipped rather than ending the replay (spec.md §7's class (a)
// input-validation error taxonomy), while true end-of-stream/EOF still
// terminates it and is reported back to RunOffline as a plain error — it
// only checks for a non-nil return, not a specific sentinel.
func decodeSkippingShortFrames(r io.Reader, log zerolog.Logger) func() (flowrec.FlowRecord, error) {
	return func() (flowrec.FlowRecord, error) {
		for {
			rec, err := flowrec.Decode(r)
			if err == nil {
				return rec, nil
			}
			if errors.Is(err, flowrec.ErrShortFrame) {
				log.Warn().Msg("dropping undersized replay frame")
				continue
			}
			return flowrec.FlowRecord{}, err
		}
	}
}

// loadBlacklistIfConfigured builds a blacklist engine when at least one
// blacklist file path is set; replay mode has no watcher since the input
// file isn't live. Returns nil if nothing is configured or loading fails
// (logged, not fatal — a replay run still completes without blacklist
// checks rather than aborting on a missing side file).
func loadBlacklistIfConfigured(cfg config.Config, log zerolog.Logger) *blacklist.Engine {
	paths := blacklist.Paths{
		IPv4: cfg.BlacklistIPv4File,
		IPv6: cfg.BlacklistIPv6File,
		URL:  cfg.BlacklistURLFile,
		DNS:  cfg.BlacklistDNSFile,
	}
	if paths.IPv4 == "" && paths.IPv6 == "" && paths.URL == "" && paths.DNS == "" {
		return nil
	}
	bl, err := blacklist.New(log, paths)
	if err != nil {
		log.Error().Err(err).Msg("failed to load blacklist files; continuing without blacklist checks")
		return nil
	}
	return bl
}
