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

// Package main is the online-mode entrypoint: it accepts a stream of
// decoded flow records over TCP, runs them through the detection engine in
// the online scheduler (internal/engine.Scheduler), and fans emitted
// events out to whichever sinks are configured.
//
// The flow transport itself (how records are framed and shipped upstream)
// is out of this module's scope per spec.md's Non-goals; this binary reads
// the same length-prefixed frame format pkg/flowrec.Decode already knows,
// from any TCP client that speaks it.
package main

import (
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	listenAddr := flag.String("listen_addr", ":7000", "TCP address to accept flow-record connections on")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	logLevel := flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logPretty := flag.Bool("log_pretty", false, "Use zerolog's console writer instead of JSON")
	useFileSink := flag.Bool("file_sink", true, "Write events to the daily log file (YYYYMMDD.log) under -log_dir")
	useRedisSink := flag.Bool("redis_sink", false, "Also ship events to Redis (requires -redis_addr)")

	flag.IntVar(&cfg.TableSize, "table_size", cfg.TableSize, "Host table capacity (rounded up to a power of two)")
	flag.IntVar(&cfg.DetStartTime, "det_start_time", cfg.DetStartTime, "Seconds between sweep passes")
	flag.IntVar(&cfg.TimeoutActive, "timeout_active", cfg.TimeoutActive, "Active-flow timeout in seconds")
	flag.IntVar(&cfg.TimeoutInactive, "timeout_inactive", cfg.TimeoutInactive, "Inactive-flow timeout in seconds")

	flag.BoolVar(&cfg.RulesGeneric, "rules_generic", cfg.RulesGeneric, "Enable the generic host-profile rule set")
	flag.BoolVar(&cfg.RulesSSH, "rules_ssh", cfg.RulesSSH, "Enable the SSH brute-force sub-profile")
	flag.BoolVar(&cfg.RulesDNS, "rules_dns", cfg.RulesDNS, "Enable the DNS amplification sub-profile")
	flag.BoolVar(&cfg.PortFlowDir, "port_flow_dir", cfg.PortFlowDir, "Derive direction from ports instead of the upstream direction tag")

	flag.IntVar(&cfg.SynScanThreshold, "synscan_threshold", cfg.SynScanThreshold, "R1 minimum SYN-only flows per source")
	flag.Float64Var(&cfg.SynScanSynToAckRatio, "synscan_syn_to_ack_ratio", cfg.SynScanSynToAckRatio, "R1 SYN/ACK ratio floor")
	flag.Float64Var(&cfg.SynScanRequestToResponseRatio, "synscan_req_rsp_ratio", cfg.SynScanRequestToResponseRatio, "R1 request/response ratio floor")
	flag.IntVar(&cfg.SynScanIPs, "synscan_ips", cfg.SynScanIPs, "R1 minimum distinct destination IPs")

	flag.Int64Var(&cfg.DosVictimConnectionsSynflood, "dos_victim_conns_synflood", cfg.DosVictimConnectionsSynflood, "R2 victim SYN-flood connection floor")
	flag.Int64Var(&cfg.DosVictimConnectionsOthers, "dos_victim_conns_others", cfg.DosVictimConnectionsOthers, "R2 victim non-SYN-flood connection floor")
	flag.Float64Var(&cfg.DosVictimPacketRatio, "dos_victim_packet_ratio", cfg.DosVictimPacketRatio, "R2 victim packet ratio ceiling")
	flag.Int64Var(&cfg.DosAttackerConnectionsSynflood, "dos_attacker_conns_synflood", cfg.DosAttackerConnectionsSynflood, "R3 attacker SYN-flood connection floor")
	flag.Int64Var(&cfg.DosAttackerConnectionsOthers, "dos_attacker_conns_others", cfg.DosAttackerConnectionsOthers, "R3 attacker non-SYN-flood connection floor")
	flag.Float64Var(&cfg.DosAttackerPacketRatio, "dos_attacker_packet_ratio", cfg.DosAttackerPacketRatio, "R3 attacker packet ratio ceiling")
	flag.Float64Var(&cfg.DosReqRspEstRatio, "dos_req_rsp_est_ratio", cfg.DosReqRspEstRatio, "R2/R3 request/response extrapolation ratio")
	flag.Float64Var(&cfg.DosRspReqEstRatio, "dos_rsp_req_est_ratio", cfg.DosRspReqEstRatio, "R2/R3 response/request extrapolation ratio")

	flag.Float64Var(&cfg.BruteforceReqPacketsPerSynMin, "bf_req_packets_per_syn_min", cfg.BruteforceReqPacketsPerSynMin, "R4 request packets-per-SYN lower bound")
	flag.Float64Var(&cfg.BruteforceReqPacketsPerSynMax, "bf_req_packets_per_syn_max", cfg.BruteforceReqPacketsPerSynMax, "R4 request packets-per-SYN upper bound")
	flag.Float64Var(&cfg.BruteforceRspPacketsPerSynMin, "bf_rsp_packets_per_syn_min", cfg.BruteforceRspPacketsPerSynMin, "R4 response packets-per-SYN lower bound")
	flag.Float64Var(&cfg.BruteforceRspPacketsPerSynMax, "bf_rsp_packets_per_syn_max", cfg.BruteforceRspPacketsPerSynMax, "R4 response packets-per-SYN upper bound")
	flag.IntVar(&cfg.BruteforceMinReqSyn, "bf_min_req_syn", cfg.BruteforceMinReqSyn, "R4 minimum request SYNs")
	flag.IntVar(&cfg.BruteforceMinRspSyn, "bf_min_rsp_syn", cfg.BruteforceMinRspSyn, "R4 minimum response SYNs")
	flag.Float64Var(&cfg.BruteforceReqToOutboundRatio, "bf_req_to_outbound_ratio", cfg.BruteforceReqToOutboundRatio, "R4 request-to-outbound ratio floor")

	flag.Int64Var(&cfg.DNSAmplifThreshold, "dns_amplif_threshold", cfg.DNSAmplifThreshold, "R5 number of DNS responses of at least 1000 bytes above which amplification is reported")

	flag.IntVar(&cfg.DDoSInterval, "ddos_interval", cfg.DDoSInterval, "R6 rolling accumulator interval, seconds")
	flag.Float64Var(&cfg.DDoSThresholdFlowRate, "ddos_threshold_flow_rate", cfg.DDoSThresholdFlowRate, "R6 flow-rate-jump multiplier")
	flag.Float64Var(&cfg.DDoSMinFlowPerSecond, "ddos_min_flow_per_second", cfg.DDoSMinFlowPerSecond, "R6 minimum average bytes/sec before a jump counts")
	flag.IntVar(&cfg.MaxFlowLen, "max_flow_len", cfg.MaxFlowLen, "R6 longest flow duration the accumulator spreads across")
	flag.IntVar(&cfg.MaxFlowDelay, "max_flow_delay", cfg.MaxFlowDelay, "R6 maximum out-of-order flow export delay tolerated")

	flag.IntVar(&cfg.NumAddrsThreshold, "numaddrs_threshold", cfg.NumAddrsThreshold, "R7 distinct destination IPs before a portscan_h fires")
	flag.IntVar(&cfg.PortScanIdleSec, "portscan_idle_sec", cfg.PortScanIdleSec, "R7 per-key idle eviction threshold, seconds")
	flag.IntVar(&cfg.PortScanPruningSec, "portscan_pruning_sec", cfg.PortScanPruningSec, "R7 per-key prune scan interval, seconds (not consulted: pruning runs on every sweep pass)")

	flag.StringVar(&cfg.BlacklistIPv4File, "blacklist_ipv4_file", cfg.BlacklistIPv4File, "IPv4 blacklist file path (empty disables)")
	flag.StringVar(&cfg.BlacklistIPv6File, "blacklist_ipv6_file", cfg.BlacklistIPv6File, "IPv6 blacklist file path (empty disables)")
	flag.StringVar(&cfg.BlacklistURLFile, "blacklist_url_file", cfg.BlacklistURLFile, "URL blacklist file path (empty disables)")
	flag.StringVar(&cfg.BlacklistDNSFile, "blacklist_dns_file", cfg.BlacklistDNSFile, "DNS blacklist file path (empty disables)")

	flag.StringVar(&cfg.LogDir, "log_dir", cfg.LogDir, "Directory for the daily event log file")
	flag.StringVar(&cfg.RedisAddr, "redis_addr", cfg.RedisAddr, "Redis address events are shipped to when -redis_sink is set")
	flag.StringVar(&cfg.RedisStream, "redis_stream", "hoststats-events", "Redis stream key events are XAdd'ed to")

	channelBuffer := flag.Int("channel_buffer", 1024, "Buffer size for the in-process channel event sink")
	schedulerBuffer := flag.Int("scheduler_buffer", 4096, "Buffer size for the ingest scheduler's flow-record channel")
	flag.Parse()

	log := logging.New(logging.Options{Level: *logLevel, Pretty: *logPretty})

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	channelSink := emit.NewChannelSink(*channelBuffer, log)
	sinks := emit.Fanout{channelSink}
	if *useFileSink {
		sinks = append(sinks, emit.NewFileSink(cfg.LogDir, log))
	}
	if *useRedisSink && cfg.RedisAddr != "" {
		sinks = append(sinks, emit.NewRedisSink(cfg.RedisAddr, cfg.RedisStream, log))
	}

	eng := engine.New(cfg, log, func(ev engine.Event) {
		ev = ev.WithID()
		met.EventEmitted(ev.Type.String())
		sinks.Send(ev)
	})
	eng.SetMetrics(met)

	bl, watcher := setupBlacklist(cfg, log)
	if bl != nil {
		eng.SetBlacklist(bl)
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg, log)
	}

	// Drain the channel sink so it never saturates; a real deployment would
	// forward these events somewhere (a second Redis consumer group, a
	// websocket, etc.) — here they are read and discarded.
	go func() {
		for range channelSink.Events() {
		}
	}()

	sched := engine.NewScheduler(eng, log, *schedulerBuffer)
	sched.Start()
	if watcher != nil {
		watcher.Start()
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Error().Err(err).Str("addr", *listenAddr).Msg("failed to listen for flow records")
		os.Exit(1)
	}
	log.Info().Str("addr", *listenAddr).Msg("accepting flow-record connections")

	go acceptLoop(ln, sched, watcher, bl)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ln.Close()
	if watcher != nil {
		watcher.Stop()
	}
	sched.Stop()
	log.Info().Msg("shutdown complete")
}

// acceptLoop accepts flow-record connections and decodes each on its own
// goroutine until the listener is closed.
func acceptLoop(ln net.Listener, sched *engine.Scheduler, watcher *blacklist.Watcher, bl *blacklist.Engine) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go decodeConn(conn, sched, watcher, bl)
	}
}

// decodeConn reads frames off one connection until it hits the end-of-stream
// marker or the connection drops. Per ingest-thread-receive-timeout cadence
// (spec.md §4.C6), a pending blacklist reload is applied between frames
// rather than on a separate timer, since this loop is the closest thing
// this transport has to a receive-timeout tick.
func decodeConn(conn net.Conn, sched *engine.Scheduler, watcher *blacklist.Watcher, bl *blacklist.Engine) {
	defer conn.Close()
	for {
		r, err := flowrec.Decode(conn)
		if err != nil {
			if errors.Is(err, flowrec.ErrShortFrame) {
				continue
			}
			if errors.Is(err, flowrec.ErrEndOfStream) || errors.Is(err, io.EOF) {
				return
			}
			return
		}
		if watcher != nil && bl != nil && watcher.ReloadRequested() {
			bl.Reload()
		}
		sched.Submit(r)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

// setupBlacklist builds the blacklist engine and its hot-reload watcher if
// at least one blacklist file path is configured; otherwise both are nil
// and the engine runs with blacklist checking disabled.
func setupBlacklist(cfg config.Config, log zerolog.Logger) (*blacklist.Engine, *blacklist.Watcher) {
	paths := blacklist.Paths{
		IPv4: cfg.BlacklistIPv4File,
		IPv6: cfg.BlacklistIPv6File,
		URL:  cfg.BlacklistURLFile,
		DNS:  cfg.BlacklistDNSFile,
	}
	if paths.IPv4 == "" && paths.IPv6 == "" && paths.URL == "" && paths.DNS == "" {
		return nil, nil
	}

	bl, err := blacklist.New(log, paths)
	if err != nil {
		log.Error().Err(err).Msg("failed to load blacklist files")
		os.Exit(1)
	}
	watcher, err := blacklist.NewWatcher(log, paths.IPv4, paths.IPv6, paths.URL, paths.DNS)
	if err != nil {
		log.Error().Err(err).Msg("failed to start blacklist watcher")
		os.Exit(1)
	}
	return bl, watcher
}
