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

package engine

import (
	"hoststats/internal/config"
	"hoststats/pkg/flowrec"
)

// estimate implements the "extrapolate a request/response-only count from
// the all-traffic total" pattern used throughout R1-R3: the known directional
// count plus the unclassified remainder scaled by ratio.
func estimate(known, other, all uint32, ratio float64) float64 {
	rest := float64(all) - float64(known) - float64(other)
	if rest < 0 {
		rest = 0
	}
	return float64(known) + rest*ratio
}

func subU32(a, b uint32) uint32 {
	if a < b {
		return 0
	}
	return a - b
}

// EvaluateGenericRules runs R1-R3 (always, if enabled) plus R4/R5 (if their
// sub-profiles are present and enabled) over a snapshot of rec. Rules are
// independent; more than one may fire.
func EvaluateGenericRules(key flowrec.HostKey, rec *HostRecord, cfg config.Config) []Event {
	var events []Event
	if cfg.RulesGeneric {
		if ev, ok := evalR1(key, rec, cfg); ok {
			events = append(events, ev)
		}
		if ev, ok := evalR2(key, rec, cfg); ok {
			events = append(events, ev)
		}
		if ev, ok := evalR3(key, rec, cfg); ok {
			events = append(events, ev)
		}
	}
	if cfg.RulesSSH && rec.SSH != nil {
		events = append(events, evalR4(key, rec.SSH, cfg)...)
	}
	if cfg.RulesDNS && rec.DNS != nil {
		events = append(events, evalR5(key, rec.DNS, cfg)...)
	}
	return events
}

// evalR1 is the horizontal SYN scan (attacker side) rule.
func evalR1(key flowrec.HostKey, rec *HostRecord, cfg config.Config) (Event, bool) {
	estReqSyn := estimate(rec.OutReq.Syn, rec.OutRsp.Syn, rec.OutAll.Syn, cfg.DosReqRspEstRatio)
	estReqAck := estimate(rec.OutReq.Ack, rec.OutRsp.Ack, rec.OutAll.Ack, cfg.DosReqRspEstRatio)
	estInRspAck := estimate(rec.InRsp.Ack, rec.InReq.Ack, rec.InAll.Ack, cfg.DosRspReqEstRatio)

	fires := estReqSyn > float64(cfg.SynScanThreshold) &&
		estReqSyn > cfg.SynScanSynToAckRatio*estReqAck &&
		estReqSyn > cfg.SynScanRequestToResponseRatio*estInRspAck &&
		rec.OutReq.UniqueIPs >= uint32(cfg.SynScanIPs) &&
		rec.OutReq.Syn > rec.OutAll.Flows/2 &&
		rec.OutReq.Syn > 10*rec.InAll.Syn

	if !fires {
		return Event{}, false
	}
	return Event{
		Type:      EventPortscanHorizontal,
		TimeFirst: rec.FirstSeen,
		TimeLast:  rec.LastSeen,
		SrcAddrs:  []flowrec.Addr{key.Addr},
		Scale:     subU32(rec.OutAll.Syn, rec.OutAll.Ack),
		Note:      "horizontal SYN scan",
	}, true
}

// evalR2 is the DoS victim rule (two alternative branches).
func evalR2(key flowrec.HostKey, rec *HostRecord, cfg config.Config) (Event, bool) {
	synFlood := rec.InAll.Syn > uint32(cfg.DosVictimConnectionsSynflood) &&
		rec.InAll.Syn > 2*rec.InAll.Ack &&
		float64(rec.InAll.Packets) < cfg.DosVictimPacketRatio*float64(rec.InAll.Flows)

	estInReqFlows := estimate(rec.InReq.Flows, rec.InRsp.Flows, rec.InAll.Flows, cfg.DosReqRspEstRatio)
	estInReqPackets := estimate(rec.InReq.Packets, rec.InRsp.Packets, rec.InAll.Packets, cfg.DosReqRspEstRatio)
	estOutRspFlows := estimate(rec.OutRsp.Flows, rec.OutReq.Flows, rec.OutAll.Flows, cfg.DosRspReqEstRatio)

	generic := estInReqFlows > float64(cfg.DosVictimConnectionsOthers) &&
		estInReqPackets < cfg.DosVictimPacketRatio*estInReqFlows &&
		estOutRspFlows < estInReqFlows/2

	if !synFlood && !generic {
		return Event{}, false
	}

	note := "SYN flood victim"
	if !synFlood {
		note = "generic DoS victim"
	}
	if rec.InAll.UniqueIPs > rec.InAll.Flows/2 {
		note += " (probably spoofed)"
	}
	return Event{
		Type:      EventDoS,
		TimeFirst: rec.FirstSeen,
		TimeLast:  rec.LastSeen,
		DstAddrs:  []flowrec.Addr{key.Addr},
		Scale:     rec.InAll.Flows,
		Note:      note,
	}, true
}

// evalR3 is the DoS attacker rule, symmetric to R2 over out_* counters.
func evalR3(key flowrec.HostKey, rec *HostRecord, cfg config.Config) (Event, bool) {
	synFlood := rec.OutAll.Syn > uint32(cfg.DosAttackerConnectionsSynflood) &&
		rec.OutAll.Syn > 2*rec.OutAll.Ack &&
		float64(rec.OutAll.Packets) < cfg.DosAttackerPacketRatio*float64(rec.OutAll.Flows)

	estOutReqFlows := estimate(rec.OutReq.Flows, rec.OutRsp.Flows, rec.OutAll.Flows, cfg.DosReqRspEstRatio)
	estOutReqPackets := estimate(rec.OutReq.Packets, rec.OutRsp.Packets, rec.OutAll.Packets, cfg.DosReqRspEstRatio)
	estInRspFlows := estimate(rec.InRsp.Flows, rec.InReq.Flows, rec.InAll.Flows, cfg.DosRspReqEstRatio)

	divisor := rec.OutAll.UniqueIPs
	if divisor < 1 {
		divisor = 1
	}
	generic := estOutReqFlows > float64(cfg.DosAttackerConnectionsOthers) &&
		estOutReqPackets < cfg.DosAttackerPacketRatio*estOutReqFlows &&
		estInRspFlows < estOutReqFlows/float64(divisor)

	if !synFlood && !generic {
		return Event{}, false
	}
	note := "SYN flood attacker"
	if !synFlood {
		note = "generic DoS attacker"
	}
	return Event{
		Type:      EventDoS,
		TimeFirst: rec.FirstSeen,
		TimeLast:  rec.LastSeen,
		SrcAddrs:  []flowrec.Addr{key.Addr},
		Scale:     rec.OutAll.Flows,
		Note:      note,
	}, true
}

func packetsPerSyn(c directionCounters) float64 {
	if c.Syn == 0 {
		return 0
	}
	return float64(c.Packets) / float64(c.Syn)
}

func inEnvelope(v, lo, hi float64) bool { return v >= lo && v <= hi }

// evalR4 is the SSH brute-force rule: a host is flagged as victim if it
// receives a sustained run of SSH SYNs whose packets-per-SYN ratios fall in
// the configured envelope and which dwarf its own outbound SSH requests; the
// symmetric attacker case is the mirror over out_*.
func evalR4(key flowrec.HostKey, ssh *SubProfile, cfg config.Config) []Event {
	var events []Event

	if int(ssh.InReq.Syn) >= cfg.BruteforceMinReqSyn &&
		int(ssh.InRsp.Syn) >= cfg.BruteforceMinRspSyn &&
		inEnvelope(packetsPerSyn(ssh.InReq), cfg.BruteforceReqPacketsPerSynMin, cfg.BruteforceReqPacketsPerSynMax) &&
		inEnvelope(packetsPerSyn(ssh.InRsp), cfg.BruteforceRspPacketsPerSynMin, cfg.BruteforceRspPacketsPerSynMax) &&
		float64(ssh.InReq.Syn) > cfg.BruteforceReqToOutboundRatio*float64(ssh.OutReq.Syn) {
		events = append(events, Event{
			Type:     EventBruteforce,
			DstAddrs: []flowrec.Addr{key.Addr},
			Scale:    ssh.InReq.Syn,
			Note:     "SSH brute-force victim",
		})
	}

	if int(ssh.OutReq.Syn) >= cfg.BruteforceMinReqSyn &&
		int(ssh.OutRsp.Syn) >= cfg.BruteforceMinRspSyn &&
		inEnvelope(packetsPerSyn(ssh.OutReq), cfg.BruteforceReqPacketsPerSynMin, cfg.BruteforceReqPacketsPerSynMax) &&
		inEnvelope(packetsPerSyn(ssh.OutRsp), cfg.BruteforceRspPacketsPerSynMin, cfg.BruteforceRspPacketsPerSynMax) &&
		float64(ssh.OutReq.Syn) > cfg.BruteforceReqToOutboundRatio*float64(ssh.InReq.Syn) {
		events = append(events, Event{
			Type:     EventBruteforce,
			SrcAddrs: []flowrec.Addr{key.Addr},
			Scale:    ssh.OutReq.Syn,
			Note:     "SSH brute-force attacker",
		})
	}
	return events
}

// evalR5 is the DNS amplification rule.
func evalR5(key flowrec.HostKey, dns *SubProfile, cfg config.Config) []Event {
	var events []Event
	threshold := uint32(cfg.DNSAmplifThreshold)
	if dns.OutRspOverlimitCnt > threshold {
		events = append(events, Event{
			Type:     EventDNSAmplification,
			SrcAddrs: []flowrec.Addr{key.Addr},
			Scale:    dns.OutRspOverlimitCnt,
			Note:     "misused server",
		})
	}
	if dns.InRspOverlimitCnt > threshold {
		events = append(events, Event{
			Type:     EventDNSAmplification,
			DstAddrs: []flowrec.Addr{key.Addr},
			Scale:    dns.InRspOverlimitCnt,
			Note:     "victim",
		})
	}
	return events
}
