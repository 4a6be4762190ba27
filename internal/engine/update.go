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
	"hoststats/pkg/bloom"
	"hoststats/pkg/flowrec"
)

// effectiveDirection implements spec.md §4.C5 step 1: trust the upstream
// DIR_BIT_FIELD unless the engine is configured to derive direction from
// ports.
func effectiveDirection(r flowrec.FlowRecord, portFlowDir bool) flowrec.Direction {
	if !portFlowDir {
		return r.Direction()
	}
	return deriveDirectionFromPorts(r)
}

// deriveDirectionFromPorts implements the port-based fallback: the side
// holding the lower, sub-10000 port is the responder. A flow travels toward
// the responder as a request, and away from it as a response.
func deriveDirectionFromPorts(r flowrec.FlowRecord) flowrec.Direction {
	if r.SrcPort == r.DstPort {
		return flowrec.DirNotRecognized
	}
	if r.DstPort < r.SrcPort && r.DstPort < 10000 {
		return flowrec.DirRequest
	}
	if r.SrcPort < r.DstPort && r.SrcPort < 10000 {
		return flowrec.DirResponse
	}
	return flowrec.DirNotRecognized
}

// applySide updates one side's directionCounters bundle (all/req/rsp) and
// its uniqueips estimate via the three bloom pairs, per spec.md §4.C5 steps
// 2-3. subjectFirstSeen is the updated record's own first_seen (the bloom
// key's epoch field); origin disambiguates which side is contributing this
// bloom insertion.
func applySide(rec *HostRecord, all, req, rsp *bloom.Pair, subjectFirstSeen uint32, flowSrc, flowDst flowrec.Addr, origin bool, dir flowrec.Direction, isOutbound bool, r flowrec.FlowRecord) {
	var allC, reqC, rspC *directionCounters
	if isOutbound {
		allC, reqC, rspC = &rec.OutAll, &rec.OutReq, &rec.OutRsp
	} else {
		allC, reqC, rspC = &rec.InAll, &rec.InReq, &rec.InRsp
	}

	bk := bloom.Key{Src: flowSrc, Dst: flowDst, Epoch15: uint16(subjectFirstSeen & 0x7FFF), Origin: origin}
	h1, h2 := bk.Hashes()
	allC.add(r.Packets, r.Bytes, r.TCPFlags)
	if !all.ContainsAndInsert(h1, h2) {
		allC.UniqueIPs = saturatingIncU32(allC.UniqueIPs)
	}

	switch dir {
	case flowrec.DirRequest:
		reqC.add(r.Packets, r.Bytes, r.TCPFlags)
		if !req.ContainsAndInsert(h1, h2) {
			reqC.UniqueIPs = saturatingIncU32(reqC.UniqueIPs)
		}
	case flowrec.DirResponse:
		rspC.add(r.Packets, r.Bytes, r.TCPFlags)
		if !rsp.ContainsAndInsert(h1, h2) {
			rspC.UniqueIPs = saturatingIncU32(rspC.UniqueIPs)
		}
	}
}

// applySubProfile applies the same update to the named sub-profile (SSH or
// DNS), creating it on first match, per spec.md §4.C5 step 4. Sub-profiles
// track counters only, not bloom-backed uniqueips.
func applySubProfile(h *HostRecord, name string, isOutbound bool, dir flowrec.Direction, r flowrec.FlowRecord) {
	if !subProfileMatches(name, r) {
		return
	}
	var sp **SubProfile
	switch name {
	case "ssh":
		sp = &h.SSH
	case "dns":
		sp = &h.DNS
	}
	if *sp == nil {
		*sp = (&SubProfile{}).ensure()
	}
	prof := *sp

	var allC, reqC, rspC *directionCounters
	if isOutbound {
		allC, reqC, rspC = &prof.OutAll, &prof.OutReq, &prof.OutRsp
	} else {
		allC, reqC, rspC = &prof.InAll, &prof.InReq, &prof.InRsp
	}
	allC.add(r.Packets, r.Bytes, r.TCPFlags)
	switch dir {
	case flowrec.DirRequest:
		reqC.add(r.Packets, r.Bytes, r.TCPFlags)
	case flowrec.DirResponse:
		rspC.add(r.Packets, r.Bytes, r.TCPFlags)
		if name == "dns" && r.Bytes >= dnsOverlimitBytes {
			if isOutbound {
				prof.OutRspOverlimitCnt = saturatingIncU32(prof.OutRspOverlimitCnt)
			} else {
				prof.InRspOverlimitCnt = saturatingIncU32(prof.InRspOverlimitCnt)
			}
		}
	}
}
