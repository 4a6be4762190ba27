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

import "hoststats/pkg/flowrec"

// BlacklistLookup is the narrow view of blacklist.Engine the rule engine
// needs. Only the IP blacklist wires into live flow ingest: DNS/URL
// membership needs the application-layer hostname or request path, which
// this core's FlowRecord (a plain netflow-style 5-tuple record) never
// carries — those two lookups stay available as library calls for a
// separate detector fed an enriched record, but are not invoked here.
type BlacklistLookup interface {
	LookupIP(addr flowrec.Addr, port uint16) uint32
}

// SetBlacklist installs the blacklist engine consulted on every ingested
// flow. A nil value (the default) disables blacklist checking entirely.
func (e *Engine) SetBlacklist(bl BlacklistLookup) { e.blacklist = bl }

// checkBlacklist consults the IP blacklist for both endpoints of r and
// returns the events fired, per spec.md §4.C8/§8 scenario 5.
func (e *Engine) checkBlacklist(r flowrec.FlowRecord) []Event {
	if e.blacklist == nil {
		return nil
	}
	var events []Event
	if bm := e.blacklist.LookupIP(r.SrcIP, r.SrcPort); bm != 0 {
		events = append(events, Event{
			Type:      EventBlacklistIP,
			TimeFirst: r.TimeFirstSec,
			TimeLast:  r.TimeLastSec,
			SrcAddrs:  []flowrec.Addr{r.SrcIP},
			DstAddrs:  []flowrec.Addr{r.DstIP},
			SrcPorts:  []uint16{r.SrcPort},
			DstPorts:  []uint16{r.DstPort},
			Protocols: []uint8{r.Protocol},
			Scale:     bm,
			Note:      "src_blacklist",
		})
	}
	if bm := e.blacklist.LookupIP(r.DstIP, r.DstPort); bm != 0 {
		events = append(events, Event{
			Type:      EventBlacklistIP,
			TimeFirst: r.TimeFirstSec,
			TimeLast:  r.TimeLastSec,
			SrcAddrs:  []flowrec.Addr{r.SrcIP},
			DstAddrs:  []flowrec.Addr{r.DstIP},
			SrcPorts:  []uint16{r.SrcPort},
			DstPorts:  []uint16{r.DstPort},
			Protocols: []uint8{r.Protocol},
			Scale:     bm,
			Note:      "dst_blacklist",
		})
	}
	return events
}
