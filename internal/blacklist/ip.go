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

// Package blacklist implements the IP/URL/DNS blacklist lookup engine:
// a sorted address-prefix vector with longest-prefix binary search, and a
// label tree shared by the URL (prefix) and DNS (suffix) lookups.
package blacklist

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"hoststats/pkg/flowrec"
)

// ipEntry is one line of a loaded IP blacklist file: a network/prefix, the
// bitmap of blacklist ids it belongs to, and an optional per-id port
// restriction.
type ipEntry struct {
	network   flowrec.Addr
	prefixLen int
	bitmap    uint32
	ports     map[int][]uint16 // bl_id -> allowed ports; absent id matches all ports
}

// IPTable is the sorted IPv4/IPv6 prefix vectors described in spec.md §4.C8.
// Entries are sorted by network address ascending, so the binary search in
// Lookup has a well-defined starting point.
type IPTable struct {
	v4 []ipEntry
	v6 []ipEntry
}

func bitForID(id int) uint32 {
	if id <= 0 || id > 32 {
		return 0
	}
	return 1 << uint(id-1)
}

// parseIPLine parses one line of the IP blacklist format:
//
//	<addr>[/<prefix>],<bl_id_bitmap_decimal>[;<bl_id>:<port>[,<port>...][;...]]
func parseIPLine(line string) (ipEntry, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return ipEntry{}, fmt.Errorf("blank line")
	}
	comma := strings.IndexByte(line, ',')
	if comma < 0 {
		return ipEntry{}, fmt.Errorf("missing bitmap field: %q", line)
	}
	addrPart := line[:comma]
	rest := line[comma+1:]
	if rest == "" {
		return ipEntry{}, fmt.Errorf("missing bitmap field: %q", line)
	}

	segs := strings.Split(rest, ";")
	bitmap64, err := strconv.ParseUint(strings.TrimSpace(segs[0]), 10, 32)
	if err != nil {
		return ipEntry{}, fmt.Errorf("bad bitmap %q: %w", segs[0], err)
	}

	network, prefixLen, err := parseCIDR(addrPart)
	if err != nil {
		return ipEntry{}, err
	}

	var ports map[int][]uint16
	for _, seg := range segs[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		colon := strings.IndexByte(seg, ':')
		if colon < 0 {
			return ipEntry{}, fmt.Errorf("malformed bl_id:port group %q", seg)
		}
		blID, err := strconv.Atoi(seg[:colon])
		if err != nil {
			return ipEntry{}, fmt.Errorf("bad bl_id %q: %w", seg[:colon], err)
		}
		var list []uint16
		for _, p := range strings.Split(seg[colon+1:], ",") {
			pv, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
			if err != nil {
				return ipEntry{}, fmt.Errorf("bad port %q: %w", p, err)
			}
			list = append(list, uint16(pv))
		}
		if ports == nil {
			ports = make(map[int][]uint16)
		}
		ports[blID] = list
	}

	return ipEntry{network: network, prefixLen: prefixLen, bitmap: uint32(bitmap64), ports: ports}, nil
}

func parseCIDR(s string) (flowrec.Addr, int, error) {
	slash := strings.IndexByte(s, '/')
	addrStr := s
	prefix := -1
	if slash >= 0 {
		addrStr = s[:slash]
		p, err := strconv.Atoi(s[slash+1:])
		if err != nil {
			return flowrec.Addr{}, 0, fmt.Errorf("bad prefix length %q: %w", s[slash+1:], err)
		}
		prefix = p
	}

	if strings.Contains(addrStr, ":") {
		ip := net.ParseIP(addrStr)
		if ip == nil {
			return flowrec.Addr{}, 0, fmt.Errorf("bad IPv6 address %q", addrStr)
		}
		if prefix < 0 {
			prefix = 128
		}
		return flowrec.AddrFromNetIP(ip).MaskV6(prefix), prefix, nil
	}

	var a, b, c, d int
	n, err := fmt.Sscanf(addrStr, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		return flowrec.Addr{}, 0, fmt.Errorf("bad IPv4 address %q", addrStr)
	}
	if prefix < 0 {
		prefix = 32
	}
	addr := flowrec.AddrFromV4(byte(a), byte(b), byte(c), byte(d))
	return addr.MaskV4(prefix), prefix, nil
}

// LoadIPFile loads and sorts an IPv4/IPv6 blacklist file. Malformed lines are
// logged and skipped; the file is expected pre-sorted by address but the
// loader sorts again defensively since a hand-edited file may not be.
func LoadIPFile(path string, log zerolog.Logger) (*IPTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := &IPTable{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := parseIPLine(line)
		if err != nil {
			log.Warn().Err(err).Int("line", lineNo).Str("file", path).Msg("skipping malformed blacklist line")
			continue
		}
		if e.network.IsV4() {
			t.v4 = append(t.v4, e)
		} else {
			t.v6 = append(t.v6, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sortEntries(t.v4)
	sortEntries(t.v6)
	return t, nil
}

func sortEntries(es []ipEntry) {
	sort.Slice(es, func(i, j int) bool {
		if c := es[i].network.Compare(es[j].network); c != 0 {
			return c < 0
		}
		return es[i].prefixLen < es[j].prefixLen
	})
}

// Lookup performs longest-prefix match over the appropriate vector, then
// applies port refinement: per-bl_id port restrictions narrow the returned
// bitmap to ids whose configured port list contains port (an id with no
// configured port list always matches).
func (t *IPTable) Lookup(addr flowrec.Addr, port uint16) uint32 {
	if t == nil {
		return 0
	}
	es := t.v6
	mask := func(a flowrec.Addr, n int) flowrec.Addr { return a.MaskV6(n) }
	if addr.IsV4() {
		es = t.v4
		mask = func(a flowrec.Addr, n int) flowrec.Addr { return a.MaskV4(n) }
	}
	if len(es) == 0 {
		return 0
	}

	idx := sort.Search(len(es), func(i int) bool { return es[i].network.Compare(addr) > 0 })

	var bestBitmap uint32
	bestPrefix := -1
	var bestPorts map[int][]uint16
	for i := idx - 1; i >= 0; i-- {
		e := es[i]
		if mask(addr, e.prefixLen).Compare(e.network) == 0 {
			if e.prefixLen > bestPrefix {
				bestPrefix = e.prefixLen
				bestBitmap = e.bitmap
				bestPorts = e.ports
			}
		}
	}
	if bestPrefix < 0 {
		return 0
	}
	return refineByPort(bestBitmap, bestPorts, port)
}

func refineByPort(bitmap uint32, ports map[int][]uint16, port uint16) uint32 {
	if len(ports) == 0 {
		return bitmap
	}
	var out uint32
	for id := 1; id <= 32; id++ {
		bit := bitForID(id)
		if bitmap&bit == 0 {
			continue
		}
		list, restricted := ports[id]
		if !restricted {
			out |= bit
			continue
		}
		for _, p := range list {
			if p == port {
				out |= bit
				break
			}
		}
	}
	return out
}
