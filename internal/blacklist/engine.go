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
	"sync/atomic"

	"github.com/rs/zerolog"

	"hoststats/pkg/flowrec"
)

// Paths configures which blacklist files to load; empty strings disable
// that lookup entirely.
type Paths struct {
	IPv4 string
	IPv6 string
	URL  string
	DNS  string
}

// snapshot is one immutable generation of the whole blacklist: the IPv4/IPv6
// prefix vectors plus the DNS/URL label trees, published atomically so
// concurrent lookups never observe a partially rebuilt table.
type snapshot struct {
	ip  *IPTable
	dns *DNSBlacklist
	url *URLBlacklist
}

// Engine owns the current blacklist snapshot and the paths it reloads from.
// Readers call LookupIP/LookupDNS/LookupURL against a cheaply loaded atomic
// pointer; Reload builds a brand new snapshot and swaps it in, never
// blocking a concurrent reader (spec.md §5's "lazy lock" pattern).
type Engine struct {
	paths   Paths
	log     zerolog.Logger
	current atomic.Pointer[snapshot]
}

// New builds an Engine and loads its initial snapshot. A path left empty
// yields an always-empty lookup for that kind rather than an error.
func New(log zerolog.Logger, paths Paths) (*Engine, error) {
	e := &Engine{paths: paths, log: log.With().Str("component", "blacklist").Logger()}
	snap, err := e.build()
	if err != nil {
		return nil, err
	}
	e.current.Store(snap)
	return e, nil
}

func (e *Engine) build() (*snapshot, error) {
	snap := &snapshot{ip: &IPTable{}, dns: NewDNSBlacklist(), url: NewURLBlacklist()}

	if e.paths.IPv4 != "" {
		t4, err := LoadIPFile(e.paths.IPv4, e.log)
		if err != nil {
			return nil, err
		}
		snap.ip.v4 = t4.v4
	}
	if e.paths.IPv6 != "" {
		t6, err := LoadIPFile(e.paths.IPv6, e.log)
		if err != nil {
			return nil, err
		}
		snap.ip.v6 = t6.v6
	}
	if e.paths.DNS != "" {
		d, err := LoadDNSFile(e.paths.DNS, e.log)
		if err != nil {
			return nil, err
		}
		snap.dns = d
	}
	if e.paths.URL != "" {
		u, err := LoadURLFile(e.paths.URL, e.log)
		if err != nil {
			return nil, err
		}
		snap.url = u
	}
	return snap, nil
}

// Reload rebuilds every configured blacklist file into a fresh snapshot and
// swaps it in. On any load failure the previous snapshot is kept untouched
// and the error is logged, per spec.md §4.C8's "on rebuild failure, keep the
// old table and log".
func (e *Engine) Reload() {
	snap, err := e.build()
	if err != nil {
		e.log.Error().Err(err).Msg("blacklist reload failed, keeping previous table")
		return
	}
	e.current.Store(snap)
}

// LookupIP returns the blacklist-id bitmap addr (refined by port) belongs to.
func (e *Engine) LookupIP(addr flowrec.Addr, port uint16) uint32 {
	return e.current.Load().ip.Lookup(addr, port)
}

// LookupDNS returns the blacklist-id bitmap fqdn (or any of its ancestors)
// belongs to.
func (e *Engine) LookupDNS(fqdn string) uint32 {
	return e.current.Load().dns.Lookup(fqdn)
}

// LookupURL returns the blacklist-id bitmap hostPath (or any of its
// ancestor paths) belongs to.
func (e *Engine) LookupURL(hostPath string) uint32 {
	return e.current.Load().url.Lookup(hostPath)
}
