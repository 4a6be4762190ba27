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
	"github.com/rs/zerolog"

	"hoststats/internal/config"
	"hoststats/pkg/bloom"
	"hoststats/pkg/flowrec"
)

// Engine owns every piece of mutable state the detector needs: the bounded
// host table, the three bloom pairs backing unique-peer estimation, the
// rolling DDoS accumulator, the portscan-h detector, and the configuration
// and sink it was built with. Per spec.md §9's Design Notes, this replaces
// the teacher's pattern of free-floating mutexes and package-level state
// with one explicit value threads receive a shared reference to.
type Engine struct {
	cfg config.Config
	log zerolog.Logger

	Table *Table

	bloomAll *bloom.Pair
	bloomReq *bloom.Pair
	bloomRsp *bloom.Pair

	ddos      *DDoSTracker
	h7        *H7Tracker
	blacklist BlacklistLookup
	emit      func(Event)
	metrics   Metrics

	lastKicks     int64
	lastEvictions int64
}

// Metrics is the narrow set of observability hooks the engine calls into;
// internal/metrics provides the Prometheus-backed implementation, tests use
// a no-op one.
type Metrics interface {
	TableEntries(n int)
	TableKick()
	TableEviction()
	BloomSwap()
}

type noopMetrics struct{}

func (noopMetrics) TableEntries(int) {}
func (noopMetrics) TableKick()       {}
func (noopMetrics) TableEviction()   {}
func (noopMetrics) BloomSwap()       {}

// New builds an Engine from a validated configuration. emit is called for
// every Event the rule engine produces; it must not block.
func New(cfg config.Config, log zerolog.Logger, emit func(Event)) *Engine {
	warn := func(rounded int) {
		log.Warn().Int("requested", cfg.TableSize).Int("rounded_to", rounded).Msg("table-size rounded up to a power of two")
	}
	tbl := NewTable(cfg.TableSize, warn)

	bloomN := tbl.Capacity() * 2
	e := &Engine{
		cfg:      cfg,
		log:      log.With().Str("component", "engine").Logger(),
		Table:    tbl,
		bloomAll: bloom.NewPair(bloomN, 0.01),
		bloomReq: bloom.NewPair(bloomN, 0.01),
		bloomRsp: bloom.NewPair(bloomN, 0.01),
		ddos:     NewDDoSTracker(cfg),
		h7:       NewH7Tracker(cfg),
		emit:     emit,
		metrics:  noopMetrics{},
	}
	e.ddos.SetEventSink(e.emitEvent)
	e.h7.SetEventSink(e.emitEvent)
	return e
}

// SetMetrics installs a Metrics sink; called once at startup by cmd/hoststats.
func (e *Engine) SetMetrics(m Metrics) {
	if m != nil {
		e.metrics = m
	}
}

// SwapBloomPairs rotates all three bloom pairs; invoked by the ingest
// scheduler every active_timeout/2 units of flow time (spec.md §4.C3, §4.C6).
func (e *Engine) SwapBloomPairs() {
	e.bloomAll.Swap()
	e.bloomReq.Swap()
	e.bloomRsp.Swap()
	e.metrics.BloomSwap()
}

// Ingest applies one FlowRecord: validates it, updates the source and
// destination host records, feeds the DDoS and horizontal-scan trackers, and
// returns false if the record was rejected (invalid or a fragment artifact)
// so the caller can count/log it.
func (e *Engine) Ingest(r flowrec.FlowRecord) bool {
	if !r.Valid() {
		e.log.Warn().Msg("dropping flow record: time_last < time_first")
		return false
	}
	if r.IsFragmentArtifact() {
		return false
	}

	dir := effectiveDirection(r, e.cfg.PortFlowDir)

	srcKey := r.SourceKey()
	dstKey := r.DestKey()

	srcHandle, srcKicked := e.Table.GetOrInsert(srcKey)
	if srcKicked != nil {
		e.onEvicted(srcKicked)
	}
	srcHandle.Record.touch(r)
	applySide(srcHandle.Record, e.bloomAll, e.bloomReq, e.bloomRsp, srcHandle.Record.FirstSeen, r.SrcIP, r.DstIP, false, dir, true, r)
	if e.cfg.RulesSSH {
		applySubProfile(srcHandle.Record, "ssh", true, dir, r)
	}
	if e.cfg.RulesDNS {
		applySubProfile(srcHandle.Record, "dns", true, dir, r)
	}
	srcHandle.Unlock()

	dstHandle, dstKicked := e.Table.GetOrInsert(dstKey)
	if dstKicked != nil {
		e.onEvicted(dstKicked)
	}
	dstHandle.Record.touch(r)
	applySide(dstHandle.Record, e.bloomAll, e.bloomReq, e.bloomRsp, dstHandle.Record.FirstSeen, r.SrcIP, r.DstIP, true, invertDirection(dir), false, r)
	if e.cfg.RulesSSH {
		applySubProfile(dstHandle.Record, "ssh", false, invertDirection(dir), r)
	}
	if e.cfg.RulesDNS {
		applySubProfile(dstHandle.Record, "dns", false, invertDirection(dir), r)
	}
	dstHandle.Unlock()

	e.ddos.Observe(dstKey.Addr, r)
	e.h7.Observe(srcKey.Addr, r)
	for _, ev := range e.checkBlacklist(r) {
		e.emitEvent(ev)
	}
	e.reportTableMetrics()

	return true
}

// reportTableMetrics syncs the table's entry count and running kick counter
// to the metrics sink; the eviction counter is only recorded here, since
// onEvicted already reports each eviction. Called only from the single ingest goroutine, so the plain
// (non-atomic) last* fields are safe.
func (e *Engine) reportTableMetrics() {
	e.metrics.TableEntries(e.Table.Len())
	if kicks := e.Table.KicksTotal(); kicks > e.lastKicks {
		for i := e.lastKicks; i < kicks; i++ {
			e.metrics.TableKick()
		}
		e.lastKicks = kicks
	}
	if evictions := e.Table.EvictionsTotal(); evictions > e.lastEvictions {
		e.lastEvictions = evictions
	}
}

// invertDirection maps the flow's direction onto the destination's point of
// view: a request arriving at dst is, from dst's perspective, still an
// inbound request (the counters differentiate in/out, not the tag itself),
// so the tag is preserved — this helper exists for the one case where a
// derived (not upstream-tagged) direction needs symmetry review at the call
// site. It is currently the identity map; kept distinct from dir so a future
// asymmetric rule (e.g. SF handling) has a single seam to change.
func invertDirection(d flowrec.Direction) flowrec.Direction { return d }

// onEvicted runs the rule engine once on a record displaced from the table
// by a kick-out, per spec.md's Design Notes ("the caller cannot forget to
// run detection on the displaced entry").
func (e *Engine) onEvicted(k *Kicked) {
	e.metrics.TableEviction()
	for _, ev := range EvaluateGenericRules(k.Key, k.Record, e.cfg) {
		e.emitEvent(ev)
	}
}

func (e *Engine) emitEvent(ev Event) {
	if e.emit != nil {
		e.emit(ev)
	}
}
