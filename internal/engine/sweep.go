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
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"hoststats/pkg/flowrec"
)

// Scheduler runs the engine in online mode. A single goroutine selects over
// the flow-record channel and a one-second ticker: it ingests each record as
// it arrives and, on a tick, walks the host table once per det-start-time
// interval. There is no separate sweep goroutine, so ingest and sweep never
// run at the same time.
type Scheduler struct {
	eng *Engine
	log zerolog.Logger

	in     chan flowrec.FlowRecord
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	sweeping atomic.Bool

	recvTimeout   time.Duration
	flowTimeClock uint32 // time_last of most recent flow (flow-time clock)
}

// NewScheduler builds an online scheduler around eng. bufferSize bounds the
// ingest channel.
func NewScheduler(eng *Engine, log zerolog.Logger, bufferSize int) *Scheduler {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &Scheduler{
		eng:         eng,
		log:         log.With().Str("component", "scheduler").Logger(),
		in:          make(chan flowrec.FlowRecord, bufferSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		recvTimeout: time.Second,
	}
}

// Submit enqueues a flow record for ingest. Blocks if the buffer is full —
// backpressure is intentional; the ingest thread is the only consumer.
func (s *Scheduler) Submit(r flowrec.FlowRecord) {
	s.in <- r
}

// Start launches the goroutine that runs both ingest and sweep.
func (s *Scheduler) Start() {
	s.once.Do(func() {
		go s.runIngest()
	})
}

// Stop signals shutdown: the goroutine runs one last unconditional sweep
// over every remaining entry and exits. Records still buffered in the
// channel at that point are not ingested.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) runIngest() {
	defer close(s.doneCh)

	bloomSwapEvery := s.eng.cfg.TimeoutActive / 2
	if bloomSwapEvery < 1 {
		bloomSwapEvery = 1
	}
	sweepEvery := time.Duration(s.eng.cfg.DetStartTime) * time.Second
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastBloomSwapFlowTime := uint32(0)
	lastSweepAt := time.Now()
	lastFlowAt := time.Now()
	lastBloomSwapWall := time.Now()

	for {
		select {
		case r := <-s.in:
			s.eng.Ingest(r)
			lastFlowAt = time.Now()
			if r.TimeLastSec > s.flowTimeClock {
				s.flowTimeClock = r.TimeLastSec
			}
			if s.flowTimeClock-lastBloomSwapFlowTime >= uint32(bloomSwapEvery) {
				s.eng.SwapBloomPairs()
				lastBloomSwapFlowTime = s.flowTimeClock
				lastBloomSwapWall = time.Now()
			}
		case now := <-ticker.C:
			if now.Sub(lastSweepAt) >= sweepEvery {
				lastSweepAt = now
				s.runSweep(false)
			}
			// No flow has arrived for a full receive timeout: the bloom-swap
			// schedule, which normally advances on flow time, falls back to
			// wall time so a quiet link still rotates the filters.
			if now.Sub(lastFlowAt) >= s.recvTimeout && now.Sub(lastBloomSwapWall) >= time.Duration(bloomSwapEvery)*time.Second {
				s.eng.SwapBloomPairs()
				lastBloomSwapWall = now
			}
		case <-s.stopCh:
			s.runSweep(true)
			return
		}
	}
}

// runSweep walks the host table once. final=true runs an unconditional pass
// (shutdown); otherwise only entries past their active/inactive timeout are
// processed, per spec.md §4.C6.
func (s *Scheduler) runSweep(final bool) {
	if !s.sweeping.CompareAndSwap(false, true) {
		// A previous sweep is still running; spec.md's concurrency contract
		// forbids overlapping sweeps.
		return
	}
	defer s.sweeping.Store(false)

	start := time.Now()
	now := s.flowTimeClock
	activeTimeout := uint32(s.eng.cfg.TimeoutActive)
	inactiveTimeout := uint32(s.eng.cfg.TimeoutInactive)

	s.eng.Table.IterSweep(func(key flowrec.HostKey, rec *HostRecord) bool {
		mature := final ||
			rec.FirstSeen+activeTimeout <= now ||
			rec.LastSeen+inactiveTimeout <= now
		if !mature {
			return false
		}
		for _, ev := range EvaluateGenericRules(key, rec, s.eng.cfg) {
			s.eng.emitEvent(ev)
		}
		return true
	})
	s.eng.h7.Prune(now)

	s.log.Debug().Dur("duration", time.Since(start)).Bool("final", final).Msg("sweep complete")
}

// RunOffline drives a single thread through a replay source, alternating
// ingest and sweep purely on flow timestamps rather than wall time, per
// spec.md §4.C6's offline mode. next returns io.EOF (or any error) when the
// source is exhausted.
func RunOffline(eng *Engine, log zerolog.Logger, next func() (flowrec.FlowRecord, error)) error {
	l := log.With().Str("component", "offline-replay").Logger()
	bloomSwapEvery := eng.cfg.TimeoutActive / 2
	if bloomSwapEvery < 1 {
		bloomSwapEvery = 1
	}
	sweepEvery := uint32(eng.cfg.DetStartTime)

	var clock uint32
	var lastBloomSwap uint32
	var lastSweepBoundary uint32

	for {
		r, err := next()
		if err != nil {
			break
		}
		eng.Ingest(r)
		if r.TimeLastSec > clock {
			clock = r.TimeLastSec
		}
		if clock-lastBloomSwap >= uint32(bloomSwapEvery) {
			eng.SwapBloomPairs()
			lastBloomSwap = clock
		}
		if clock-lastSweepBoundary >= sweepEvery {
			lastSweepBoundary = clock
			sweepOffline(eng, clock, false)
		}
	}
	sweepOffline(eng, clock, true)
	l.Info().Uint32("final_clock", clock).Msg("offline replay complete")
	return nil
}

func sweepOffline(eng *Engine, now uint32, final bool) {
	activeTimeout := uint32(eng.cfg.TimeoutActive)
	inactiveTimeout := uint32(eng.cfg.TimeoutInactive)
	eng.Table.IterSweep(func(key flowrec.HostKey, rec *HostRecord) bool {
		mature := final ||
			rec.FirstSeen+activeTimeout <= now ||
			rec.LastSeen+inactiveTimeout <= now
		if !mature {
			return false
		}
		for _, ev := range EvaluateGenericRules(key, rec, eng.cfg) {
			eng.emitEvent(ev)
		}
		return true
	})
	eng.h7.Prune(now)
}
