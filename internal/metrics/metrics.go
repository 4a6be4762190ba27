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

// Package metrics registers the Prometheus collectors the engine and its
// ambient components report through, per spec.md's A3 ambient component.
// Nothing in the detection path branches on a metric value — these are
// read-only observability.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics implements engine.Metrics and additionally exposes ObserveSweep,
// EventEmitted and EventDropped. Within this module only EventEmitted is
// called (by the entrypoints' emit callbacks); the sweep-duration and
// dropped-event collectors are registered but nothing reports to them.
type Metrics struct {
	TableEntriesGauge prometheus.Gauge
	TableKicksTotal   prometheus.Counter
	TableEvictions    prometheus.Counter
	SweepDuration     prometheus.Histogram
	EventsEmitted     *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	BloomSwapsTotal   prometheus.Counter
}

// New registers every collector against reg and returns the handle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TableEntriesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoststats_table_entries",
			Help: "Current number of occupied host table slots.",
		}),
		TableKicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hoststats_table_kicks_total",
			Help: "Total cuckoo kicks performed during insert.",
		}),
		TableEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hoststats_table_evictions_total",
			Help: "Total entries evicted outright (kick chain exhausted).",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hoststats_sweep_duration_seconds",
			Help:    "Wall-clock duration of one table sweep pass.",
			Buckets: prometheus.DefBuckets,
		}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hoststats_events_emitted_total",
			Help: "Total events emitted, by type.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hoststats_events_dropped_total",
			Help: "Total events dropped, by sink.",
		}, []string{"sink"}),
		BloomSwapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hoststats_bloom_swaps_total",
			Help: "Total bloom filter pair rotations.",
		}),
	}
	reg.MustRegister(
		m.TableEntriesGauge, m.TableKicksTotal, m.TableEvictions,
		m.SweepDuration, m.EventsEmitted, m.EventsDropped, m.BloomSwapsTotal,
	)
	return m
}

// TableEntries implements engine.Metrics.
func (m *Metrics) TableEntries(n int) { m.TableEntriesGauge.Set(float64(n)) }

// TableKick implements engine.Metrics.
func (m *Metrics) TableKick() { m.TableKicksTotal.Inc() }

// TableEviction implements engine.Metrics.
func (m *Metrics) TableEviction() { m.TableEvictions.Inc() }

// BloomSwap implements engine.Metrics.
func (m *Metrics) BloomSwap() { m.BloomSwapsTotal.Inc() }

// ObserveSweep records one sweep pass's duration in seconds.
func (m *Metrics) ObserveSweep(seconds float64) { m.SweepDuration.Observe(seconds) }

// EventEmitted increments the emitted counter for an event type label.
func (m *Metrics) EventEmitted(eventType string) { m.EventsEmitted.WithLabelValues(eventType).Inc() }

// EventDropped increments the dropped counter for a sink label.
func (m *Metrics) EventDropped(sink string) { m.EventsDropped.WithLabelValues(sink).Inc() }
