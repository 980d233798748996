/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package delivery

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	metricsWindow = 5 * time.Minute
	topErrorTypes = 5
)

type latencySample struct {
	at      time.Time
	latency time.Duration
}

type errorSample struct {
	at   time.Time
	kind string
}

// Metrics aggregates delivery outcomes. Counters are lifetime totals; latency
// percentiles and the error histogram cover the trailing five minutes.
type Metrics struct {
	now func() time.Time

	total    atomic.Int64
	success  atomic.Int64
	failure  atomic.Int64
	timeouts atomic.Int64
	retries  atomic.Int64

	mu        sync.Mutex
	latencies []latencySample
	errors    []errorSample
}

func NewMetrics(now func() time.Time) *Metrics {
	if now == nil {
		now = time.Now
	}
	return &Metrics{now: now}
}

func (m *Metrics) recordSend(ok bool) {
	m.total.Add(1)
	if ok {
		m.success.Add(1)
	} else {
		m.failure.Add(1)
	}
}

func (m *Metrics) recordRetry() {
	m.retries.Add(1)
}

func (m *Metrics) recordLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.prune(now)
	m.latencies = append(m.latencies, latencySample{at: now, latency: d})
}

func (m *Metrics) recordError(kind string) {
	if kind == errKindTimeout {
		m.timeouts.Add(1)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.prune(now)
	m.errors = append(m.errors, errorSample{at: now, kind: kind})
}

func (m *Metrics) prune(now time.Time) {
	cutoff := now.Add(-metricsWindow)
	i := 0
	for i < len(m.latencies) && m.latencies[i].at.Before(cutoff) {
		i++
	}
	m.latencies = m.latencies[i:]

	j := 0
	for j < len(m.errors) && m.errors[j].at.Before(cutoff) {
		j++
	}
	m.errors = m.errors[j:]
}

type LatencySnapshot struct {
	Samples int     `json:"samples"`
	P50     float64 `json:"p50_ms"`
	P95     float64 `json:"p95_ms"`
	P99     float64 `json:"p99_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
}

type ErrorCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type MetricsSnapshot struct {
	Total     int64           `json:"total"`
	Success   int64           `json:"success"`
	Failure   int64           `json:"failure"`
	Timeouts  int64           `json:"timeouts"`
	Retries   int64           `json:"retries"`
	Latency   LatencySnapshot `json:"latency"`
	Circuit   BreakerStats    `json:"circuit"`
	TopErrors []ErrorCount    `json:"top_errors"`
}

func (m *Metrics) Snapshot(circuit BreakerStats) MetricsSnapshot {
	m.mu.Lock()
	m.prune(m.now())
	latencies := make([]time.Duration, len(m.latencies))
	for i, s := range m.latencies {
		latencies[i] = s.latency
	}
	counts := make(map[string]int)
	for _, e := range m.errors {
		counts[e.kind]++
	}
	m.mu.Unlock()

	return MetricsSnapshot{
		Total:     m.total.Load(),
		Success:   m.success.Load(),
		Failure:   m.failure.Load(),
		Timeouts:  m.timeouts.Load(),
		Retries:   m.retries.Load(),
		Latency:   summarize(latencies),
		Circuit:   circuit,
		TopErrors: topErrors(counts, topErrorTypes),
	}
}

func summarize(latencies []time.Duration) LatencySnapshot {
	if len(latencies) == 0 {
		return LatencySnapshot{}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	return LatencySnapshot{
		Samples: len(latencies),
		P50:     millis(percentile(latencies, 0.50)),
		P95:     millis(percentile(latencies, 0.95)),
		P99:     millis(percentile(latencies, 0.99)),
		Min:     millis(latencies[0]),
		Max:     millis(latencies[len(latencies)-1]),
	}
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func topErrors(counts map[string]int, n int) []ErrorCount {
	out := make([]ErrorCount, 0, len(counts))
	for kind, c := range counts {
		out = append(out, ErrorCount{Type: kind, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
