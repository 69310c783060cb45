/*
Copyright 2024 Locaweb.

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

// Package metrics counts the cmk invocations a single reconciler run
// makes, split into reads (list/get, never mutating) and writes
// (create/delete/deploy/scale/...). Property P1 (idempotence) is
// checked mechanically against Stats.Writes rather than by inspection:
// a second Provision against an unchanged spec must report zero writes.
package metrics

import (
	"os"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Stats accumulates call counters for a single reconciler run and
// mirrors them into a private Prometheus registry so a caller can dump
// them to a file for an external cron/CI collector, without running a
// metrics server.
type Stats struct {
	reads    atomic.Int64
	writes   atomic.Int64
	retries  atomic.Int64
	failures atomic.Int64

	registry *prometheus.Registry
	readsC   prometheus.Counter
	writesC  prometheus.Counter
	retriesC prometheus.Counter
	failureC prometheus.Counter
}

// New returns a zeroed Stats ready to record a single run.
func New() *Stats {
	s := &Stats{registry: prometheus.NewRegistry()}

	s.readsC = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "infractl_cmk_reads_total",
		Help: "Number of read-only cmk invocations (list/get) made by this run.",
	})
	s.writesC = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "infractl_cmk_writes_total",
		Help: "Number of mutating cmk invocations made by this run.",
	})
	s.retriesC = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "infractl_cmk_retries_total",
		Help: "Number of retried cmk invocation attempts made by this run.",
	})
	s.failureC = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "infractl_cmk_failures_total",
		Help: "Number of cmk invocations that exhausted all retries.",
	})

	s.registry.MustRegister(s.readsC, s.writesC, s.retriesC, s.failureC)

	return s
}

// RecordRead notes a read-only cmk invocation.
func (s *Stats) RecordRead() {
	s.reads.Add(1)
	s.readsC.Inc()
}

// RecordWrite notes a mutating cmk invocation.
func (s *Stats) RecordWrite() {
	s.writes.Add(1)
	s.writesC.Inc()
}

// RecordRetry notes a retried attempt of some invocation.
func (s *Stats) RecordRetry() {
	s.retries.Add(1)
	s.retriesC.Inc()
}

// RecordFailure notes an invocation that exhausted all retries.
func (s *Stats) RecordFailure() {
	s.failures.Add(1)
	s.failureC.Inc()
}

// Reads returns the number of read-only invocations recorded so far.
func (s *Stats) Reads() int64 { return s.reads.Load() }

// Writes returns the number of mutating invocations recorded so far.
func (s *Stats) Writes() int64 { return s.writes.Load() }

// Retries returns the number of retried attempts recorded so far.
func (s *Stats) Retries() int64 { return s.retries.Load() }

// Failures returns the number of invocations that exhausted all retries.
func (s *Stats) Failures() int64 { return s.failures.Load() }

// DumpFile writes the current counters, in Prometheus text exposition
// format, to path. Intended for a cron-driven caller that wants run
// statistics without standing up an HTTP metrics endpoint.
func (s *Stats) DumpFile(path string) error {
	families, err := s.registry.Gather()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))

	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return err
		}
	}

	return nil
}
