// Package health implements the RPC up/down edge-triggered tracker (C2):
// a pure state machine fed by record_success/record_failure that emits at
// most one "down" and one matching "recovered" notification per outage.
package health

import (
	"sync"
	"time"
)

// DownThreshold is the minimum outage duration before an rpc_down
// notification fires, preventing flapping on transient blips.
const DownThreshold = 60 * time.Second

// Event is emitted on a down/recovered edge.
type Event struct {
	URL        string
	DownSince  time.Time
	LastError  string
	RecoveredAt time.Time
	Recovered  bool
}

// Sink receives down/recovered events. Implemented by internal/notify.
type Sink interface {
	RPCDown(url string, downSince time.Time, lastError string)
	RPCRecovered(url string, downSince, recoveredAt time.Time)
}

// Metrics is the subset of internal/metrics.Health this tracker reports to.
type Metrics interface {
	ObserveDown(url string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDown(string) {}

type state struct {
	downSince time.Time
	notified  bool
	lastError string
}

// Tracker tracks the health of one or more upstream URLs. All mutation is
// serialized through an internal mutex; this is a single component's own
// state, not a cross-component lock (spec.md §5/§7).
type Tracker struct {
	mu      sync.Mutex
	now     func() time.Time
	sink    Sink
	metrics Metrics
	state   map[string]*state
}

// New constructs a Tracker. now defaults to time.Now; tests inject a
// controllable clock.
func New(sink Sink) *Tracker {
	return &Tracker{
		now:     time.Now,
		sink:    sink,
		metrics: noopMetrics{},
		state:   make(map[string]*state),
	}
}

// WithClock overrides the time source, for deterministic tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// WithMetrics overrides the metrics sink (default: no-op).
func (t *Tracker) WithMetrics(m Metrics) *Tracker {
	t.metrics = m
	return t
}

// RecordSuccess handles a successful call outcome for url.
func (t *Tracker) RecordSuccess(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, tracking := t.state[url]
	if !tracking {
		return
	}

	if st.notified {
		t.sink.RPCRecovered(url, st.downSince, t.now())
	}
	delete(t.state, url)
}

// RecordFailure handles a failed call outcome for url with the given reason.
func (t *Tracker) RecordFailure(url, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st, tracking := t.state[url]
	if !tracking {
		t.state[url] = &state{downSince: now, notified: false, lastError: reason}
		return
	}

	st.lastError = reason
	if !st.notified && now.Sub(st.downSince) >= DownThreshold {
		st.notified = true
		t.sink.RPCDown(url, st.downSince, st.lastError)
		t.metrics.ObserveDown(url)
	}
}

// Down reports whether url is currently considered down (tracking any
// failure, notified or not).
func (t *Tracker) Down(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, tracking := t.state[url]
	return tracking
}
