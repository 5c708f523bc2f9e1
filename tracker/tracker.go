// Package tracker maintains per-vHost request statistics: counts, an
// exponentially-weighted moving average of latency, and the OpenTelemetry
// instruments that mirror them out to a metrics backend (spec §4.4).
package tracker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ewmaAlpha is the smoothing factor for latency averaging (spec §4.4:
// "EWMA with alpha = 0.1").
const ewmaAlpha = 0.1

// Stats is a point-in-time snapshot of one vHost's counters, safe to
// serialize directly for the control plane's /stats endpoint.
type Stats struct {
	VHost          string  `json:"vHost"`
	TotalRequests  int64   `json:"totalRequests"`
	ActiveRequests int64   `json:"activeRequests"`
	ErrorCount     int64   `json:"errorCount"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
}

type vhostCounters struct {
	mu         sync.Mutex
	total      int64
	active     int64
	errors     int64
	avgLatency float64 // milliseconds, EWMA
	seeded     bool
}

// Tracker aggregates per-vHost counters and republishes them through otel
// instruments. A single Tracker instance is shared across every Route.
type Tracker struct {
	mu       sync.RWMutex
	byVHost  map[string]*vhostCounters
	requests metric.Int64Counter
	inflight metric.Int64UpDownCounter
	errors   metric.Int64Counter
	latency  metric.Float64Histogram
}

// New builds a Tracker instrumented against the given otel Meter. Pass
// noop.NewMeterProvider().Meter("") in tests or when metrics export is
// disabled.
func New(meter metric.Meter) (*Tracker, error) {
	requests, err := meter.Int64Counter("hostgate.requests.total",
		metric.WithDescription("total proxied requests per vhost"))
	if err != nil {
		return nil, err
	}
	inflight, err := meter.Int64UpDownCounter("hostgate.requests.inflight",
		metric.WithDescription("currently active requests per vhost"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("hostgate.requests.errors",
		metric.WithDescription("failed/errored requests per vhost"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("hostgate.requests.latency_ms",
		metric.WithDescription("request latency in milliseconds per vhost"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Tracker{
		byVHost:  make(map[string]*vhostCounters),
		requests: requests,
		inflight: inflight,
		errors:   errs,
		latency:  latency,
	}, nil
}

func (t *Tracker) counters(vHost string) *vhostCounters {
	t.mu.RLock()
	c, ok := t.byVHost[vHost]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.byVHost[vHost]; ok {
		return c
	}
	c = &vhostCounters{}
	t.byVHost[vHost] = c
	return c
}

// OnStart records that a request for vHost has begun.
func (t *Tracker) OnStart(ctx context.Context, vHost string) {
	c := t.counters(vHost)
	c.mu.Lock()
	c.total++
	c.active++
	c.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("vhost", vHost))
	t.requests.Add(ctx, 1, attrs)
	t.inflight.Add(ctx, 1, attrs)
}

// OnEnd records completion of a request for vHost, folding its latency
// into the EWMA and, if failed is true, crediting the error counter
// (spec §4.4).
func (t *Tracker) OnEnd(ctx context.Context, vHost string, latency time.Duration, failed bool) {
	c := t.counters(vHost)
	ms := float64(latency) / float64(time.Millisecond)

	c.mu.Lock()
	if c.active > 0 {
		c.active--
	}
	if !c.seeded {
		c.avgLatency = ms
		c.seeded = true
	} else {
		c.avgLatency = ewmaAlpha*ms + (1-ewmaAlpha)*c.avgLatency
	}
	if failed {
		c.errors++
	}
	c.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("vhost", vHost))
	t.inflight.Add(ctx, -1, attrs)
	t.latency.Record(ctx, ms, attrs)
	if failed {
		t.errors.Add(ctx, 1, attrs)
	}
}

// OnError credits vHost's error counter for a failure that never became an
// active request (for example a shed admission). code is attached as an
// attribute on the otel error counter only; it is not kept in the per-vHost
// Stats.
func (t *Tracker) OnError(ctx context.Context, vHost string, code string) {
	c := t.counters(vHost)
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("vhost", vHost),
		attribute.String("code", code),
	)
	t.errors.Add(ctx, 1, attrs)
}

// Snapshot returns the current stats for one vHost. ok is false if no
// request has ever been tracked for it.
func (t *Tracker) Snapshot(vHost string) (Stats, bool) {
	t.mu.RLock()
	c, ok := t.byVHost[vHost]
	t.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		VHost:          vHost,
		TotalRequests:  c.total,
		ActiveRequests: c.active,
		ErrorCount:     c.errors,
		AvgLatencyMs:   c.avgLatency,
	}, true
}

// SnapshotAll returns stats for every vHost tracked so far.
func (t *Tracker) SnapshotAll() []Stats {
	t.mu.RLock()
	vhosts := make([]string, 0, len(t.byVHost))
	for v := range t.byVHost {
		vhosts = append(vhosts, v)
	}
	t.mu.RUnlock()

	out := make([]Stats, 0, len(vhosts))
	for _, v := range vhosts {
		if s, ok := t.Snapshot(v); ok {
			out = append(out, s)
		}
	}
	return out
}

// Remove drops a vHost's counters, used when the control plane deletes a
// route.
func (t *Tracker) Remove(vHost string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byVHost, vHost)
}
