// Package backend models a single upstream target behind a route and the
// quarantine bookkeeping the owning Route drives against it.
package backend

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// QuarantineThreshold is the consecutive-failure count at which a backend
// is taken out of rotation (spec §4.2).
const QuarantineThreshold = 3

// Backend is an upstream target for one Route. Identity fields are set at
// construction and never change; the mutable health fields are owned by the
// Route holding this backend — callers must not mutate them concurrently
// from outside the Route's lock, but Backend itself serializes access to
// the health fields so a stray read never races.
type Backend struct {
	ID     string
	Host   string
	Port   int
	Weight int // reserved, unused in v1 (see spec §1)

	mu           sync.Mutex
	isDead       bool
	failureCount int
	deadSince    time.Time

	httpClient *http.Client
}

// New creates a Backend for the given id/host/port. weight is carried but
// not consulted by any LoadBalancer strategy yet.
func New(id, host string, port, weight int) *Backend {
	return &Backend{
		ID:     id,
		Host:   host,
		Port:   port,
		Weight: weight,
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// BaseURL returns the http://host:port URL this backend is forwarded to.
func (b *Backend) BaseURL() string {
	return "http://" + b.Host + ":" + strconv.Itoa(b.Port)
}

// IsDead reports whether this backend is currently quarantined.
func (b *Backend) IsDead() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isDead
}

// FailureCount returns the current consecutive-failure count.
func (b *Backend) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// DeadSince returns the time the backend was quarantined, or the zero Time
// if it is not dead.
func (b *Backend) DeadSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deadSince
}

// MarkFailure increments the failure count and quarantines the backend once
// the count reaches QuarantineThreshold. Idempotent after quarantine: later
// calls keep incrementing the counter but never re-stamp deadSince.
func (b *Backend) MarkFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	if b.failureCount >= QuarantineThreshold && !b.isDead {
		b.isDead = true
		b.deadSince = now
	}
}

// Restore clears quarantine state. Called only by the Route's recheck loop
// after a successful probe.
func (b *Backend) Restore() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isDead = false
	b.failureCount = 0
	b.deadSince = time.Time{}
}

// Probe issues the single periodic GET the quarantine recheck loop uses to
// decide whether a dead backend has recovered. Any HTTP status below 500
// counts as healthy; timeouts and connection errors leave the backend dead.
func (b *Backend) Probe(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL()+"/", nil)
	if err != nil {
		return errors.Wrap(err, "build probe request")
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "probe backend")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errors.Errorf("probe returned HTTP %d", resp.StatusCode)
	}
	return nil
}
