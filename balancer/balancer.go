// Package balancer implements backend selection for a single Route.
//
// The teacher's Balancer hard-coded round-robin; this replaces it with a
// tagged variant over the strategies spec §4.1 names, switching on the tag
// inside a single Pick rather than reaching for an interface-per-strategy
// hierarchy.
package balancer

import (
	"math/rand/v2"

	"hostgate/backend"
)

// Strategy selects which algorithm Pick uses.
type Strategy int

const (
	RoundRobin Strategy = iota
	Random
	IPHash
	// LeastLatency is reserved and falls back to RoundRobin in v1 (spec §4.1).
	LeastLatency
)

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "ROUND_ROBIN"
	case Random:
		return "RANDOM"
	case IPHash:
		return "IP_HASH"
	case LeastLatency:
		return "LEAST_LATENCY"
	default:
		return "UNKNOWN"
	}
}

// ParseStrategy maps a RouteConfig strategy string onto a Strategy tag.
func ParseStrategy(s string) Strategy {
	switch s {
	case "ROUND_ROBIN", "round_robin":
		return RoundRobin
	case "RANDOM", "random":
		return Random
	case "IP_HASH", "ip_hash":
		return IPHash
	case "LEAST_LATENCY", "least_latency":
		return LeastLatency
	default:
		return RoundRobin
	}
}

// LoadBalancer picks one live backend per request for a fixed strategy.
// It holds no lock of its own — callers (Route) serialize access to
// Pick/UpdateBackends under their own lock, per spec §5.
type LoadBalancer struct {
	strategy Strategy
	backends []*backend.Backend
	counter  uint64 // ROUND_ROBIN cursor; persists across UpdateBackends (spec §4.1, §9)
	rng      randSource
}

// randSource is the PRNG hook, overridable from tests for determinism.
type randSource func() uint64

// New creates a LoadBalancer for the given strategy.
func New(strategy Strategy) *LoadBalancer {
	return &LoadBalancer{
		strategy: strategy,
		rng:      rand.Uint64,
	}
}

// UpdateBackends atomically swaps the backend slice observed by future
// picks. Must be called under the owning Route's lock.
func (lb *LoadBalancer) UpdateBackends(backends []*backend.Backend) {
	lb.backends = backends
}

// Pick selects one live backend, or reports ErrNoBackends if every backend
// is dead. clientIP is consulted only by IP_HASH; pass "" when unknown (it
// hashes as "0.0.0.0" per spec §4.1).
func (lb *LoadBalancer) Pick(clientIP string) (*backend.Backend, error) {
	alive := make([]*backend.Backend, 0, len(lb.backends))
	for _, b := range lb.backends {
		if !b.IsDead() {
			alive = append(alive, b)
		}
	}
	if len(alive) == 0 {
		return nil, ErrNoBackends
	}

	switch lb.strategy {
	case Random:
		return alive[lb.rng()%uint64(len(alive))], nil
	case IPHash:
		return alive[ipHash(clientIP)%uint64(len(alive))], nil
	case RoundRobin, LeastLatency:
		fallthrough
	default:
		idx := lb.counter
		lb.counter++
		return alive[idx%uint64(len(alive))], nil
	}
}

// ipHash implements the 32-bit multiplicative mix spec §4.1 specifies:
// h <- ((h<<5)-h) + c, folded to 32 bits per character. A null/empty
// clientIP hashes as "0.0.0.0".
func ipHash(clientIP string) uint64 {
	if clientIP == "" {
		clientIP = "0.0.0.0"
	}
	var h int32
	for _, c := range clientIP {
		h = (h << 5) - h + int32(c)
	}
	if h < 0 {
		h = -h
	}
	return uint64(h)
}

// ErrNoBackends is returned by Pick when every backend is dead.
var ErrNoBackends = errNoBackends{}

type errNoBackends struct{}

func (errNoBackends) Error() string { return "no healthy backends available" }
