package balancer

import (
	"testing"
	"time"

	"hostgate/backend"
)

func makeBackends(ids ...string) []*backend.Backend {
	out := make([]*backend.Backend, len(ids))
	for i, id := range ids {
		out[i] = backend.New(id, "127.0.0.1", 9000+i, 0)
	}
	return out
}

func TestRoundRobinDistributesEvenly(t *testing.T) {
	lb := New(RoundRobin)
	backends := makeBackends("b1", "b2", "b3")
	lb.UpdateBackends(backends)

	seen := map[string]int{}
	const picks = 9
	for i := 0; i < picks; i++ {
		b, err := lb.Pick("")
		if err != nil {
			t.Fatalf("Pick() error: %v", err)
		}
		seen[b.ID]++
	}
	for _, id := range []string{"b1", "b2", "b3"} {
		if seen[id] != picks/3 {
			t.Errorf("backend %s picked %d times, want %d", id, seen[id], picks/3)
		}
	}
}

func TestRoundRobinSkipsDeadBackends(t *testing.T) {
	lb := New(RoundRobin)
	backends := makeBackends("b1", "b2")
	for i := 0; i < backend.QuarantineThreshold; i++ {
		backends[0].MarkFailure(time.Now())
	}
	lb.UpdateBackends(backends)

	for i := 0; i < 4; i++ {
		b, err := lb.Pick("")
		if err != nil {
			t.Fatalf("Pick() error: %v", err)
		}
		if b.ID != "b2" {
			t.Errorf("Pick() = %s, want b2 (b1 is dead)", b.ID)
		}
	}
}

func TestPickNoBackendsReturnsErr(t *testing.T) {
	lb := New(RoundRobin)
	lb.UpdateBackends(nil)
	if _, err := lb.Pick(""); err != ErrNoBackends {
		t.Errorf("Pick() error = %v, want ErrNoBackends", err)
	}
}

func TestPickAllDeadReturnsErr(t *testing.T) {
	lb := New(RoundRobin)
	backends := makeBackends("b1")
	for i := 0; i < backend.QuarantineThreshold; i++ {
		backends[0].MarkFailure(time.Now())
	}
	lb.UpdateBackends(backends)

	if _, err := lb.Pick(""); err != ErrNoBackends {
		t.Errorf("Pick() error = %v, want ErrNoBackends", err)
	}
}

func TestIPHashDeterministic(t *testing.T) {
	lb := New(IPHash)
	backends := makeBackends("b1", "b2", "b3", "b4")
	lb.UpdateBackends(backends)

	first, err := lb.Pick("203.0.113.7")
	if err != nil {
		t.Fatalf("Pick() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := lb.Pick("203.0.113.7")
		if err != nil {
			t.Fatalf("Pick() error: %v", err)
		}
		if again.ID != first.ID {
			t.Errorf("IP_HASH not deterministic: got %s, want %s", again.ID, first.ID)
		}
	}
}

func TestIPHashEmptyClientIPHashesAsZeroAddr(t *testing.T) {
	lb := New(IPHash)
	backends := makeBackends("b1", "b2", "b3")
	lb.UpdateBackends(backends)

	a, err := lb.Pick("")
	if err != nil {
		t.Fatalf("Pick() error: %v", err)
	}
	b, err := lb.Pick("0.0.0.0")
	if err != nil {
		t.Fatalf("Pick() error: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("empty clientIP picked %s, \"0.0.0.0\" picked %s; want equal", a.ID, b.ID)
	}
}

func TestRandomOnlyReturnsAliveBackends(t *testing.T) {
	lb := New(Random)
	backends := makeBackends("b1", "b2")
	for i := 0; i < backend.QuarantineThreshold; i++ {
		backends[1].MarkFailure(time.Now())
	}
	lb.UpdateBackends(backends)

	for i := 0; i < 10; i++ {
		b, err := lb.Pick("")
		if err != nil {
			t.Fatalf("Pick() error: %v", err)
		}
		if b.ID != "b1" {
			t.Errorf("Pick() = %s, want b1 (b2 is dead)", b.ID)
		}
	}
}

func TestLeastLatencyFallsBackToRoundRobin(t *testing.T) {
	lb := New(LeastLatency)
	backends := makeBackends("b1", "b2")
	lb.UpdateBackends(backends)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		b, err := lb.Pick("")
		if err != nil {
			t.Fatalf("Pick() error: %v", err)
		}
		seen[b.ID] = true
	}
	if !seen["b1"] || !seen["b2"] {
		t.Errorf("LEAST_LATENCY did not round-robin across both backends: %v", seen)
	}
}
