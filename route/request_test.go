package route

import (
	"net/http/httptest"
	"testing"
)

func newTestRequestForLatch() *Request {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	return NewRequest(w, r, "a.example.com", "10.0.0.1")
}

func TestEndIsIdempotent(t *testing.T) {
	pr := newTestRequestForLatch()
	if !pr.End() {
		t.Fatal("first End() = false, want true")
	}
	if pr.End() {
		t.Fatal("second End() = true, want false")
	}
	if !pr.Ended() {
		t.Error("Ended() = false after End(), want true")
	}
}

func TestPromoteFailsAfterAbandon(t *testing.T) {
	pr := newTestRequestForLatch()
	if !pr.Abandon() {
		t.Fatal("Abandon() = false on first call, want true")
	}
	if pr.Promote() {
		t.Error("Promote() = true after Abandon() won the race, want false")
	}
	select {
	case <-pr.Proceed():
		t.Error("Proceed() channel closed despite losing the race to Abandon")
	default:
	}
}

func TestAbandonFailsAfterPromote(t *testing.T) {
	pr := newTestRequestForLatch()
	if !pr.Promote() {
		t.Fatal("Promote() = false on first call, want true")
	}
	if pr.Abandon() {
		t.Error("Abandon() = true after Promote() won the race, want false")
	}
	select {
	case <-pr.Proceed():
	default:
		t.Error("Proceed() channel not closed after Promote()")
	}
}
