package route

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request is one in-flight client request (spec §3: ProxyRequest). It
// passes through exactly one terminal transition into ended=true, latched
// so every caller of End agrees on who finalizes it.
type Request struct {
	ID        string
	VHost     string
	ClientIP  string
	StartTime time.Time
	Retries   int // reserved; v1 never retries a request against a second backend (spec §9)
	TargetID  string

	W http.ResponseWriter
	R *http.Request

	mu       sync.Mutex
	ended    bool
	promoted bool
	proceed  chan struct{}
}

// NewRequest builds a fresh Request for an incoming client call.
func NewRequest(w http.ResponseWriter, r *http.Request, vHost, clientIP string) *Request {
	return &Request{
		ID:        uuid.NewString(),
		VHost:     vHost,
		ClientIP:  clientIP,
		StartTime: time.Now(),
		W:         w,
		R:         r,
		proceed:   make(chan struct{}),
	}
}

// Proceed returns the channel a queued request's owning goroutine waits on.
// It is closed exactly once, by Promote, when pumpQueue dequeues this
// request and hands it admission (spec §4.5.5).
func (pr *Request) Proceed() <-chan struct{} {
	return pr.proceed
}

// Promote hands admission to a queued request, waking the goroutine blocked
// in Proceed. It reports false, without closing the channel, if the request
// was already abandoned (Abandon won the race first) — the caller must then
// release the capacity DequeueIfRoom reserved rather than wake a goroutine
// that has already returned.
func (pr *Request) Promote() bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.ended {
		return false
	}
	pr.promoted = true
	close(pr.proceed)
	return true
}

// Abandon marks a still-queued request as ended because its client gave up
// before being promoted. It reports false if Promote already won the race
// and closed proceed first — in that case admission was already granted and
// the caller must forward the request instead of dropping it, since
// pumpQueue has already committed an active slot to it (spec §4.5.5).
func (pr *Request) Abandon() bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.promoted {
		return false
	}
	pr.ended = true
	return true
}

// End latches the request as finished. It returns true the first time it is
// called and false on every subsequent call, so finalize logic can run
// exactly once no matter how many terminal edges race to call it
// (spec §4.5.4, §8: "finalize applied twice has the same effect as once").
func (pr *Request) End() bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.ended {
		return false
	}
	pr.ended = true
	return true
}

// Ended reports whether End has already been called.
func (pr *Request) Ended() bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.ended
}
