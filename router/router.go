// Package router holds the full vHost -> Route map: the lookup table the
// data plane consults on every incoming request, plus the TLS SNI
// resolution the HTTPS listener needs before it can even complete a
// handshake (spec §4.1, §4.3).
package router

import (
	"crypto/tls"
	"sync"

	"hostgate/logging"
	"hostgate/route"
)

// Router owns every live Route, keyed by vHost. Adding, removing, and
// replacing routes are all independent of the hot lookup path, which only
// needs a read lock.
type Router struct {
	mu     sync.RWMutex
	routes map[string]*route.Route
	log    logging.Logger
}

// New builds an empty Router.
func New(log logging.Logger) *Router {
	return &Router{
		routes: make(map[string]*route.Route),
		log:    log,
	}
}

// Get looks up the Route for a normalized vHost. ok is false when no
// route has been configured for that host (spec §4.1: REJECT_404).
func (rt *Router) Get(vHost string) (*route.Route, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	r, ok := rt.routes[vHost]
	return r, ok
}

// Put installs or replaces a Route for its vHost. If a Route already
// existed for that vHost, its quarantine loop is stopped before being
// discarded so routes never leak goroutines across a control-plane update.
func (rt *Router) Put(r *route.Route) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	vHost := r.VHost()
	if old, ok := rt.routes[vHost]; ok && old != r {
		old.Stop()
	}
	rt.routes[vHost] = r
}

// Remove deletes a Route by vHost, stopping its quarantine loop. It
// reports whether a route existed.
func (rt *Router) Remove(vHost string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	r, ok := rt.routes[vHost]
	if !ok {
		return false
	}
	r.Stop()
	delete(rt.routes, vHost)
	return true
}

// List returns a snapshot of every configured Route, for the control
// plane's GET /routes and for the stats endpoint.
func (rt *Router) List() []*route.Route {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]*route.Route, 0, len(rt.routes))
	for _, r := range rt.routes {
		out = append(out, r)
	}
	return out
}

// StopAll stops every Route's quarantine loop, used during process
// shutdown.
func (rt *Router) StopAll() {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	for _, r := range rt.routes {
		r.Stop()
	}
}

// GetCertificate implements tls.Config.GetCertificate: it resolves the
// incoming SNI server name to a vHost's Route and returns its cert/key
// pair (spec §4.3). A missing or cert-less route causes the handshake
// itself to fail, matching the spec's REJECT_404-before-TLS semantics for
// unknown hosts on the HTTPS listener.
func (rt *Router) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	vHost := route.NormalizedVHost(hello.ServerName)
	r, ok := rt.Get(vHost)
	if !ok {
		return nil, errNoRouteForSNI(vHost)
	}
	cfg := r.Config()
	if !cfg.HasTLS() {
		return nil, errNoCertForSNI(vHost)
	}
	cert, err := tls.X509KeyPair([]byte(cfg.TLSCert), []byte(cfg.TLSKey))
	if err != nil {
		return nil, err
	}
	return &cert, nil
}
