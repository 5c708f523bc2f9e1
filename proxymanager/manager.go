// Package proxymanager is the core state machine (spec §4.5): it owns the
// HTTP and HTTPS listeners, drives each request through
// admission -> forward -> finalize, and pumps each Route's queue whenever
// capacity frees up. Everything else in the data plane is a collaborator
// this package calls into.
package proxymanager

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hostgate/logging"
	"hostgate/route"
	"hostgate/router"
	"hostgate/tracker"
)

// tracer opens one span per request, covering admission through finalize
// (spec §4.5, DOMAIN STACK: request tracing).
var tracer trace.Tracer = otel.Tracer("hostgate/proxymanager")

const (
	// defaultConnectTimeout is the socket-connect timeout applied when a
	// route does not declare its own (spec §4.5).
	defaultConnectTimeout = 5 * time.Second
	// defaultProxyTimeout is the proxy timeout applied when a route does not
	// declare its own (spec §4.5); see buildReverseProxy for what it bounds.
	defaultProxyTimeout = 10 * time.Second
)

// Manager is the ProxyManager of spec §4.5. It implements http.Handler so
// it can be mounted directly on an http.Server for both the plain and TLS
// listeners.
type Manager struct {
	router  *router.Router
	tracker *tracker.Tracker
	log     logging.Logger

	httpServer  *http.Server
	httpsServer *http.Server
}

// New builds a Manager bound to the given Router and Tracker. It does not
// start listening until Start is called.
func New(rtr *router.Router, trk *tracker.Tracker, log logging.Logger) *Manager {
	return &Manager{
		router:  rtr,
		tracker: trk,
		log:     log,
	}
}

// Start opens the plain HTTP listener on addr, and, if tlsAddr is
// non-empty, a second HTTPS listener whose certificates are resolved per
// vHost via the Router's SNI callback (spec §6).
func (m *Manager) Start(addr, tlsAddr string) error {
	m.httpServer = &http.Server{Addr: addr, Handler: m}

	go func() {
		if err := m.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Error("http listener stopped", logging.Err(err))
		}
	}()

	if tlsAddr == "" {
		return nil
	}

	m.httpsServer = &http.Server{
		Addr:    tlsAddr,
		Handler: m,
		TLSConfig: &tls.Config{
			GetCertificate: m.router.GetCertificate,
		},
	}
	go func() {
		if err := m.httpsServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			m.log.Error("https listener stopped", logging.Err(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests on a best-effort basis, stops every
// Route's quarantine timer, and closes the listeners (spec §5: "Shutdown").
func (m *Manager) Stop(ctx context.Context) error {
	m.router.StopAll()

	var firstErr error
	if m.httpServer != nil {
		if err := m.httpServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.httpsServer != nil {
		if err := m.httpsServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ServeHTTP is the single catch-all data-plane handler (spec §1: "no path
// routing on the data-plane listeners"). It drives one request through the
// admission state machine described in spec §4.5.1.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "proxymanager.ServeHTTP")
	r = r.WithContext(ctx)
	defer span.End()

	host := r.Host
	if host == "" {
		span.SetAttributes(attribute.String("hostgate.outcome", "reject_400"))
		m.log.Debug("admission rejected: missing host header")
		http.Error(w, "Missing Host Header", http.StatusBadRequest)
		return
	}
	vHost := route.NormalizedVHost(host)
	span.SetAttributes(attribute.String("hostgate.vhost", vHost))

	rt, ok := m.router.Get(vHost)
	if !ok {
		span.SetAttributes(attribute.String("hostgate.outcome", "reject_404"))
		m.log.Debug("admission rejected: no route", logging.String("vhost", vHost))
		http.Error(w, fmt.Sprintf("No route configured for %s", vHost), http.StatusNotFound)
		return
	}

	pr := route.NewRequest(w, r, vHost, clientIP(r))

	switch rt.Admit(pr) {
	case route.AdmitShed:
		span.SetAttributes(attribute.String("hostgate.outcome", "reject_503"))
		m.log.Debug("admission rejected: queue full",
			logging.String("vhost", vHost), logging.Int("queueDepth", rt.QueueLen()))
		m.tracker.OnError(ctx, vHost, "QUEUE_FULL")
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Server Busy"))
		return

	case route.AdmitQueued:
		span.SetAttributes(attribute.String("hostgate.outcome", "queued"))
		m.log.Debug("admission queued",
			logging.String("vhost", vHost), logging.Int("queueDepth", rt.QueueLen()))
		select {
		case <-pr.Proceed():
			// Promoted by a prior finalize's pumpQueue; fall through to forward.
		case <-r.Context().Done():
			if pr.Abandon() {
				// Won the race against Promote: no active slot was ever
				// committed to this request, so there is nothing to release.
				return
			}
			// Lost the race: pumpQueue already committed an active slot and
			// closed Proceed concurrently. Forward anyway so that slot is
			// always balanced by exactly one finalize (spec §4.5.5, §8).
		}
		m.forward(rt, pr)

	case route.AdmitActive:
		span.SetAttributes(attribute.String("hostgate.outcome", "active"))
		m.log.Debug("admission active", logging.String("vhost", vHost))
		m.forward(rt, pr)
	}
}

// forward implements spec §4.5.2: pick a backend, bind abort/finish
// listeners, and invoke the forwarding primitive (here, httputil.ReverseProxy).
func (m *Manager) forward(rt *route.Route, pr *route.Request) {
	backend, err := rt.Pick(pr.ClientIP)
	if err != nil {
		rt.ReleaseActive()
		http.Error(pr.W, "Service Unavailable - No Healthy Backends", http.StatusServiceUnavailable)
		return
	}
	pr.TargetID = backend.ID
	m.tracker.OnStart(pr.R.Context(), pr.VHost)

	cfg := rt.Config()
	proxy := m.buildReverseProxy(rt, pr, backend, cfg)

	rw := &statusCapturingWriter{ResponseWriter: pr.W}

	// Single-shot abort listener (spec §4.5.2): if the client hangs up
	// before ServeHTTP returns, finalize with success=false. finalize's own
	// isEnded latch makes the race against the normal completion path below
	// safe regardless of which one runs first.
	finished := make(chan struct{})
	go func() {
		select {
		case <-pr.R.Context().Done():
			m.finalize(rt, pr, false)
		case <-finished:
		}
	}()

	proxy.ServeHTTP(rw, pr.R)
	close(finished)

	m.finalize(rt, pr, rw.status < 500)
}

// buildReverseProxy constructs a single-use httputil.ReverseProxy targeting
// one backend, with the route's timeouts and header injection applied
// (spec §4.5, §6).
func (m *Manager) buildReverseProxy(rt *route.Route, pr *route.Request, b backendTarget, cfg route.Config) *httputil.ReverseProxy {
	target := &url.URL{Scheme: "http", Host: strings.TrimPrefix(b.BaseURL(), "http://")}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout(defaultConnectTimeout),
		}).DialContext,
		// The proxy timeout (spec §4.5: "default 10s") bounds only the wait
		// for the backend's response headers after the request is written,
		// separate from the connect timeout above. Streaming the response
		// body is not bounded by any timeout here.
		ResponseHeaderTimeout: cfg.ReadTimeout(defaultProxyTimeout),
	}

	proxy := &httputil.ReverseProxy{
		Transport: transport,
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = req.URL.Host

			injectForwardingHeaders(req, pr.ClientIP)
			for k, v := range cfg.Headers {
				req.Header.Set(k, v)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			class := classifyUpstreamError(err)
			rt.MarkFailure(pr.TargetID)
			m.finalize(rt, pr, false)

			rw, ok := w.(*statusCapturingWriter)
			if ok && rw.written {
				return
			}
			writeUpstreamError(w, class, err)
		},
	}

	return proxy
}

// backendTarget is the minimal surface forward needs from a selected
// backend, kept narrow so tests can substitute a fake without importing
// the backend package's mutation API.
type backendTarget interface {
	BaseURL() string
}

// finalize is the single idempotent join point (spec §4.5.4): it is a
// no-op on every call after the first for a given Request.
func (m *Manager) finalize(rt *route.Route, pr *route.Request, success bool) {
	if !pr.End() {
		return
	}
	rt.ReleaseActive()
	m.tracker.OnEnd(pr.R.Context(), pr.VHost, time.Since(pr.StartTime), !success)
	m.pumpQueue(rt)
}

// pumpQueue implements spec §4.5.5: drain every queued request the route
// now has room for, in FIFO order, waking each one's own handler goroutine
// rather than recursing into forward on this stack.
func (m *Manager) pumpQueue(rt *route.Route) {
	for {
		pr, ok := rt.DequeueIfRoom()
		if !ok {
			return
		}
		if !pr.Promote() {
			// Abandoned while queued; undo the active slot DequeueIfRoom
			// reserved for it and keep draining.
			rt.ReleaseActive()
			continue
		}
	}
}

// clientIP extracts the request's remote address host, stripping the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// injectForwardingHeaders sets the proxy headers spec §6 requires,
// preserving original header casing rather than relying on Go's
// canonicalized Header map for anything beyond Set's normal behavior.
func injectForwardingHeaders(req *http.Request, clientIP string) {
	if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
		req.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	req.Header.Set("X-Real-IP", clientIP)
	proto := "http"
	if req.TLS != nil {
		proto = "https"
	}
	req.Header.Set("X-Forwarded-Proto", proto)
}
