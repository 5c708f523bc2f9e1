// Package controlplane is the thin synchronous CRUD adapter over Router
// and Tracker described in spec §4.6 and §6: it validates input shape,
// mutates the data plane, and otherwise holds no state of its own.
package controlplane

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hostgate/logging"
	"hostgate/router"
	"hostgate/tracker"
)

// Adapter wires the control-plane HTTP API to a Router and Tracker.
type Adapter struct {
	router  *router.Router
	tracker *tracker.Tracker
	log     logging.Logger

	mux    chi.Router
	server *http.Server
}

// New builds an Adapter and its chi mux under /api/v1 (spec §6).
func New(rtr *router.Router, trk *tracker.Tracker, log logging.Logger) *Adapter {
	a := &Adapter{router: rtr, tracker: trk, log: log}

	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/routes", a.listRoutes)
		api.Post("/routes", a.upsertRoute)
		api.Get("/routes/{vHost}", a.getRoute)
		api.Delete("/routes/{vHost}", a.deleteRoute)
		api.Post("/routes/{vHost}/backends", a.addBackend)
		api.Delete("/routes/{vHost}/backends/{id}", a.removeBackend)
		api.Post("/certificates", a.uploadCertificate)
		api.Get("/stats", a.allStats)
		api.Get("/stats/{vHost}", a.vhostStats)
	})
	a.mux = r

	return a
}

// ServeHTTP lets Adapter itself be mounted directly on an http.Server.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// Start opens the control-plane listener on addr (spec §6: API_PORT, default 8081).
func (a *Adapter) Start(addr string) {
	a.server = &http.Server{Addr: addr, Handler: a}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("control-plane listener stopped", logging.Err(err))
		}
	}()
}

// Stop gracefully shuts down the control-plane listener.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
