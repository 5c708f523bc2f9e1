package controlplane

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"hostgate/tracker"
)

// encodeStats writes one RouteStats object using go-faster/jx, the fast
// encoder reserved for this high-QPS endpoint (spec §6: "GET /stats").
func encodeStats(e *jx.Encoder, s tracker.Stats) {
	e.ObjStart()
	e.FieldStart("vHost")
	e.Str(s.VHost)
	e.FieldStart("totalRequests")
	e.Int64(s.TotalRequests)
	e.FieldStart("activeRequests")
	e.Int64(s.ActiveRequests)
	e.FieldStart("errorCount")
	e.Int64(s.ErrorCount)
	e.FieldStart("avgLatencyMs")
	e.Float64(s.AvgLatencyMs)
	e.ObjEnd()
}

// allStats handles GET /stats: object vHost -> RouteStats (spec §6).
func (a *Adapter) allStats(w http.ResponseWriter, r *http.Request) {
	all := a.tracker.SnapshotAll()

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	for _, s := range all {
		e.FieldStart(s.VHost)
		encodeStats(e, s)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(e.Bytes())
}

// vhostStats handles GET /stats/:vHost.
func (a *Adapter) vhostStats(w http.ResponseWriter, r *http.Request) {
	vHost := chi.URLParam(r, "vHost")
	s, ok := a.tracker.Snapshot(vHost)
	if !ok {
		http.NotFound(w, r)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeStats(e, s)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(e.Bytes())
}
