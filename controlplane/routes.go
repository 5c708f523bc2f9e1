package controlplane

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hostgate/logging"
	"hostgate/route"
)

// validationErrorBody is the 400 envelope for control-plane input
// rejected by route.Config.Validate (spec §6: "Validation failures...").
type validationErrorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidationError(w http.ResponseWriter, problems []string) {
	writeJSON(w, http.StatusBadRequest, validationErrorBody{Error: "Validation Error", Details: problems})
}

// listRoutes handles GET /routes.
func (a *Adapter) listRoutes(w http.ResponseWriter, r *http.Request) {
	routes := a.router.List()
	configs := make([]route.Config, 0, len(routes))
	for _, rt := range routes {
		configs = append(configs, rt.Config())
	}
	writeJSON(w, http.StatusOK, configs)
}

// upsertRoute handles POST /routes: an idempotent replace-by-vHost (spec §8:
// "destructive replace is the contract").
func (a *Adapter) upsertRoute(w http.ResponseWriter, r *http.Request) {
	var cfg route.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeValidationError(w, []string{"malformed JSON body: " + err.Error()})
		return
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		writeValidationError(w, problems)
		return
	}

	rt := route.New(cfg, a.log)
	a.router.Put(rt)
	a.log.Info("route upserted", logging.String("vhost", cfg.VHost))
	writeJSON(w, http.StatusCreated, cfg)
}

// getRoute handles GET /routes/:vHost.
func (a *Adapter) getRoute(w http.ResponseWriter, r *http.Request) {
	vHost := chi.URLParam(r, "vHost")
	rt, ok := a.router.Get(vHost)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, rt.Config())
}

// deleteRoute handles DELETE /routes/:vHost; deleting a route also drops
// its Tracker entry (spec §4.6).
func (a *Adapter) deleteRoute(w http.ResponseWriter, r *http.Request) {
	vHost := chi.URLParam(r, "vHost")
	if !a.router.Remove(vHost) {
		http.NotFound(w, r)
		return
	}
	a.tracker.Remove(vHost)
	w.WriteHeader(http.StatusNoContent)
}

// addBackend handles POST /routes/:vHost/backends: appends to the route's
// backend list and rebinds it via UpdateConfig.
func (a *Adapter) addBackend(w http.ResponseWriter, r *http.Request) {
	vHost := chi.URLParam(r, "vHost")
	rt, ok := a.router.Get(vHost)
	if !ok {
		http.NotFound(w, r)
		return
	}

	var bc route.BackendConfig
	if err := json.NewDecoder(r.Body).Decode(&bc); err != nil {
		writeValidationError(w, []string{"malformed JSON body: " + err.Error()})
		return
	}

	cfg := rt.Config()
	if bc.ID == "" || bc.Host == "" || bc.Port <= 0 || bc.Port > 65535 {
		writeValidationError(w, []string{"backend id/host/port are required and port must be in 1..65535"})
		return
	}
	cfg.Backends = append(cfg.Backends, bc)
	rt.UpdateConfig(cfg)

	writeJSON(w, http.StatusCreated, bc)
}

// removeBackend handles DELETE /routes/:vHost/backends/:id.
func (a *Adapter) removeBackend(w http.ResponseWriter, r *http.Request) {
	vHost := chi.URLParam(r, "vHost")
	id := chi.URLParam(r, "id")

	rt, ok := a.router.Get(vHost)
	if !ok {
		http.NotFound(w, r)
		return
	}

	cfg := rt.Config()
	idx := -1
	for i, b := range cfg.Backends {
		if b.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		http.NotFound(w, r)
		return
	}
	cfg.Backends = append(cfg.Backends[:idx], cfg.Backends[idx+1:]...)
	rt.UpdateConfig(cfg)

	w.WriteHeader(http.StatusNoContent)
}
