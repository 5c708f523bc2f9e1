package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"hostgate/logging"
	"hostgate/route"
	"hostgate/router"
	"hostgate/tracker"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	log := logging.NewNop()
	rtr := router.New(log)
	trk, err := tracker.New(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("tracker.New() error: %v", err)
	}
	return New(rtr, trk, log)
}

func doJSON(t *testing.T, a *Adapter, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Encode() error: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)
	return w
}

func TestUpsertRouteThenGetAndList(t *testing.T) {
	a := newTestAdapter(t)

	cfg := route.Config{
		VHost:     "a.example.com",
		Strategy:  "ROUND_ROBIN",
		MaxActive: 5,
		MaxQueued: 10,
		Backends:  []route.BackendConfig{{ID: "b1", Host: "127.0.0.1", Port: 9001}},
	}
	w := doJSON(t, a, http.MethodPost, "/api/v1/routes", cfg)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /routes status = %d, want 201", w.Code)
	}

	w = doJSON(t, a, http.MethodGet, "/api/v1/routes/a.example.com", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /routes/:vHost status = %d, want 200", w.Code)
	}
	var got route.Config
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.VHost != "a.example.com" || got.MaxActive != 5 {
		t.Errorf("GET /routes/:vHost = %+v, want matching the upserted config", got)
	}

	w = doJSON(t, a, http.MethodGet, "/api/v1/routes", nil)
	var list []route.Config
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("GET /routes returned %d entries, want 1", len(list))
	}
}

func TestUpsertRouteValidationError(t *testing.T) {
	a := newTestAdapter(t)
	w := doJSON(t, a, http.MethodPost, "/api/v1/routes", route.Config{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body validationErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if body.Error != "Validation Error" || len(body.Details) == 0 {
		t.Errorf("body = %+v, want a non-empty Validation Error", body)
	}
}

func TestGetRouteNotFound(t *testing.T) {
	a := newTestAdapter(t)
	w := doJSON(t, a, http.MethodGet, "/api/v1/routes/missing.example.com", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDeleteRouteRemovesTrackerEntry(t *testing.T) {
	a := newTestAdapter(t)
	cfg := route.Config{
		VHost: "a.example.com", Strategy: "ROUND_ROBIN", MaxActive: 1,
		Backends: []route.BackendConfig{{ID: "b1", Host: "127.0.0.1", Port: 9001}},
	}
	doJSON(t, a, http.MethodPost, "/api/v1/routes", cfg)
	a.tracker.OnStart(context.Background(), "a.example.com")

	w := doJSON(t, a, http.MethodDelete, "/api/v1/routes/a.example.com", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if _, ok := a.tracker.Snapshot("a.example.com"); ok {
		t.Error("tracker entry still present after DELETE /routes/:vHost")
	}

	w = doJSON(t, a, http.MethodDelete, "/api/v1/routes/a.example.com", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d, want 404", w.Code)
	}
}

func TestAddAndRemoveBackend(t *testing.T) {
	a := newTestAdapter(t)
	cfg := route.Config{
		VHost: "a.example.com", Strategy: "ROUND_ROBIN", MaxActive: 1,
		Backends: []route.BackendConfig{{ID: "b1", Host: "127.0.0.1", Port: 9001}},
	}
	doJSON(t, a, http.MethodPost, "/api/v1/routes", cfg)

	w := doJSON(t, a, http.MethodPost, "/api/v1/routes/a.example.com/backends",
		route.BackendConfig{ID: "b2", Host: "127.0.0.1", Port: 9002})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST backends status = %d, want 201", w.Code)
	}

	rt, _ := a.router.Get("a.example.com")
	if got := len(rt.Config().Backends); got != 2 {
		t.Fatalf("backend count = %d, want 2", got)
	}

	w = doJSON(t, a, http.MethodDelete, "/api/v1/routes/a.example.com/backends/b1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE backend status = %d, want 204", w.Code)
	}
	if got := len(rt.Config().Backends); got != 1 {
		t.Fatalf("backend count after delete = %d, want 1", got)
	}
}

func TestUploadCertificateUnknownVHostIs404(t *testing.T) {
	a := newTestAdapter(t)
	w := doJSON(t, a, http.MethodPost, "/api/v1/certificates",
		certificateUpload{Domain: "missing.example.com", Key: "k", Cert: "c"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestUploadCertificateInstallsOnExistingRoute(t *testing.T) {
	a := newTestAdapter(t)
	cfg := route.Config{
		VHost: "a.example.com", Strategy: "ROUND_ROBIN", MaxActive: 1,
		Backends: []route.BackendConfig{{ID: "b1", Host: "127.0.0.1", Port: 9001}},
	}
	doJSON(t, a, http.MethodPost, "/api/v1/routes", cfg)

	w := doJSON(t, a, http.MethodPost, "/api/v1/certificates",
		certificateUpload{Domain: "a.example.com", Key: "key-pem", Cert: "cert-pem"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	rt, _ := a.router.Get("a.example.com")
	if !rt.Config().HasTLS() {
		t.Error("route does not report HasTLS() after certificate upload")
	}
}

func TestStatsEndpoints(t *testing.T) {
	a := newTestAdapter(t)
	a.tracker.OnStart(context.Background(), "a.example.com")

	w := doJSON(t, a, http.MethodGet, "/api/v1/stats/a.example.com", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var s map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if s["vHost"] != "a.example.com" {
		t.Errorf("stats body = %v, want vHost a.example.com", s)
	}

	w = doJSON(t, a, http.MethodGet, "/api/v1/stats/missing.example.com", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	w = doJSON(t, a, http.MethodGet, "/api/v1/stats", nil)
	var all map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if _, ok := all["a.example.com"]; !ok {
		t.Errorf("GET /stats missing vhost entry: %v", all)
	}
}
