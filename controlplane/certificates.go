package controlplane

import (
	"encoding/json"
	"net/http"
)

// certificateUpload is the body for POST /certificates (spec §6).
type certificateUpload struct {
	Domain string `json:"domain"`
	Key    string `json:"key"`
	Cert   string `json:"cert"`
}

type successBody struct {
	Success bool `json:"success"`
}

// uploadCertificate handles POST /certificates. Uploading onto an unknown
// vHost is a 404, not an implicit route create (spec §4.6). Certificate
// material is held only in the Route's Config, in memory (spec §9).
func (a *Adapter) uploadCertificate(w http.ResponseWriter, r *http.Request) {
	var body certificateUpload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationError(w, []string{"malformed JSON body: " + err.Error()})
		return
	}
	if body.Domain == "" || body.Key == "" || body.Cert == "" {
		writeValidationError(w, []string{"domain, key, and cert are required"})
		return
	}

	rt, ok := a.router.Get(body.Domain)
	if !ok {
		http.NotFound(w, r)
		return
	}

	cfg := rt.Config()
	cfg.TLSKey = body.Key
	cfg.TLSCert = body.Cert
	rt.UpdateConfig(cfg)

	writeJSON(w, http.StatusOK, successBody{Success: true})
}
