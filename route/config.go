package route

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// BackendConfig is the declarative description of one upstream target
// within a RouteConfig.
type BackendConfig struct {
	ID     string `json:"id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Weight int    `json:"weight"` // reserved, unused in v1 (spec §1)
}

// Config is the declarative desired state for one vHost (spec §3:
// RouteConfig). It is replaced atomically by the control plane via
// Route.UpdateConfig and is otherwise immutable from the data plane's
// perspective.
type Config struct {
	RouteID          string            `json:"routeId"`
	VHost            string            `json:"vHost"`
	Strategy         string            `json:"strategy"`
	MaxActive        int               `json:"maxActive"`
	MaxQueued        int               `json:"maxQueued"`
	ConnectTimeoutMs int               `json:"connectTimeoutMs,omitempty"`
	ReadTimeoutMs    int               `json:"readTimeoutMs,omitempty"`
	TLSCert          string            `json:"tlsCert,omitempty"`
	TLSKey           string            `json:"tlsKey,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	Backends         []BackendConfig   `json:"backends"`
}

// ConnectTimeout returns the per-request socket-connect timeout, falling
// back to the manager-wide default (spec §4.5: "default 5s") when unset.
func (c Config) ConnectTimeout(def time.Duration) time.Duration {
	if c.ConnectTimeoutMs <= 0 {
		return def
	}
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// ReadTimeout returns the per-request proxy timeout, falling back to the
// manager-wide default (spec §4.5: "default 10s") when unset. The proxy
// manager applies it as the wait for the backend's response headers; it
// does not bound the whole exchange end to end.
func (c Config) ReadTimeout(def time.Duration) time.Duration {
	if c.ReadTimeoutMs <= 0 {
		return def
	}
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// NormalizedVHost returns the vHost as the data plane's routing key:
// lower-cased is NOT applied here (spec §6: "comparison is case-sensitive
// as stored; control plane should install vHosts in lower case") — this
// only strips a port suffix, matching how an incoming Host header is
// normalized.
func NormalizedVHost(hostHeader string) string {
	if i := strings.LastIndexByte(hostHeader, ':'); i >= 0 {
		return hostHeader[:i]
	}
	return hostHeader
}

// HasTLS reports whether this config carries a key+cert pair for SNI.
func (c Config) HasTLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// Validate checks the shape the control plane must enforce before a
// Config is ever handed to a Route (spec §4.6, §7: "Control-plane
// validation -> 400 with details").
func (c Config) Validate() []string {
	var problems []string
	if c.VHost == "" {
		problems = append(problems, "vHost is required")
	}
	if c.MaxActive <= 0 {
		problems = append(problems, "maxActive must be > 0")
	}
	if c.MaxQueued < 0 {
		problems = append(problems, "maxQueued must be >= 0")
	}
	for i, b := range c.Backends {
		if b.ID == "" {
			problems = append(problems, errors.Errorf("backends[%d].id is required", i).Error())
		}
		if b.Host == "" {
			problems = append(problems, errors.Errorf("backends[%d].host is required", i).Error())
		}
		if b.Port <= 0 || b.Port > 65535 {
			problems = append(problems, errors.Errorf("backends[%d].port must be in 1..65535", i).Error())
		}
	}
	return problems
}
