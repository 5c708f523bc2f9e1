package router

import (
	"crypto/tls"
	"testing"

	"hostgate/logging"
	"hostgate/route"
)

func testRoute(vhost string) *route.Route {
	return route.New(route.Config{
		RouteID:   vhost,
		VHost:     vhost,
		Strategy:  "ROUND_ROBIN",
		MaxActive: 1,
		Backends:  []route.BackendConfig{{ID: "b1", Host: "127.0.0.1", Port: 9001}},
	}, logging.NewNop())
}

func TestPutAndGet(t *testing.T) {
	r := New(logging.NewNop())
	rt := testRoute("a.example.com")
	defer rt.Stop()
	r.Put(rt)

	got, ok := r.Get("a.example.com")
	if !ok || got != rt {
		t.Fatalf("Get() = %v, %v; want %v, true", got, ok, rt)
	}

	if _, ok := r.Get("missing.example.com"); ok {
		t.Fatal("Get() on unconfigured vhost returned ok=true")
	}
}

func TestPutReplacesAndStopsOld(t *testing.T) {
	r := New(logging.NewNop())
	first := testRoute("a.example.com")
	r.Put(first)
	second := testRoute("a.example.com")
	defer second.Stop()
	r.Put(second)

	got, _ := r.Get("a.example.com")
	if got != second {
		t.Fatal("Put() did not replace the existing route")
	}
}

func TestRemove(t *testing.T) {
	r := New(logging.NewNop())
	rt := testRoute("a.example.com")
	r.Put(rt)

	if !r.Remove("a.example.com") {
		t.Fatal("Remove() = false, want true")
	}
	if r.Remove("a.example.com") {
		t.Fatal("Remove() of already-removed vhost = true, want false")
	}
	if _, ok := r.Get("a.example.com"); ok {
		t.Fatal("Get() after Remove() still found the route")
	}
}

func TestListReturnsAllRoutes(t *testing.T) {
	r := New(logging.NewNop())
	a := testRoute("a.example.com")
	b := testRoute("b.example.com")
	defer a.Stop()
	defer b.Stop()
	r.Put(a)
	r.Put(b)

	got := r.List()
	if len(got) != 2 {
		t.Fatalf("List() returned %d routes, want 2", len(got))
	}
}

func TestGetCertificateNoRoute(t *testing.T) {
	r := New(logging.NewNop())
	_, err := r.GetCertificate(&tls.ClientHelloInfo{ServerName: "nope.example.com"})
	if err == nil {
		t.Fatal("GetCertificate() error = nil, want error for unknown SNI host")
	}
}

func TestGetCertificateNoTLSConfigured(t *testing.T) {
	r := New(logging.NewNop())
	rt := testRoute("a.example.com")
	defer rt.Stop()
	r.Put(rt)

	_, err := r.GetCertificate(&tls.ClientHelloInfo{ServerName: "a.example.com"})
	if err == nil {
		t.Fatal("GetCertificate() error = nil, want error when route has no TLS cert")
	}
}
