package router

import "github.com/go-faster/errors"

func errNoRouteForSNI(vHost string) error {
	return errors.Errorf("router: no route configured for SNI host %q", vHost)
}

func errNoCertForSNI(vHost string) error {
	return errors.Errorf("router: route %q has no TLS certificate configured", vHost)
}
