// Package config loads process-level settings from the environment and an
// optional bootstrap file of initial routes (spec §6: "Environment",
// "Persisted state").
package config

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"hostgate/route"
)

// routesFlag is registered at package init so it is in place before either
// main() or the testing package's own flag.Parse() runs (spec §6: "a
// -routes flag or ROUTES_FILE env var").
var routesFlag = flag.String("routes", "", "path to bootstrap routes JSON file (overrides ROUTES_FILE)")

// Settings holds everything main needs to stand the process up.
type Settings struct {
	// Port is the plain HTTP data-plane listener address (spec §6: default 8080).
	Port string
	// SSLPort is the optional HTTPS data-plane listener address; empty disables it.
	SSLPort string
	// APIPort is the control-plane listener address (spec §6: default 8081).
	APIPort string
	// LogLevel is passed straight to logging.New.
	LogLevel string
	// BootstrapFile, if set (via -routes or ROUTES_FILE), is a JSON file of
	// RouteConfig read once at startup and never rewritten (spec §6).
	BootstrapFile string
}

// Load reads .env (if present, silently ignored otherwise) and then the
// process environment, applying the spec's defaults for anything unset.
func Load() Settings {
	_ = godotenv.Load()
	if !flag.Parsed() {
		flag.Parse()
	}

	return Settings{
		Port:          envOr("PORT", ":8080"),
		SSLPort:       os.Getenv("SSL_PORT"),
		APIPort:       envOr("API_PORT", ":8081"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		BootstrapFile: routesPath(),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// routesPath resolves the bootstrap routes file: an explicit -routes flag
// wins, falling back to ROUTES_FILE.
func routesPath() string {
	if *routesFlag != "" {
		return *routesFlag
	}
	return os.Getenv("ROUTES_FILE")
}

// LoadBootstrapRoutes reads the bootstrap file, if Settings.BootstrapFile is
// set, and decodes it as a JSON array of route.Config. An empty path
// returns (nil, nil): bootstrapping is optional. A path that cannot be
// read is an error.
func LoadBootstrapRoutes(path string) ([]route.Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read bootstrap file")
	}
	var configs []route.Config
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, errors.Wrap(err, "parse bootstrap file")
	}
	return configs, nil
}
