package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostgate/config"
	"hostgate/controlplane"
	"hostgate/logging"
	"hostgate/proxymanager"
	"hostgate/route"
	"hostgate/router"
	"hostgate/tracker"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
)

func main() {
	settings := config.Load()
	log := logging.New(settings.LogLevel)

	meterProvider := metric.NewMeterProvider()
	otel.SetMeterProvider(meterProvider)

	trk, err := tracker.New(meterProvider.Meter("hostgate"))
	if err != nil {
		log.Error("failed to build tracker", logging.Err(err))
		os.Exit(1)
	}

	rtr := router.New(log)

	bootstrapRoutes, err := config.LoadBootstrapRoutes(settings.BootstrapFile)
	if err != nil {
		log.Error("failed to load bootstrap routes", logging.Err(err))
		os.Exit(1)
	}
	for _, cfg := range bootstrapRoutes {
		rtr.Put(route.New(cfg, log))
		log.Info("route loaded from bootstrap file", logging.String("vhost", cfg.VHost))
	}

	manager := proxymanager.New(rtr, trk, log)
	if err := manager.Start(settings.Port, settings.SSLPort); err != nil {
		log.Error("failed to start data-plane listeners", logging.Err(err))
		os.Exit(1)
	}
	log.Info("data plane listening", logging.String("port", settings.Port))

	adapter := controlplane.New(rtr, trk, log)
	adapter.Start(settings.APIPort)
	log.Info("control plane listening", logging.String("port", settings.APIPort))

	waitForShutdownSignal()
	log.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := manager.Stop(shutdownCtx); err != nil {
		log.Error("error during data-plane shutdown", logging.Err(err))
	}
	if err := adapter.Stop(shutdownCtx); err != nil {
		log.Error("error during control-plane shutdown", logging.Err(err))
	}

	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down meter provider", logging.Err(err))
	}
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
