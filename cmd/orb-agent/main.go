// Package main provides the entry point for the intraday ORB trading agent.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/orb-agent/internal/alert"
	"github.com/eddiefleurent/orb-agent/internal/clock"
	"github.com/eddiefleurent/orb-agent/internal/config"
	"github.com/eddiefleurent/orb-agent/internal/marketdata"
	"github.com/eddiefleurent/orb-agent/internal/orchestrator"
	"github.com/eddiefleurent/orb-agent/internal/statusapi"
	"github.com/eddiefleurent/orb-agent/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var cloudMode bool
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&cloudMode, "cloud-mode", false, "Boot the long-running orchestrator with an embedded HTTP health endpoint")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("invalid config: %v", err)
		return 2
	}

	logger := log.New(os.Stdout, "[ORB] ", log.LstdFlags|log.Lshortfile)
	logger.Printf("starting orb-agent in %s mode (cloud-mode=%v)", cfg.Mode, cloudMode)

	store, err := storage.NewFileStore(cfg.Storage.Path)
	if err != nil {
		logger.Printf("failed to initialize storage: %v", err)
		return 1
	}

	// The broker's wire protocol is an external collaborator out of scope
	// for this core; this CLI wires the deterministic mock both for demo
	// mode and as the live-mode fallback slot a real broker client would
	// occupy, wrapped in the same circuit breaker a live client would be so
	// the breaking behaviour is exercised identically in either mode.
	inner := marketdata.NewMockGateway(cfg.Universe)
	gw := marketdata.NewCircuitBreakerGateway(inner)

	dashLogger := logrus.New()
	dashLogger.SetOutput(os.Stdout)
	if cfg.Mode == config.ModeLive {
		dashLogger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		dashLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	sink := alert.NewLogSink(dashLogger)

	orch, err := orchestrator.New(cfg, clock.NewRealClock(), gw, store, sink, logger)
	if err != nil {
		logger.Printf("failed to construct orchestrator: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received, draining...")
		cancel()
	}()

	var statusServer *statusapi.Server
	if cloudMode {
		statusServer = statusapi.New(cfg.HealthHTTP.Port, orch, dashLogger)
		go func() {
			if err := statusServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Printf("status server error: %v", err)
			}
		}()
		logger.Printf("status endpoint listening on :%d", cfg.HealthHTTP.Port)

		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := statusServer.Shutdown(shutdownCtx); err != nil {
				logger.Printf("error shutting down status server: %v", err)
			}
		}()
	}

	if err := orch.Run(ctx); err != nil {
		logger.Printf("orchestrator error: %v", err)
		return 1
	}

	logger.Println("orb-agent drained cleanly")
	return 0
}
