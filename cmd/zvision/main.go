package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"zvision/internal/api"
	"zvision/internal/config"
	"zvision/internal/database"
	"zvision/internal/detection"
	"zvision/internal/pipeline"
	"zvision/internal/snapshot"
	"zvision/internal/ws"

	authpkg "zvision/internal/auth"
)

func main() {
	var (
		envFileF  = flag.String("env-file", ".env", "Path to environment file (ignored if missing)")
		httpAddrF = flag.String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	)
	flag.Parse()

	if err := godotenv.Load(*envFileF); err != nil && !os.IsNotExist(err) {
		log.Printf("[Main] Could not load %s: %v", *envFileF, err)
	}

	cfg := config.Load()
	if *httpAddrF != "" {
		cfg.HTTPAddr = *httpAddrF
	}

	if err := run(cfg); err != nil {
		log.Fatalf("[Main] %v", err)
	}
}

func run(cfg config.Config) error {
	db, err := database.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	store, err := snapshot.NewStore(cfg.SnapshotDir, cfg.SnapshotMax)
	if err != nil {
		return err
	}

	detector := detection.NewYOLODetector(cfg.DetectorEndpoint)
	if !detector.IsHealthy() {
		log.Printf("[Main] Warning: inference service at %s is not responding", cfg.DetectorEndpoint)
	}

	bus := pipeline.NewEventBus()
	bus.Subscribe(database.NewSink(db))
	hub := ws.NewEventHub()
	bus.Subscribe(hub)

	registry := pipeline.NewRegistry(pipeline.NewSource(cfg.Reconnect), detector, bus, store, cfg.Detection)

	// Restore persisted cameras and their zones before anything ticks
	cameras, err := db.ListCameras()
	if err != nil {
		return err
	}
	for _, camera := range cameras {
		if err := registry.AddCamera(*camera); err != nil {
			log.Printf("[Main] Skipping persisted camera %s: %v", camera.ID, err)
		}
	}
	registry.StartAll()
	defer registry.Close()

	stop := make(chan struct{})
	go store.RunSweeper(cfg.SweepInterval, stop)
	go pruneEvents(db, cfg.EventRetention, cfg.SweepInterval, stop)

	authenticator := authpkg.NewAuthenticator(cfg.Auth)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(registry, db, store, hub, detector, authenticator).Routes(),
	}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf("[Main] HTTP server listening on %s", cfg.HTTPAddr)
		errc <- server.ListenAndServe()
	}()

	log.Printf("[Main] exiting (%v)", <-errc)
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// pruneEvents periodically deletes events past the retention window
func pruneEvents(db *database.Database, retention, interval time.Duration, stop <-chan struct{}) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deleted, err := db.DeleteOldEvents(time.Now().Add(-retention))
			if err != nil {
				log.Printf("[Main] Event pruning failed: %v", err)
			} else if deleted > 0 {
				log.Printf("[Main] Pruned %d events past retention", deleted)
			}
		}
	}
}
