package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/vertexfit/internal/api"
	"github.com/banshee-data/vertexfit/internal/config"
	"github.com/banshee-data/vertexfit/internal/vertexdb"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	dbFile     = flag.String("db", "vertex_fits.db", "Path to the SQLite database file")
	configPath = flag.String("config", "", "Path to tuning config JSON (default: bundled defaults)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var cfg *config.TuningConfig
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	} else {
		cfg = config.MustLoadDefaultConfig()
	}

	db, err := vertexdb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	srv, err := api.NewServer(db, cfg)
	if err != nil {
		log.Fatalf("failed to build fit server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(srv.ServeMux()),
	}

	go func() {
		log.Printf("fit service listening on %s (db=%s)", *listen, *dbFile)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
