package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/ecg.report/internal/api"
	"github.com/banshee-data/ecg.report/internal/catalog"
	"github.com/banshee-data/ecg.report/internal/config"
	"github.com/banshee-data/ecg.report/internal/ecg"
	"github.com/banshee-data/ecg.report/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS
	devMode     = flag.Bool("dev", false, "Run in dev mode (serve ./static from disk, verbose engine logs)")
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "", "Catalog database built by ecg-index")
	indexPath   = flag.String("index", "", "Catalog CSV built by ecg-index (used when -db is empty)")
	configPath  = flag.String("config", "", "Analysis config JSON (defaults when empty)")
	showVersion = flag.Bool("version", false, "Print the build version and exit")
)

func loadConfig(path string) (*config.AnalysisConfig, error) {
	if path == "" {
		return config.DefaultAnalysisConfig(), nil
	}
	return config.LoadAnalysisConfig(path)
}

func newHandler(svc *api.Service, dev bool) http.Handler {
	mux := api.NewServer(svc).ServeMux()

	// read static files from the embedded filesystem in production or from
	// the local ./static in dev for easier iteration without restarting the
	// server
	var staticHandler http.Handler
	if dev {
		staticHandler = http.FileServer(http.Dir("./static"))
	} else {
		sub, err := fs.Sub(staticFiles, "static")
		if err != nil {
			log.Fatalf("failed to open embedded static files: %v", err)
		}
		staticHandler = http.FileServer(http.FS(sub))
	}
	mux.Handle("/", staticHandler)
	return api.LoggingMiddleware(mux)
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("ecg.report", version.Get())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	writers := ecg.LogWriters{Ops: os.Stderr}
	if *devMode {
		writers.Diag = os.Stderr
	}
	ecg.SetLogWriters(writers)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	src, closeSource, err := catalog.OpenSource(*dbPath, *indexPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer closeSource()

	segs, err := src.Segments()
	if err != nil {
		log.Fatalf("Failed to read catalog: %v", err)
	}
	log.Printf("ecg.report %s, catalog: %d segments", version.Get(), len(segs))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: newHandler(api.NewService(src, cfg), *devMode),
	}

	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
