// main.go - entry point: config load, dependency wiring, router mount,
// graceful shutdown. Kept in the teacher's cmd/api/ layout; the startup
// sequence (config -> directories -> Mongo -> gin -> server goroutine ->
// signal-triggered shutdown) is unchanged from the teacher, generalized
// from a single-process receipt API to the inspection server's wider
// dependency graph (session manager + reaper, golden store, capability
// providers, barcode linking client, orchestrator).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/visualaoi/inspector/configs"
	"github.com/visualaoi/inspector/internal/api"
	"github.com/visualaoi/inspector/internal/barcodelink"
	"github.com/visualaoi/inspector/internal/capability"
	"github.com/visualaoi/inspector/internal/golden"
	"github.com/visualaoi/inspector/internal/orchestrator"
	"github.com/visualaoi/inspector/internal/session"
	"github.com/visualaoi/inspector/internal/storage"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()

	// Step 0.5: Set production mode
	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Create the shared session tree if it doesn't exist
	if err := os.MkdirAll(configs.SHARED_ROOT, 0755); err != nil {
		log.Fatalf("Failed to create shared root: %v", err)
	}
	if err := os.MkdirAll(configs.PRODUCTS_ROOT, 0755); err != nil {
		log.Fatalf("Failed to create products root: %v", err)
	}

	// Step 1.5: Initialize MongoDB connection for the audit trail (C14).
	// A failure here degrades audit logging only - it never prevents the
	// server from serving inspections (SPEC_FULL.md §3).
	if configs.MONGO_ENABLED {
		if err := storage.InitMongoDB(); err != nil {
			log.Printf("audit trail disabled: %v", err)
		} else {
			defer storage.CloseMongoDB()
		}
	} else {
		log.Println("audit trail disabled: MONGO_URI not set")
	}

	// Step 2: Wire the core dependency graph.
	sessions := session.NewManager(configs.SHARED_ROOT)
	goldenStore := golden.NewStore(configs.PRODUCTS_ROOT)
	linker := barcodelink.New(
		configs.BARCODE_LINK_URL,
		configs.BARCODE_LINK_TIMEOUT,
		configs.BARCODE_LINK_ENABLED,
		configs.BARCODE_LINK_BREAKER_MAX_FAILS,
		configs.BARCODE_LINK_BREAKER_RESET,
	)

	workerMax := configs.WORKER_POOL_MAX
	if workerMax <= 0 {
		workerMax = runtime.GOMAXPROCS(0)
	}

	orch := &orchestrator.Orchestrator{
		Sessions:    sessions,
		Golden:      goldenStore,
		Barcode:     capability.NewBarcodeDecoder(),
		OCR:         capability.NewOCRProvider(),
		Feature:     capability.NewFeatureExtractor(),
		Linker:      linker,
		SharedRoot:  configs.SHARED_ROOT,
		ClientMount: configs.CLIENT_MOUNT_PREFIX,
		WorkerMax:   workerMax,
		Deadline:    configs.INSPECTION_DEADLINE,
	}

	// Step 2.5: Start the session reaper (C13) alongside the server.
	reaper := session.NewReaper(sessions, configs.SESSION_TTL, time.Hour)
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go reaper.Run(reaperCtx)

	// Step 3: Mount the HTTP adapter (C12).
	server := &api.Server{Orchestrator: orch, Sessions: sessions, Golden: goldenStore}
	router := api.NewRouter(server)

	// Step 4: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   3 * time.Minute, // allow slow capability providers (Gemini) to finish
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on :%s", configs.PORT)
		log.Println("API Endpoints:")
		log.Println("  POST   /api/v1/sessions")
		log.Println("  DELETE /api/v1/sessions/:id")
		log.Println("  POST   /api/v1/sessions/:id/inspect")
		log.Println("  POST   /api/v1/process_grouped_inspection")
		log.Println("  GET    /api/v1/products/:id/golden")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopReaper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
