package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jkrishnan-dev/textjobs/internal/config"
	jobpkg "github.com/jkrishnan-dev/textjobs/internal/job"
	"github.com/jkrishnan-dev/textjobs/internal/pool"
	"github.com/jkrishnan-dev/textjobs/internal/queue"
	"github.com/jkrishnan-dev/textjobs/internal/storage/database"
	"github.com/jkrishnan-dev/textjobs/internal/worker"
	"github.com/jkrishnan-dev/textjobs/middleware"
)

func main() {
	log.Println("Starting text job service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadFromEnv(ctx)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	dbCfg, err := database.LoadConfigFromEnv(ctx)
	if err != nil {
		log.Fatal("Failed to load db config:", err)
	}

	db, err := database.ConnectDB(ctx, dbCfg)
	if err != nil {
		log.Fatal("Connection failed:", err)
	}

	if err := database.Migrate(db, dbCfg.Driver); err != nil {
		log.Fatal("Migration failed:", err)
	}

	handlePool, err := pool.New(db, cfg.PoolSize)
	if err != nil {
		log.Fatal("Pool init failed:", err)
	}

	repo := database.NewJobRepository(handlePool)

	// Startup recovery: rows left in flight by the previous process
	// incarnation are treated exactly like a crash.
	recovered, err := repo.RecoverAbandoned(ctx)
	if err != nil {
		log.Fatal("Startup recovery failed:", err)
	}
	if recovered > 0 {
		log.Printf("startup recovery: reset %d abandoned jobs to pending", recovered)
	}

	q := queue.New()
	svc := jobpkg.NewJobService(repo, q)
	handler := jobpkg.NewJobHandler(svc, cfg.MaxUploadBytes)

	faults := worker.NewInjector(cfg.Faults)
	if cfg.Faults.Enabled {
		log.Println("[WARN] fault injection is ENABLED")
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		sup := worker.NewSupervisor(worker.New(i, repo, q, cfg, faults), cfg.RestartDelay)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.Run(ctx)
		}()
	}

	reaper := worker.NewReaper(repo, q, cfg.ReaperInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()

	router := gin.Default()
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/jobs", handler.Create)
	router.GET("/jobs", handler.List)
	router.GET("/jobs/:id", handler.Get)
	router.GET("/jobs/:id/status", handler.Status)
	router.GET("/jobs/:id/result", handler.Result)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}

	wg.Wait()
	handlePool.Close()
	log.Println("Shutdown complete.")
}
