package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mnemo-app/mnemo/api"
	"github.com/mnemo-app/mnemo/config"
	"github.com/mnemo-app/mnemo/db"
	"github.com/mnemo-app/mnemo/digest"
	"github.com/mnemo-app/mnemo/fs"
	"github.com/mnemo-app/mnemo/log"
	"github.com/mnemo-app/mnemo/notifications"
	"github.com/mnemo-app/mnemo/search"
	"github.com/mnemo-app/mnemo/taskqueue"
)

func main() {
	cfg := config.Get()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}

	_ = db.GetDB()
	log.Info().Str("path", cfg.DatabasePath).Msg("database initialized")

	// Core services
	registry := digest.DefaultRegistry()
	store := digest.CatalogStore{}
	blobs := digest.SqlarBlobs{}
	notifier := notifications.NewService()

	coordinator := digest.NewCoordinator(store, blobs, registry, notifier, cfg.DigestMaxAttempts)
	supervisor := digest.NewSupervisor(digest.SupervisorConfigFromEnv(), store, registry, coordinator)

	worker := taskqueue.NewWorker()
	worker.Register(digest.TaskKeywordIndex, search.HandleKeywordIndex)
	worker.Register(digest.TaskSemanticIndex, search.HandleSemanticIndex)
	digest.SetTaskEnqueuer(taskqueue.Enqueue)

	// Watcher feeds catalog changes into the digest pipeline and the UI
	watcher := fs.NewWatcher(cfg.DataDir, fs.NewPathFilter(cfg.DigestExcludedPrefixes))
	watcher.Subscribe(func(event fs.FileChangeEvent) {
		supervisor.Notify(event.FilePath, event.ShouldInvalidateDigests())

		operation := "updated"
		if event.IsNew {
			operation = "created"
		}
		notifier.NotifyCatalogChanged(event.FilePath, operation)
	})

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(log.RequestLogger())
	router.SetTrustedProxies(nil)

	handlers := api.NewHandlers(registry, supervisor, coordinator, store, notifier)
	api.RegisterRoutes(router, handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().Msg("starting background services")
	supervisor.Start(ctx)
	worker.Start(ctx)
	if err := watcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start filesystem watcher")
	}

	// Reconcile the catalog with disk, then make sure every file has its
	// digest rows
	go func() {
		if err := watcher.Scan(); err != nil {
			log.Error().Err(err).Msg("startup scan failed")
		}
		listPaths := func() ([]string, error) {
			return db.ListAllFilePaths(cfg.DigestExcludedPrefixes)
		}
		if err := digest.SyncAllFiles(store, registry, listPaths); err != nil {
			log.Error().Err(err).Msg("digest row sync failed")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:     addr,
		Handler:  router,
		ErrorLog: log.StdErrorLogger(),
	}

	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	watcher.Stop()
	supervisor.Stop()
	worker.Stop()
	notifier.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("database close error")
	}

	log.Info().Msg("stopped")
}
