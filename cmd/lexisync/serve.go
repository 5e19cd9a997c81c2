package main

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vytor/lexisync/internal/api"
	"github.com/vytor/lexisync/internal/cache"
	"github.com/vytor/lexisync/internal/config"
	"github.com/vytor/lexisync/internal/db"
	"github.com/vytor/lexisync/internal/engine"
	"github.com/vytor/lexisync/internal/identity"
	"github.com/vytor/lexisync/internal/jobs"
	"github.com/vytor/lexisync/internal/mirror"
	"github.com/vytor/lexisync/internal/reconcile"
	"github.com/vytor/lexisync/internal/repository/sqlite"
	"github.com/vytor/lexisync/internal/session"
	"github.com/vytor/lexisync/internal/worker"
)

func serveCmd() *cobra.Command {
	var addr, dbPath, mirrorURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the device engine and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(func(c *config.Config) {
				if cmd.Flags().Changed("addr") {
					c.Addr = addr
				}
				if cmd.Flags().Changed("db") {
					c.DBPath = dbPath
				}
				if cmd.Flags().Changed("mirror-url") {
					c.MirrorURL = mirrorURL
				}
			})
			if err != nil {
				return err
			}

			log.Info("LexiSync %s starting", version)
			log.Debug("addr=%s db_path=%s mirror_url=%q log_level=%s", cfg.Addr, cfg.DBPath, cfg.MirrorURL, cfg.LogLevel)
			log.Debug("sync_worker_count=%d sync_queue_size=%d remote_timeout=%v", cfg.SyncWorkerCount, cfg.SyncQueueSize, cfg.RemoteTimeout())

			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() {
				log.Debug("closing database connection")
				database.Close()
			}()

			var remote mirror.Mirror
			if cfg.MirrorURL != "" {
				log.Info("using remote mirror at %s", cfg.MirrorURL)
				remote = mirror.NewClient(cfg.MirrorURL, cfg.RemoteTimeout())
			} else {
				mirrorDB, err := db.Open(cfg.MirrorDBPath)
				if err != nil {
					return err
				}
				defer mirrorDB.Close()
				store := mirror.NewStore(sqlite.NewMirrorRepository(mirrorDB.DB))
				defer store.Close()
				log.Info("using embedded mirror store at %s", cfg.MirrorDBPath)
				remote = store
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			blobs := sqlite.NewBlobRepository(database.DB)
			rec := reconcile.New(remote, time.Now)

			pool := worker.NewPool(cfg.SyncWorkerCount, cfg.SyncQueueSize)
			pool.Start(ctx)

			eng := engine.New(engine.Deps{
				Cache:      cache.New(blobs),
				Identities: identity.NewStore(blobs),
				Reconciler: rec,
				Queue:      jobs.NewWorkerQueue(pool, rec),
			}, engine.Options{
				Now:  time.Now,
				Rand: rand.New(rand.NewSource(time.Now().UnixNano())),
				Session: session.Config{
					DueLimit:         cfg.SessionDueLimit,
					Size:             cfg.SessionSize,
					MaxPresentations: cfg.SessionMaxPresentations,
				},
			})
			if err := eng.Start(ctx); err != nil {
				pool.Stop()
				return err
			}

			srv := api.NewServer(eng, database, cfg.RemoteTimeout()*2)
			httpServer := &http.Server{
				Addr:              cfg.Addr,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("HTTP server listening on %s", cfg.Addr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				log.Info("shutdown signal received, initiating graceful shutdown")
			case err := <-errCh:
				if err != nil {
					log.Error("HTTP server error: %v", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			log.Debug("shutting down HTTP server")
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error: %v", err)
			}
			log.Debug("stopping engine")
			eng.Stop()
			log.Debug("stopping sync pool")
			pool.Stop()

			log.Info("LexiSync stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "local database path (overrides DB_PATH)")
	cmd.Flags().StringVar(&mirrorURL, "mirror-url", "", "remote mirror base URL (overrides MIRROR_URL)")
	return cmd
}
