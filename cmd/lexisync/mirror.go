package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vytor/lexisync/internal/config"
	"github.com/vytor/lexisync/internal/db"
	"github.com/vytor/lexisync/internal/mirror"
	"github.com/vytor/lexisync/internal/repository/sqlite"
)

func mirrorCmd() *cobra.Command {
	var addr, dbPath string

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Run the shared remote mirror other devices sync through",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(func(c *config.Config) {
				if cmd.Flags().Changed("addr") {
					c.MirrorAddr = addr
				}
				if cmd.Flags().Changed("db") {
					c.MirrorDBPath = dbPath
				}
			})
			if err != nil {
				return err
			}
			log = log.WithPrefix("mirror")

			database, err := db.Open(cfg.MirrorDBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			store := mirror.NewStore(sqlite.NewMirrorRepository(database.DB))
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Request contexts derive from ctx so open subscriptions end on shutdown.
			httpServer := &http.Server{
				Addr:              cfg.MirrorAddr,
				Handler:           mirror.NewServer(store).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       120 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("mirror listening on %s (storage %s)", cfg.MirrorAddr, cfg.MirrorDBPath)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				log.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error("mirror shutdown error: %v", err)
			}
			log.Info("mirror stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides MIRROR_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "mirror database path (overrides MIRROR_DB_PATH)")
	return cmd
}
