package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/dyad/internal/api"
	"github.com/soaringjerry/dyad/internal/middleware"
	"github.com/soaringjerry/dyad/internal/queue"
	"github.com/soaringjerry/dyad/internal/services"
	"github.com/soaringjerry/dyad/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the report worker when Redis is configured)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadRuntime()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "dyad", cfg.OTLPEndpoint, cfg.Commit)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := middleware.NewRateLimiter(cfg.CreateRateLimit, cfg.CreateRateBurst)
	if err := limiter.TrustProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("DYAD_TRUSTED_PROXIES: %w", err)
	}

	adminAuth := middleware.NewAdminAuth(cfg.JWTSecret)
	if !cfg.AdminEnabled() {
		slog.Info("admin API disabled; set DYAD_JWT_SECRET and DYAD_ADMIN_PASSWORD_HASH to enable")
	}
	deps := api.Deps{
		Store:             store,
		AdminAuth:         adminAuth,
		AdminPasswordHash: cfg.AdminPasswordHash,
		AdminTokenTTL:     cfg.AdminTokenTTL,
		CreateLimiter:     limiter,
		CORSOrigins:       cfg.CORSOrigins,
		StaticDir:         cfg.StaticDir,
		Commit:            cfg.Commit,
		BuildTime:         cfg.BuildTime,
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.RedisURL != "" {
		client, err := queue.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		deps.Notifier = queue.NewReportNotifier(client)
		worker, err := queue.NewWorker(cfg.RedisURL, 4, services.NewReportService(store))
		if err != nil {
			return err
		}
		g.Go(func() error { return worker.Run(gctx) })
		slog.Info("report worker enabled")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(deps).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	g.Go(func() error {
		slog.Info("dyad server listening", "addr", cfg.Addr, "store", cfg.StoreDriver, "commit", cfg.Commit)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
