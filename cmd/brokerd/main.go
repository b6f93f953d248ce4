// Command brokerd runs the session and execution broker daemon: it
// wires C1-C10 together and serves the five tool operations over MCP
// on stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sandkasten/broker/internal/admission"
	"github.com/sandkasten/broker/internal/broker"
	"github.com/sandkasten/broker/internal/config"
	"github.com/sandkasten/broker/internal/exec"
	"github.com/sandkasten/broker/internal/health"
	"github.com/sandkasten/broker/internal/policy"
	"github.com/sandkasten/broker/internal/port"
	"github.com/sandkasten/broker/internal/session"
	"github.com/sandkasten/broker/internal/store"
	"github.com/sandkasten/broker/internal/toolsurface"
	"github.com/sandkasten/broker/internal/workspace"
)

func main() {
	cfgPath := flag.String("config", "", "path to broker.yaml")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	started := time.Now()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fallback, err := store.OpenSQLiteFallback(cfg.DataDir + "/metadata.db")
	if err != nil {
		logger.Error("open fallback store", "error", err)
		os.Exit(1)
	}
	defer fallback.Close()

	var durable *store.PostgresStore
	if cfg.Store.Host != "" {
		dsn := fmt.Sprintf("host=%s port=%d password=%s dbname=broker sslmode=disable",
			cfg.Store.Host, cfg.Store.Port, cfg.Store.Password)
		durable, err = store.OpenPostgres(ctx, dsn, cfg.Store.DurableTTL, int32(cfg.Store.PoolMinConns), int32(cfg.Store.PoolMaxConns))
		if err != nil {
			logger.Warn("durable store unreachable, running on fallback tier only", "error", err)
			durable = nil
		} else {
			defer durable.Close()
		}
	}

	admissionCtl := admission.NewController(
		admission.RateLimitConfig{
			PointsPerWindow: cfg.RateLimit.Points,
			Window:          time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			BlockDuration:   time.Duration(cfg.RateLimit.BlockSeconds) * time.Second,
		},
		admission.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Breaker.ResetTimeout,
			RecoverSuccesses: cfg.Breaker.RecoverSuccesses,
		},
	)

	var durableTier interface {
		Put(context.Context, *session.Session) error
		Get(context.Context, string) (*session.Session, error)
		Delete(context.Context, string) error
		List(context.Context) ([]*session.Session, error)
		Close() error
	}
	if durable != nil {
		durableTier = durable
	}

	metrics := health.NewMetrics()

	metaStore := store.New(
		store.Config{NearCacheTTL: cfg.Store.NearCacheTTL, NearCacheMaxSize: cfg.Store.NearCacheMaxSize},
		durableTier, fallback, admissionCtl, metrics, logger,
	)

	wsMgr := workspace.New(cfg.DataDir, cfg.BaseWorkspaceConcurrency, logger)
	sessMgr := session.New(metaStore, wsMgr, metrics)
	screener := policy.New(5 * time.Minute)

	engine := exec.New(exec.Config{
		MaxConcurrency:   cfg.Defaults.MaxConcurrency,
		OutputCapBytes:   cfg.Defaults.OutputCapBytes,
		GraceSeconds:     cfg.Defaults.GraceSeconds,
		DefaultTimeoutMs: cfg.Defaults.DefaultTimeoutMs,
		MaxTimeoutMs:     cfg.Defaults.MaxTimeoutMs,
		Limits: exec.ResourceLimits{
			MemLimitMB: cfg.Defaults.MemLimitMB,
			PidsLimit:  cfg.Defaults.PidsLimit,
		},
	}, sessMgr, wsMgr, screener, metrics, logger)

	ports := port.New(cfg.WebIDE.PortRangeLow, cfg.WebIDE.PortRangeHigh, 30*time.Second)

	reporter := health.NewReporter(logger, metrics, started)
	reporter.AddCheck("metadata-store", func(checkCtx context.Context) (health.Status, error) {
		b := admissionCtl.Breaker("metadata-store")
		if b.State() == admission.CircuitOpen {
			return health.StatusDegraded, b.LastError()
		}
		return health.StatusHealthy, nil
	})

	logger.Info("provisioning language base workspaces")
	if err := wsMgr.EnsureBaseWorkspaces(ctx); err != nil {
		logger.Warn("base workspace provisioning reported an error", "error", err)
	}

	b := broker.New(broker.Deps{
		Sessions:             sessMgr,
		Engine:               engine,
		Workspaces:           wsMgr,
		Admission:            admissionCtl,
		Ports:                ports,
		Health:               reporter,
		Logger:               logger,
		HelperHost:           cfg.WebIDE.Host,
		HelperBinary:         cfg.WebIDE.HelperBinary,
		MaxSessionsPerClient: cfg.MaxSessionsPerClient,
	})

	stopCleanup := startCleanupLoop(ctx, sessMgr, wsMgr, cfg, logger)
	defer stopCleanup()

	srv := toolsurface.New(b, metrics, "sandkasten-broker", "1.0.0")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()
	}()

	logger.Info("broker ready", "data_dir", cfg.DataDir)
	if err := srv.Serve(ctx); err != nil {
		logger.Error("tool surface server error", "error", err)
		os.Exit(1)
	}
}

// startCleanupLoop periodically destroys expired sessions and sweeps
// session workspace directories left behind by any crashed run.
func startCleanupLoop(ctx context.Context, sessMgr *session.Manager, wsMgr *workspace.Manager, cfg *config.Config, logger *slog.Logger) func() {
	ticker := time.NewTicker(cfg.CleanupInterval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		maxAge := time.Duration(cfg.SessionTimeoutHours) * time.Hour
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-ticker.C:
				n, err := sessMgr.CleanupExpired(ctx, maxAge)
				if err != nil {
					logger.Warn("session cleanup failed", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired sessions", "count", n)
				}
				if removed, err := wsMgr.SweepStaleWorkspaces(maxAge); err != nil {
					logger.Warn("stale workspace sweep failed", "error", err)
				} else if len(removed) > 0 {
					logger.Info("swept stale workspaces", "count", len(removed))
				}
			}
		}
	}()

	return func() {
		<-done
	}
}
