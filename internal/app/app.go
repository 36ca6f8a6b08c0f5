// Package app wires the gatehouse runtime: config, logging, persistence,
// the session manager and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gatehouse/identity"
	"gatehouse/internal/auth/api"
	"gatehouse/internal/auth/session"
	"gatehouse/internal/metrics"
	"gatehouse/security/password"
)

// App owns the HTTP server wiring and the lifecycle of every backing store.
type App struct {
	cfg Config
	log Logger

	metrics *metrics.Metrics

	dbPool   *pgxpool.Pool
	sessions session.Store
	accounts identity.AccountStore

	mgr  *session.Manager
	auth *api.Handler

	closers []func(context.Context) error
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	a := &App{cfg: cfg, log: log}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	if err := a.initStores(context.Background()); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		a.closeAll(context.Background())
		return nil, err
	}
	hasher, err := password.FromEnv()
	if err != nil {
		a.closeAll(context.Background())
		return nil, err
	}

	mgr, err := session.NewManager(sessCfg, log, hasher, a.accounts, a.sessions)
	if err != nil {
		a.closeAll(context.Background())
		return nil, err
	}
	a.mgr = mgr

	authHandler, err := api.NewHandler(log, api.LoadConfigFromEnv(), mgr, a.accounts, hasher,
		api.WithMetrics(a.metrics))
	if err != nil {
		a.closeAll(context.Background())
		return nil, err
	}
	a.auth = authHandler

	return a, nil
}

// Manager exposes the session manager, mainly for tests and tooling.
func (a *App) Manager() *session.Manager { return a.mgr }

// initStores builds the account store and the session store for the
// configured backend.
func (a *App) initStores(ctx context.Context) error {
	backend := a.cfg.Backend()

	if a.cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("app: db pool: %w", err)
		}
		a.dbPool = pool
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})

		if a.cfg.DBMigrate {
			if err := MigrateDB(ctx, pool); err != nil {
				a.closeAll(ctx)
				return fmt.Errorf("app: migrate: %w", err)
			}
		}

		accounts, err := identity.NewPostgresStore(pool)
		if err != nil {
			a.closeAll(ctx)
			return err
		}
		a.accounts = accounts
		a.log.Info("accounts.store", "backend", "postgres")
	} else {
		a.accounts = identity.NewMemoryStore()
		a.log.Info("accounts.store", "backend", "memory")
	}

	switch backend {
	case BackendPostgres:
		if a.dbPool == nil {
			return errors.New("app: session backend postgres requires GATEHOUSE_DATABASE_URL")
		}
		store, err := session.NewPostgresStore(a.dbPool)
		if err != nil {
			a.closeAll(ctx)
			return err
		}
		a.sessions = store
	case BackendRedis:
		client, err := NewRedisClient(ctx, a.cfg)
		if err != nil {
			a.closeAll(ctx)
			return err
		}
		store, err := session.NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			a.closeAll(ctx)
			return err
		}
		a.sessions = store
	case BackendBolt:
		store, err := session.OpenBoltStore(a.cfg.BoltPath)
		if err != nil {
			a.closeAll(ctx)
			return err
		}
		a.sessions = store
	case BackendMemory:
		a.sessions = session.NewMemoryStore()
	default:
		return fmt.Errorf("app: unknown session backend %q", backend)
	}
	a.closers = append(a.closers, func(context.Context) error {
		return a.sessions.Close()
	})
	a.log.Info("sessions.store", "backend", backend)
	return nil
}

func (a *App) closeAll(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}
	a.closers = nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.metrics, a.auth)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log, a.metrics),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "session_backend", a.cfg.Backend())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.closeAll(shutdownCtx)
	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
