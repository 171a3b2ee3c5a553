package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/ledger-backend/internal/adapter/postgres"
	"github.com/heartmarshall/ledger-backend/internal/adapter/postgres/ledgerstore"
	"github.com/heartmarshall/ledger-backend/internal/auth"
	"github.com/heartmarshall/ledger-backend/internal/config"
	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
	"github.com/heartmarshall/ledger-backend/internal/ratelimit"
	"github.com/heartmarshall/ledger-backend/internal/service/audit"
	"github.com/heartmarshall/ledger-backend/internal/service/consent"
	"github.com/heartmarshall/ledger-backend/internal/service/integrity"
	"github.com/heartmarshall/ledger-backend/internal/transport/rest"
)

// Ledger names, also the ledger column in storage.
const (
	AuditLedger   = "audit"
	ConsentLedger = "consent"
)

// Run is the application entry point. It loads configuration, restores the
// ledgers from PostgreSQL when a DSN is set, serves HTTP and blocks until
// ctx is cancelled or a component fails. Background tasks are stopped and
// pending entries flushed before it returns.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
		slog.Bool("persistence", cfg.Database.Enabled()),
	)

	opts := LedgerOptions(cfg, logger)
	auditLedger := ledger.New[domain.AuditAction](AuditLedger, opts...)
	consentLedger := ledger.New[domain.ConsentAction](ConsentLedger, opts...)

	// Background tasks start only once everything is built.
	var tasks []func(context.Context) error

	// pinger stays a nil interface without a pool so health skips the DB.
	var pinger interface{ Ping(context.Context) error }
	if cfg.Database.Enabled() {
		pool, err := openDatabase(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		pinger = pool

		store := ledgerstore.New(pool, postgres.NewTxManager(pool))
		if err := RestoreLedger(ctx, store, auditLedger, cfg.Ledger.MaxEntries); err != nil {
			return err
		}
		if err := RestoreLedger(ctx, store, consentLedger, cfg.Ledger.MaxEntries); err != nil {
			return err
		}
		logger.Info("ledgers restored",
			slog.Uint64("audit_sequence", auditLedger.Sequence()),
			slog.Uint64("consent_sequence", consentLedger.Sequence()),
		)

		auditPersister := ledger.NewPersister(auditLedger, store, logger, cfg.Ledger.PersistBatchSize, cfg.Ledger.PersistRetryInterval)
		consentPersister := ledger.NewPersister(consentLedger, store, logger, cfg.Ledger.PersistBatchSize, cfg.Ledger.PersistRetryInterval)
		tasks = append(tasks, auditPersister.Run, consentPersister.Run)
	}

	watchdog := integrity.NewWatchdog(logger, cfg.Ledger.VerifyInterval, cfg.Ledger.VerifyTimeout, auditLedger, consentLedger)
	if cfg.Ledger.VerifyInterval > 0 {
		tasks = append(tasks, watchdog.Run)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New()
		tasks = append(tasks, func(ctx context.Context) error {
			return limiter.Run(ctx, cfg.RateLimit.SweepInterval)
		})
	}

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	handler, err := rest.NewRouter(rest.RouterDeps{
		Audit:      rest.NewAuditHandler(audit.NewService(logger, auditLedger), logger),
		Consent:    rest.NewConsentHandler(consent.NewService(logger, consentLedger), logger),
		Health:     rest.NewHealthHandler(pinger, watchdog, BuildVersion()),
		Tokens:     tokens,
		Logger:     logger,
		CORS:       cfg.CORS,
		TrustProxy: cfg.Server.TrustProxy,
		Limiter:    limiter,
		Presets:    cfg.RateLimit.Presets(),
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error { return task(gctx) })
	}

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("application stopped")
	return err
}

// LedgerOptions returns the options shared by every ledger.
func LedgerOptions(cfg *config.Config, logger *slog.Logger) []ledger.Option {
	return []ledger.Option{
		ledger.WithDigest(ledger.Digest(cfg.Ledger.Digest)),
		ledger.WithMaxEntries(cfg.Ledger.MaxEntries),
		ledger.WithCheckpointSigner(auth.NewCheckpointSigner(cfg.Auth.CheckpointKey(), cfg.Auth.JWTIssuer)),
		ledger.WithLogger(logger),
	}
}

type chainLoader interface {
	Load(ctx context.Context, name string, tail int) ([]ledger.Record, *ledger.Checkpoint, error)
}

// RestoreLedger loads the persisted tail of l (tail <= 0: everything) and
// verifies it into l. A damaged chain is refused.
func RestoreLedger[A ledger.Action](ctx context.Context, store chainLoader, l *ledger.Ledger[A], tail int) error {
	records, anchor, err := store.Load(ctx, l.Name(), tail)
	if err != nil {
		return fmt.Errorf("load ledger %s: %w", l.Name(), err)
	}
	if err := l.Restore(records, anchor); err != nil {
		return err
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, cfg.DSN, logger); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database",
		slog.Int("max_conns", int(cfg.MaxConns)),
	)
	return pool, nil
}
