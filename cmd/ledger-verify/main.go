// Command ledger-verify loads a persisted ledger from PostgreSQL and checks
// its hash chain offline. It is intended to be invoked by an external cron
// job or by an operator after an integrity alert.
//
// Usage:
//
//	ledger-verify --ledger=audit [--tail=10000]
//
// Exit codes: 0 = chain valid, 1 = error, 2 = integrity failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/heartmarshall/ledger-backend/internal/adapter/postgres"
	"github.com/heartmarshall/ledger-backend/internal/adapter/postgres/ledgerstore"
	"github.com/heartmarshall/ledger-backend/internal/app"
	"github.com/heartmarshall/ledger-backend/internal/auth"
	"github.com/heartmarshall/ledger-backend/internal/config"
	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

func main() {
	name := flag.String("ledger", app.AuditLedger, "ledger to verify (audit or consent)")
	tail := flag.Int("tail", 0, "verify only the newest N entries (0 = all)")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall time limit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	if !cfg.Database.Enabled() {
		logger.Error("DATABASE_DSN is required")
		os.Exit(exitError)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(exitError)
	}
	defer pool.Close()

	store := ledgerstore.New(pool, postgres.NewTxManager(pool))
	records, anchor, err := store.Load(ctx, *name, *tail)
	if err != nil {
		logger.Error("load ledger", slog.String("ledger", *name), slog.String("error", err.Error()))
		os.Exit(exitCode(ledger.VerifyResult{}, err))
	}

	var res ledger.VerifyResult
	switch *name {
	case app.AuditLedger:
		res, err = verify[domain.AuditAction](ctx, cfg, records, anchor)
	case app.ConsentLedger:
		res, err = verify[domain.ConsentAction](ctx, cfg, records, anchor)
	default:
		fmt.Fprintf(os.Stderr, "unknown ledger %q\n", *name)
		os.Exit(exitError)
	}
	if code := exitCode(res, err); code != exitOK {
		msg := "ledger integrity failure"
		if code == exitError {
			msg = "verification did not complete"
		}
		detail := ""
		switch {
		case err != nil:
			detail = err.Error()
		case res.Failure != nil:
			detail = res.Failure.Error()
		}
		logger.Error(msg,
			slog.String("ledger", *name),
			slog.Int("checked", res.Checked),
			slog.String("error", detail),
		)
		os.Exit(code)
	}

	logger.Info("ledger verified",
		slog.String("ledger", *name),
		slog.Int("checked", res.Checked),
	)
}

const (
	exitOK        = 0
	exitError     = 1
	exitIntegrity = 2
)

// exitCode maps a verification outcome to the process exit status. Errors
// wrapping domain.ErrIntegrity (a missing anchor row, an unknown stored
// action) count as integrity failures.
func exitCode(res ledger.VerifyResult, err error) int {
	switch {
	case errors.Is(err, domain.ErrIntegrity):
		return exitIntegrity
	case err != nil:
		return exitError
	case !res.Valid:
		return exitIntegrity
	}
	return exitOK
}

// verify checks the anchor signature when the stored checkpoint carries
// one, then walks the chain.
func verify[A ledger.Action](ctx context.Context, cfg *config.Config, records []ledger.Record, anchor *ledger.Checkpoint) (ledger.VerifyResult, error) {
	entries := make([]ledger.Entry[A], 0, len(records))
	for i, r := range records {
		e, err := ledger.FromRecord[A](r)
		if err != nil {
			var ie *domain.IntegrityError
			if errors.As(err, &ie) {
				ie.Index = i
			}
			return ledger.VerifyResult{Checked: i}, err
		}
		entries = append(entries, e)
	}

	anchorHash := ""
	if anchor != nil {
		anchorHash = anchor.Hash
		if anchor.Signature != "" {
			signer := auth.NewCheckpointSigner(cfg.Auth.CheckpointKey(), cfg.Auth.JWTIssuer)
			if err := signer.VerifyCheckpoint(*anchor); err != nil {
				return ledger.VerifyResult{
					Verified: true,
					Failure: &domain.IntegrityError{
						Index:    0,
						Kind:     domain.IntegrityCheckpointMismatch,
						Expected: "valid checkpoint signature",
						Actual:   err.Error(),
					},
				}, nil
			}
		}
	}

	return ledger.VerifyEntries(ctx, entries, anchorHash, ledger.Digest(cfg.Ledger.Digest))
}
