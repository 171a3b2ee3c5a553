package rest

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heartmarshall/ledger-backend/internal/config"
	"github.com/heartmarshall/ledger-backend/internal/ratelimit"
	"github.com/heartmarshall/ledger-backend/internal/transport/middleware"
)

type tokenValidator interface {
	ValidateAccessToken(token string) (subject string, role string, err error)
}

// RouterDeps holds everything NewRouter wires together.
type RouterDeps struct {
	Audit   *AuditHandler
	Consent *ConsentHandler
	Health  *HealthHandler
	Tokens  tokenValidator
	Logger  *slog.Logger

	CORS       config.CORSConfig
	TrustProxy bool

	// Limiter is nil when rate limiting is disabled.
	Limiter *ratelimit.Limiter
	Presets ratelimit.Presets
}

// NewRouter builds the HTTP handler: probes at the root and the ledger
// API under /api/v1.
func NewRouter(d RouterDeps) (http.Handler, error) {
	limit := func(p ratelimit.Preset) (func(http.Handler) http.Handler, error) {
		if d.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }, nil
		}
		cfg, err := d.Presets.Get(p)
		if err != nil {
			return nil, err
		}
		return middleware.RateLimit(d.Limiter, p, cfg, d.Logger), nil
	}

	limits := make(map[ratelimit.Preset]func(http.Handler) http.Handler)
	for _, p := range []ratelimit.Preset{ratelimit.PresetAPI, ratelimit.PresetAdmin, ratelimit.PresetIngest, ratelimit.PresetConsent} {
		mw, err := limit(p)
		if err != nil {
			return nil, fmt.Errorf("rate limit preset: %w", err)
		}
		limits[p] = mw
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recovery(d.Logger),
		middleware.Logger(d.Logger),
		middleware.CORS(d.CORS),
		middleware.ClientInfo(d.TrustProxy),
	)

	r.Get("/live", d.Health.Live)
	r.Get("/ready", d.Health.Ready)
	r.Get("/health", d.Health.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.Tokens), middleware.RequireAuth)

		r.Route("/audit", func(r chi.Router) {
			r.With(limits[ratelimit.PresetIngest]).Post("/events", d.Audit.Record)
			r.With(limits[ratelimit.PresetAPI]).Get("/entries", d.Audit.Entries)

			r.Group(func(r chi.Router) {
				r.Use(middleware.AdminOnly, limits[ratelimit.PresetAdmin])
				r.Get("/stats", d.Audit.Stats)
				r.Get("/verify", d.Audit.Verify)
			})
		})

		r.Route("/consent", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limits[ratelimit.PresetConsent])
				r.Post("/outcomes", d.Consent.RecordOutcome)
				r.Post("/submissions", d.Consent.RecordSubmission)
			})

			r.Group(func(r chi.Router) {
				r.Use(limits[ratelimit.PresetAPI])
				r.Get("/users/{userID}/jobs/{jobID}/applied", d.Consent.HasApplied)
				r.Get("/users/{userID}/success-rate", d.Consent.SuccessRate)
				r.Get("/users/{userID}/entries", d.Consent.UserEntries)
				r.Get("/packages/{packageID}/entries", d.Consent.PackageEntries)
				r.Get("/consents/{consentID}/entries", d.Consent.ConsentEntries)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.AdminOnly, limits[ratelimit.PresetAdmin])
				r.Get("/stats", d.Consent.Stats)
				r.Get("/verify", d.Consent.Verify)
			})
		})
	})

	return r, nil
}
