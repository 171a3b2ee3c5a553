package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
	"github.com/heartmarshall/ledger-backend/internal/service/consent"
	"github.com/heartmarshall/ledger-backend/pkg/ctxutil"
)

type consentService interface {
	Record(ctx context.Context, o consent.Outcome) (consent.Entry, error)
	RecordSubmission(ctx context.Context, o consent.Outcome) (consent.Entry, error)
	HasUserAppliedToJob(ctx context.Context, userID, jobID string) bool
	UserSuccessRate(ctx context.Context, userID string) consent.SuccessRate
	UserEntries(ctx context.Context, userID string, f consent.Filter) []consent.Entry
	PackageEntries(ctx context.Context, packageID string, f consent.Filter) []consent.Entry
	ConsentEntries(ctx context.Context, consentID string, f consent.Filter) []consent.Entry
	Stats(ctx context.Context) (consent.Stats, error)
	Verify(ctx context.Context) (ledger.VerifyResult, error)
}

// ConsentHandler serves the consent ledger endpoints.
type ConsentHandler struct {
	svc consentService
	log *slog.Logger
}

// NewConsentHandler creates a ConsentHandler.
func NewConsentHandler(svc consentService, log *slog.Logger) *ConsentHandler {
	return &ConsentHandler{svc: svc, log: log.With("handler", "consent")}
}

type outcomeRequest struct {
	UserID    string         `json:"userId"`
	PackageID string         `json:"packageId"`
	JobID     string         `json:"jobId"`
	ConsentID string         `json:"consentId"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata"`
	IPAddress *string        `json:"ipAddress"`
	UserAgent *string        `json:"userAgent"`
}

func (req outcomeRequest) outcome() consent.Outcome {
	return consent.Outcome{
		UserID:    req.UserID,
		PackageID: req.PackageID,
		JobID:     req.JobID,
		ConsentID: req.ConsentID,
		Action:    domain.ConsentAction(req.Action),
		Metadata:  req.Metadata,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}
}

// RecordOutcome handles POST /consent/outcomes.
func (h *ConsentHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if err := h.authorizeUser(r, req.UserID); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	entry, err := h.svc.Record(r.Context(), req.outcome())
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// RecordSubmission handles POST /consent/submissions. The action in the
// body is ignored; a second submission for the same user and job is 409.
func (h *ConsentHandler) RecordSubmission(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if err := h.authorizeUser(r, req.UserID); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	entry, err := h.svc.RecordSubmission(r.Context(), req.outcome())
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type appliedResponse struct {
	UserID  string `json:"userId"`
	JobID   string `json:"jobId"`
	Applied bool   `json:"applied"`
}

// HasApplied handles GET /consent/users/{userID}/jobs/{jobID}/applied.
func (h *ConsentHandler) HasApplied(w http.ResponseWriter, r *http.Request) {
	userID, jobID := chi.URLParam(r, "userID"), chi.URLParam(r, "jobID")
	if err := h.authorizeUser(r, userID); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{
		UserID:  userID,
		JobID:   jobID,
		Applied: h.svc.HasUserAppliedToJob(r.Context(), userID, jobID),
	})
}

// SuccessRate handles GET /consent/users/{userID}/success-rate.
func (h *ConsentHandler) SuccessRate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.authorizeUser(r, userID); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.UserSuccessRate(r.Context(), userID))
}

// UserEntries handles GET /consent/users/{userID}/entries.
func (h *ConsentHandler) UserEntries(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.authorizeUser(r, userID); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	f, err := consentFilterFromQuery(r)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	h.writeEntries(w, h.svc.UserEntries(r.Context(), userID, f))
}

// PackageEntries handles GET /consent/packages/{packageID}/entries.
// Non-admin callers only see their own entries in the package.
func (h *ConsentHandler) PackageEntries(w http.ResponseWriter, r *http.Request) {
	f, err := h.scopedFilter(r)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	h.writeEntries(w, h.svc.PackageEntries(r.Context(), chi.URLParam(r, "packageID"), f))
}

// ConsentEntries handles GET /consent/consents/{consentID}/entries.
func (h *ConsentHandler) ConsentEntries(w http.ResponseWriter, r *http.Request) {
	f, err := h.scopedFilter(r)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	h.writeEntries(w, h.svc.ConsentEntries(r.Context(), chi.URLParam(r, "consentID"), f))
}

// Stats handles GET /consent/stats.
func (h *ConsentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeVerifyError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Verify handles GET /consent/verify.
func (h *ConsentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Verify(r.Context())
	if err != nil {
		writeVerifyError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ConsentHandler) writeEntries(w http.ResponseWriter, entries []consent.Entry) {
	writeJSON(w, http.StatusOK, entriesResponse[consent.Entry]{Entries: entries, Count: len(entries)})
}

// authorizeUser allows admins to act on any user and everyone else only on
// themselves.
func (h *ConsentHandler) authorizeUser(r *http.Request, userID string) error {
	ctx := r.Context()
	if ctxutil.IsAdminCtx(ctx) {
		return nil
	}
	caller, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}
	if caller != userID {
		return domain.ErrForbidden
	}
	return nil
}

func (h *ConsentHandler) scopedFilter(r *http.Request) (consent.Filter, error) {
	f, err := consentFilterFromQuery(r)
	if err != nil {
		return consent.Filter{}, err
	}
	if ctxutil.IsAdminCtx(r.Context()) {
		return f, nil
	}
	caller, ok := ctxutil.UserIDFromCtx(r.Context())
	if !ok {
		return consent.Filter{}, domain.ErrUnauthorized
	}
	f.ActorID = &caller
	return f, nil
}

func consentFilterFromQuery(r *http.Request) (consent.Filter, error) {
	limit, err := queryLimit(r, defaultLimit, maxLimit)
	if err != nil {
		return consent.Filter{}, err
	}
	from, err := queryTime(r, "from")
	if err != nil {
		return consent.Filter{}, err
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return consent.Filter{}, err
	}

	f := consent.Filter{
		ResourceID: queryString(r, "jobId"),
		From:       from,
		To:         to,
		Limit:      limit,
	}
	if raw := r.URL.Query().Get("action"); raw != "" {
		action := domain.ConsentAction(raw)
		if !action.IsValid() {
			return consent.Filter{}, domain.NewValidationError("action", "unknown action")
		}
		f.Action = &action
	}
	return f, nil
}
