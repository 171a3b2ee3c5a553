package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/heartmarshall/ledger-backend/internal/domain"
	"github.com/heartmarshall/ledger-backend/internal/ledger"
	"github.com/heartmarshall/ledger-backend/internal/service/audit"
	"github.com/heartmarshall/ledger-backend/pkg/ctxutil"
)

type auditService interface {
	Record(ctx context.Context, input audit.RecordInput) (audit.Entry, error)
	Entries(ctx context.Context, f audit.Filter) []audit.Entry
	Stats(ctx context.Context, recent int) (audit.Stats, error)
	Verify(ctx context.Context) (ledger.VerifyResult, error)
}

// AuditHandler serves the audit ledger endpoints.
type AuditHandler struct {
	svc auditService
	log *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(svc auditService, log *slog.Logger) *AuditHandler {
	return &AuditHandler{svc: svc, log: log.With("handler", "audit")}
}

type recordAuditRequest struct {
	ActorID    *string         `json:"actorId"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID *string         `json:"resourceId"`
	Details    json.RawMessage `json:"details"`
	IPAddress  *string         `json:"ipAddress"`
	UserAgent  *string         `json:"userAgent"`
}

type entriesResponse[E any] struct {
	Entries []E `json:"entries"`
	Count   int `json:"count"`
}

// Record handles POST /audit/events. Callers without a privileged role
// always record as themselves. Admin and system callers record the actorId
// they send, including none.
func (h *AuditHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordAuditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, h.log, err)
		return
	}

	action := domain.AuditAction(req.Action)
	details, err := domain.DecodeAuditDetails(action, req.Details)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	actor := req.ActorID
	if userID, ok := ctxutil.UserIDFromCtx(r.Context()); ok && !ctxutil.IsAdminCtx(r.Context()) {
		actor = &userID
	}

	entry, err := h.svc.Record(r.Context(), audit.RecordInput{
		ActorID:    actor,
		Action:     action,
		Resource:   req.Resource,
		ResourceID: req.ResourceID,
		Details:    details,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	})
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Entries handles GET /audit/entries. Non-admin callers only see entries
// they are the actor of.
func (h *AuditHandler) Entries(w http.ResponseWriter, r *http.Request) {
	f, err := auditFilterFromQuery(r)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if !ctxutil.IsAdminCtx(r.Context()) {
		userID, ok := ctxutil.UserIDFromCtx(r.Context())
		if !ok {
			handleError(w, r, h.log, domain.ErrUnauthorized)
			return
		}
		f.ActorID = &userID
	}

	entries := h.svc.Entries(r.Context(), f)
	writeJSON(w, http.StatusOK, entriesResponse[audit.Entry]{Entries: entries, Count: len(entries)})
}

// Stats handles GET /audit/stats.
func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	recent := audit.DefaultRecentCount
	if raw := r.URL.Query().Get("recent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			handleError(w, r, h.log, domain.NewValidationError("recent", "must be a positive integer"))
			return
		}
		recent = min(n, audit.MaxLimit)
	}

	st, err := h.svc.Stats(r.Context(), recent)
	if err != nil {
		h.verifyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Verify handles GET /audit/verify.
func (h *AuditHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Verify(r.Context())
	if err != nil {
		h.verifyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AuditHandler) verifyError(w http.ResponseWriter, r *http.Request, err error) {
	writeVerifyError(w, r, h.log, err)
}

// writeVerifyError reports an interrupted verification as 503; it is
// never a pass.
func writeVerifyError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "verification interrupted")
		return
	}
	handleError(w, r, log, err)
}

func auditFilterFromQuery(r *http.Request) (audit.Filter, error) {
	limit, err := queryLimit(r, audit.DefaultLimit, audit.MaxLimit)
	if err != nil {
		return audit.Filter{}, err
	}
	from, err := queryTime(r, "from")
	if err != nil {
		return audit.Filter{}, err
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return audit.Filter{}, err
	}

	f := audit.Filter{
		ActorID:    queryString(r, "actorId"),
		Resource:   queryString(r, "resource"),
		ResourceID: queryString(r, "resourceId"),
		From:       from,
		To:         to,
		Limit:      limit,
	}
	if raw := r.URL.Query().Get("action"); raw != "" {
		action := domain.AuditAction(raw)
		if !action.IsValid() {
			return audit.Filter{}, domain.NewValidationError("action", "unknown action")
		}
		f.Action = &action
	}
	return f, nil
}
