package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/labs"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/auth"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// RoleAdmin may verify the whole chain.
const RoleAdmin = "admin"

// ResultFinder resolves a result owned by a user.
type ResultFinder interface {
	FindForUser(ctx context.Context, userID, id types.ID) (*labs.BloodTestResult, error)
}

// Handler provides HTTP handlers for the audit module
type Handler struct {
	repo    Repository
	results ResultFinder
}

// NewHandler creates a new audit handler
func NewHandler(repo Repository, results ResultFinder) *Handler {
	return &Handler{repo: repo, results: results}
}

// Routes registers the audit routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/verify", h.VerifyChain)
	r.Get("/results/{resultID}", h.ListByResult)

	return r
}

// entryView adds the per-entry hash check to the stored entry.
type entryView struct {
	AuditEntry
	Verified bool `json:"verified"`
}

// ListByResult lists audit entries for a result owned by the caller
func (h *Handler) ListByResult(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.AuthMissing("authentication required"))
		return
	}

	resultID, err := types.ParseID(chi.URLParam(r, "resultID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid result ID"))
		return
	}

	if _, err := h.results.FindForUser(r.Context(), user.ID, resultID); err != nil {
		writeError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.repo.ListByResult(r.Context(), resultID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{AuditEntry: e, Verified: e.VerifyHash()})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": views,
		"count":   len(views),
	})
}

// VerifyChain verifies the most recent part of the chain (admin only)
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.AuthMissing("authentication required"))
		return
	}
	if user.Role != RoleAdmin {
		writeError(w, errors.Forbidden("admin access required"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, VerifyChain(entries))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes only the machine-readable code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := errors.CodeInternal
	if appErr, ok := errors.As(err); ok {
		status = appErr.HTTPStatus
		code = appErr.Code
	}
	writeJSON(w, status, map[string]string{"error": code})
}
