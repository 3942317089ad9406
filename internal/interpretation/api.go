package interpretation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/auth"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// Interpreter is the pipeline behind the HTTP handlers.
type Interpreter interface {
	Summarize(ctx context.Context, userID, resultID types.ID) (*SummaryResult, error)
	FlagRisk(ctx context.Context, userID, resultID types.ID) (*RiskResult, error)
}

// Handler provides HTTP handlers for the interpretation module
type Handler struct {
	service Interpreter
}

// NewHandler creates a new interpretation handler
func NewHandler(service Interpreter) *Handler {
	return &Handler{service: service}
}

// Routes registers the interpretation routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/summary", h.Summary)
	r.Post("/risk-flags", h.RiskFlags)

	return r
}

// Summary generates a plain-language summary for a result
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, resultID, err := parseRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.Summarize(r.Context(), userID, resultID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SummaryResponse{AISummary: res.Summary})
}

// RiskFlags generates or returns the risk assessment for a result
func (h *Handler) RiskFlags(w http.ResponseWriter, r *http.Request) {
	userID, resultID, err := parseRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.FlagRisk(r.Context(), userID, resultID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RiskFlagsResponse{
		AIFlags:     res.Assessment,
		AIRiskScore: res.Score,
	})
}

// parseRequest resolves the caller and the result id. Authentication is
// checked before the body is read.
func parseRequest(r *http.Request) (types.ID, types.ID, error) {
	user := auth.GetUser(r.Context())
	if user == nil || user.ID.IsZero() {
		return "", "", errors.AuthMissing("authentication required")
	}

	var req InterpretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", "", errors.BadRequest("invalid request body")
	}

	raw := strings.TrimSpace(req.ResultID)
	if raw == "" {
		return "", "", errors.BadRequest("resultId is required")
	}
	resultID, err := types.ParseID(raw)
	if err != nil {
		return "", "", errors.BadRequest("invalid resultId")
	}

	return user.ID, resultID, nil
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes only the machine-readable code. Messages and details
// stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := errors.CodeInternal
	if appErr, ok := errors.As(err); ok {
		status = appErr.HTTPStatus
		code = appErr.Code
	}
	writeJSON(w, status, map[string]string{"error": code})
}
