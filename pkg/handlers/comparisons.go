package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/logging"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// ComparisonService is the orchestrator surface the handler exposes.
type ComparisonService interface {
	Compare(ctx context.Context, spec models.ComparisonSpec) (*models.ComparisonResult, error)
	ListDatabases() []models.DatabaseInfo
	CheckAvailability(ctx context.Context, name string) models.AvailabilityResult
	CheckAllAvailability(ctx context.Context) []models.AvailabilityResult
	ExplainCost(ctx context.Context, name, query string) (*models.CostEstimate, error)
}

// ComparisonHandler exposes the orchestrator's entry points over JSON.
type ComparisonHandler struct {
	orch   ComparisonService
	logger *zap.Logger
}

// NewComparisonHandler creates a handler over the given orchestrator.
func NewComparisonHandler(orch ComparisonService, logger *zap.Logger) *ComparisonHandler {
	return &ComparisonHandler{orch: orch, logger: logger}
}

// RegisterRoutes registers the comparison routes on the given mux.
func (h *ComparisonHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/databases", h.ListDatabases)
	mux.HandleFunc("GET /v1/availability", h.Availability)
	mux.HandleFunc("POST /v1/cost/explain", h.ExplainCost)
	mux.HandleFunc("POST /v1/compare", h.Compare)
}

// ListDatabases handles GET /v1/databases. The response is the redacted
// catalog view; credentials never leave the service.
func (h *ComparisonHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{"databases": h.orch.ListDatabases()}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode database list", zap.Error(err))
	}
}

// Availability handles GET /v1/availability. With ?database=name it probes
// one database, otherwise the whole catalog.
func (h *ComparisonHandler) Availability(w http.ResponseWriter, r *http.Request) {
	var results []models.AvailabilityResult
	if name := r.URL.Query().Get("database"); name != "" {
		results = []models.AvailabilityResult{h.orch.CheckAvailability(r.Context(), name)}
	} else {
		results = h.orch.CheckAllAvailability(r.Context())
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"results": results}); err != nil {
		h.logger.Error("Failed to encode availability results", zap.Error(err))
	}
}

// ExplainCostRequest is the POST /v1/cost/explain payload.
type ExplainCostRequest struct {
	Database string `json:"database"`
	Query    string `json:"query"`
}

// ExplainCost handles POST /v1/cost/explain: validate the query and return
// its normalized cost estimate without running it.
func (h *ComparisonHandler) ExplainCost(w http.ResponseWriter, r *http.Request) {
	var req ExplainCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Database == "" || req.Query == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "database and query are required")
		return
	}

	estimate, err := h.orch.ExplainCost(r.Context(), req.Database, req.Query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, estimate); err != nil {
		h.logger.Error("Failed to encode cost estimate", zap.Error(err))
	}
}

// Compare handles POST /v1/compare with a ComparisonSpec body.
func (h *ComparisonHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var spec models.ComparisonSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if spec.SourceDatabase == "" || spec.TargetDatabase == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "source_database and target_database are required")
		return
	}
	if len(spec.JoinColumns) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "join_columns must not be empty")
		return
	}

	result, err := h.orch.Compare(r.Context(), spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode comparison result", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Messages pass
// through the sanitizer so connection details never reach a client.
func (h *ComparisonHandler) writeError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperrors.KindValidationRejected:
		status = http.StatusBadRequest
	case apperrors.KindCostRejected:
		status = http.StatusUnprocessableEntity
	case apperrors.KindDatabaseUnavailable, apperrors.KindPoolExhausted:
		status = http.StatusServiceUnavailable
	case apperrors.KindTimeout:
		status = http.StatusGatewayTimeout
	case apperrors.KindUnsupportedFeature:
		status = http.StatusNotImplemented
	}
	if errors.Is(err, apperrors.ErrUnknownDatabase) {
		status = http.StatusNotFound
	}

	code := string(kind)
	if code == "" {
		code = "internal_error"
	}
	_ = ErrorResponse(w, status, code, logging.SanitizeError(err))
}
