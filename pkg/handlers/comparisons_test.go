package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

type stubService struct {
	compareResult *models.ComparisonResult
	compareErr    error
	estimate      *models.CostEstimate
	estimateErr   error
	availability  models.AvailabilityResult
}

func (s *stubService) Compare(context.Context, models.ComparisonSpec) (*models.ComparisonResult, error) {
	return s.compareResult, s.compareErr
}

func (s *stubService) ListDatabases() []models.DatabaseInfo {
	return []models.DatabaseInfo{{Name: "orders_pg", Engine: models.EnginePostgres, Host: "pg.internal"}}
}

func (s *stubService) CheckAvailability(_ context.Context, name string) models.AvailabilityResult {
	return s.availability
}

func (s *stubService) CheckAllAvailability(context.Context) []models.AvailabilityResult {
	return []models.AvailabilityResult{s.availability}
}

func (s *stubService) ExplainCost(context.Context, string, string) (*models.CostEstimate, error) {
	return s.estimate, s.estimateErr
}

func newTestMux(svc *stubService) *http.ServeMux {
	mux := http.NewServeMux()
	NewComparisonHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestListDatabasesReturnsRedactedCatalog(t *testing.T) {
	mux := newTestMux(&stubService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/databases", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orders_pg")
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestAvailabilitySingleDatabase(t *testing.T) {
	mux := newTestMux(&stubService{
		availability: models.AvailabilityResult{Database: "orders_pg", Available: true},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/availability?database=orders_pg", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":true`)
}

func TestExplainCostRejectsMissingFields(t *testing.T) {
	mux := newTestMux(&stubService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/cost/explain",
		strings.NewReader(`{"database":"orders_pg"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExplainCostReturnsEstimate(t *testing.T) {
	mux := newTestMux(&stubService{
		estimate: &models.CostEstimate{Database: "orders_pg", Acceptable: true, EstimatedSeconds: 0.4},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/cost/explain",
		strings.NewReader(`{"database":"orders_pg","query":"SELECT 1"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"acceptable":true`)
}

func TestCompareRequiresJoinColumns(t *testing.T) {
	mux := newTestMux(&stubService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/compare",
		strings.NewReader(`{"source_database":"a","target_database":"b","source_query":"SELECT 1","target_query":"SELECT 1"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "join_columns")
}

func TestCompareMapsErrorKindsToStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", apperrors.New(apperrors.KindValidationRejected, "not read-only"), http.StatusBadRequest},
		{"cost", apperrors.New(apperrors.KindCostRejected, "too expensive"), http.StatusUnprocessableEntity},
		{"unavailable", apperrors.New(apperrors.KindDatabaseUnavailable, "down"), http.StatusServiceUnavailable},
		{"pool", apperrors.New(apperrors.KindPoolExhausted, "busy"), http.StatusServiceUnavailable},
		{"timeout", apperrors.New(apperrors.KindTimeout, "deadline"), http.StatusGatewayTimeout},
		{"unknown database", apperrors.Wrap(apperrors.KindValidationRejected,
			"unknown database: nope", apperrors.ErrUnknownDatabase), http.StatusNotFound},
	}

	body := `{"source_database":"a","target_database":"b","source_query":"SELECT 1","target_query":"SELECT 1","join_columns":["id"]}`
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&stubService{compareErr: tt.err})
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/compare", strings.NewReader(body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCompareReturnsResult(t *testing.T) {
	mux := newTestMux(&stubService{
		compareResult: &models.ComparisonResult{
			Summary: &models.ComparisonSummary{Matched: 4, MismatchedRows: 1},
		},
	})

	body := `{"source_database":"a","target_database":"b","source_query":"SELECT 1","target_query":"SELECT 1","join_columns":["id"]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/compare", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matched":4`)
}
