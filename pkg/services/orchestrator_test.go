package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters"
	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine/postgres"
	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/audit"
	"github.com/crossdiff-io/crossdiff-engine/pkg/compare"
	"github.com/crossdiff-io/crossdiff-engine/pkg/cost"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

type stubHandle struct {
	name string
	plan *engine.RawPlan
}

func (s *stubHandle) Kind() models.EngineKind { return models.EnginePostgres }
func (s *stubHandle) Database() string        { return s.name }
func (s *stubHandle) Dialect() engine.Dialect { return postgres.Dialect{} }

func (s *stubHandle) Query(context.Context, string) (*engine.QueryResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubHandle) ExplainPlan(context.Context, string) (*engine.RawPlan, error) {
	if s.plan == nil {
		return nil, errors.New("plan unavailable")
	}
	return s.plan, nil
}

func (s *stubHandle) Ping(context.Context) (string, error) { return "stub", nil }

func (s *stubHandle) Session(context.Context) (engine.Session, error) {
	return nil, errors.New("not implemented")
}

func (s *stubHandle) Close() error { return nil }

type stubRegistry struct {
	databases map[string]models.LogicalDatabase
	handles   map[string]*stubHandle
	acquired  []string
}

func (r *stubRegistry) Lookup(name string) (models.LogicalDatabase, error) {
	db, ok := r.databases[name]
	if !ok {
		return models.LogicalDatabase{}, apperrors.Wrap(apperrors.KindValidationRejected,
			"unknown database: "+name, apperrors.ErrUnknownDatabase)
	}
	return db, nil
}

func (r *stubRegistry) Acquire(_ context.Context, name string) (*adapters.Lease, error) {
	r.acquired = append(r.acquired, name)
	h, ok := r.handles[name]
	if !ok {
		return nil, apperrors.New(apperrors.KindDatabaseUnavailable, "no handle for "+name)
	}
	return &adapters.Lease{Handle: h}, nil
}

func (r *stubRegistry) List() []models.DatabaseInfo {
	var infos []models.DatabaseInfo
	for _, db := range r.databases {
		infos = append(infos, db.Info())
	}
	return infos
}

type stubProber struct {
	down   map[string]models.AvailabilityCause
	checks []string
}

func (p *stubProber) Check(_ context.Context, name string) models.AvailabilityResult {
	p.checks = append(p.checks, name)
	if cause, ok := p.down[name]; ok {
		return models.AvailabilityResult{Database: name, Cause: cause}
	}
	return models.AvailabilityResult{Database: name, Available: true}
}

func (p *stubProber) CheckAll(ctx context.Context) []models.AvailabilityResult {
	return nil
}

type stubDiffer struct {
	calls   int
	lastIn  compare.Input
	summary *models.ComparisonSummary
	err     error
	block   bool
}

func (d *stubDiffer) Run(ctx context.Context, in compare.Input) (*models.ComparisonSummary, []models.MismatchRow, error) {
	d.calls++
	d.lastIn = in
	if d.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	if d.err != nil {
		return nil, nil, d.err
	}
	return d.summary, nil, nil
}

type recordingSink struct {
	events []audit.Event
}

func (s *recordingSink) Record(event audit.Event) { s.events = append(s.events, event) }

func cheapPlan() *engine.RawPlan {
	return &engine.RawPlan{Postgres: &engine.PostgresPlan{
		NodeType: "Index Scan", TotalCost: 100, PlanRows: 50}}
}

func expensivePlan() *engine.RawPlan {
	// 10^10 cost units / 10^4 units-per-second = 10^6 estimated seconds.
	return &engine.RawPlan{Postgres: &engine.PostgresPlan{
		NodeType: "Seq Scan", TotalCost: 1e10, PlanRows: 5e9}}
}

type fixture struct {
	orch     *Orchestrator
	registry *stubRegistry
	prober   *stubProber
	differ   *stubDiffer
	sink     *recordingSink
}

func newFixture(srcPlan, tgtPlan *engine.RawPlan, opts Options) *fixture {
	registry := &stubRegistry{
		databases: map[string]models.LogicalDatabase{
			"src": {Name: "src", Engine: models.EnginePostgres, Staging: models.StagingTemp},
			"tgt": {Name: "tgt", Engine: models.EnginePostgres, Staging: models.StagingTemp},
		},
		handles: map[string]*stubHandle{
			"src": {name: "src", plan: srcPlan},
			"tgt": {name: "tgt", plan: tgtPlan},
		},
	}
	prober := &stubProber{}
	differ := &stubDiffer{summary: &models.ComparisonSummary{Matched: 5}}
	sink := &recordingSink{}
	orch := NewOrchestrator(registry, prober,
		cost.NewEstimator(cost.DefaultScales(), cost.DefaultThresholds()),
		differ, sink, opts, zap.NewNop())
	return &fixture{orch: orch, registry: registry, prober: prober, differ: differ, sink: sink}
}

func compareSpec() models.ComparisonSpec {
	return models.ComparisonSpec{
		SourceDatabase: "src",
		TargetDatabase: "tgt",
		SourceQuery:    "SELECT id FROM a",
		TargetQuery:    "SELECT id FROM b",
		JoinColumns:    []string{"id"},
		Requester:      "alice",
		RequesterRole:  "analyst",
	}
}

func TestCompareRejectsInvalidQueryBeforeTouchingDatabases(t *testing.T) {
	f := newFixture(cheapPlan(), cheapPlan(), Options{})
	spec := compareSpec()
	spec.TargetQuery = "DELETE FROM b"

	_, err := f.orch.Compare(context.Background(), spec)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidationRejected))

	// Nothing past gate 1 ran.
	assert.Empty(t, f.prober.checks)
	assert.Empty(t, f.registry.acquired)
	assert.Zero(t, f.differ.calls)

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, audit.OutcomeValidationRejected, f.sink.events[0].Outcome)
	assert.Contains(t, f.sink.events[0].ValidationCodes, "denied_keyword")
}

func TestCompareFailsFastOnUnavailableDatabase(t *testing.T) {
	f := newFixture(cheapPlan(), cheapPlan(), Options{})
	f.prober.down = map[string]models.AvailabilityCause{"tgt": models.CauseTimeout}

	_, err := f.orch.Compare(context.Background(), compareSpec())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDatabaseUnavailable))
	assert.Contains(t, err.Error(), "tgt")

	assert.Empty(t, f.registry.acquired)
	assert.Zero(t, f.differ.calls)
	require.Len(t, f.sink.events, 1)
	assert.Equal(t, audit.OutcomeDatabaseUnavailable, f.sink.events[0].Outcome)
}

func TestCompareProbesEachDatabaseOnce(t *testing.T) {
	f := newFixture(cheapPlan(), cheapPlan(), Options{})
	spec := compareSpec()
	spec.TargetDatabase = "src"
	spec.TargetQuery = spec.SourceQuery

	_, err := f.orch.Compare(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"src"}, f.prober.checks)
	// Same database on both sides: one lease serves both.
	assert.Equal(t, []string{"src"}, f.registry.acquired)
}

func TestCompareRejectsOnCostWithoutOverride(t *testing.T) {
	f := newFixture(cheapPlan(), expensivePlan(), Options{})

	_, err := f.orch.Compare(context.Background(), compareSpec())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindCostRejected))
	assert.Contains(t, err.Error(), "exceeds ceiling")
	assert.Zero(t, f.differ.calls)

	require.Len(t, f.sink.events, 1)
	event := f.sink.events[0]
	assert.Equal(t, audit.OutcomeCostRejected, event.Outcome)
	require.NotNil(t, event.TargetCost)
	assert.False(t, event.TargetCost.Acceptable)
}

func TestCompareRejectsOverrideFromUnprivilegedRole(t *testing.T) {
	f := newFixture(cheapPlan(), expensivePlan(), Options{PrivilegedRoles: []string{"admin"}})
	spec := compareSpec()
	spec.OverrideSafety = true // role stays "analyst"

	_, err := f.orch.Compare(context.Background(), spec)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindCostRejected))
	assert.Zero(t, f.differ.calls)
}

func TestComparePrivilegedOverrideRunsAndIsRecorded(t *testing.T) {
	f := newFixture(cheapPlan(), expensivePlan(), Options{PrivilegedRoles: []string{"admin"}})
	spec := compareSpec()
	spec.OverrideSafety = true
	spec.RequesterRole = "Admin"

	result, err := f.orch.Compare(context.Background(), spec)
	require.NoError(t, err)
	assert.True(t, result.OverrideUsed)
	assert.True(t, result.TargetCost.OverrideUsed)
	assert.Equal(t, 1, f.differ.calls)

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, audit.OutcomeCompleted, f.sink.events[0].Outcome)
	assert.True(t, f.sink.events[0].OverrideUsed)
}

func TestCompareCompletedFlow(t *testing.T) {
	f := newFixture(cheapPlan(), cheapPlan(), Options{})

	result, err := f.orch.Compare(context.Background(), compareSpec())
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Summary.Matched)
	assert.False(t, result.OverrideUsed)
	require.NotNil(t, result.SourceCost)
	assert.True(t, result.SourceCost.Acceptable)

	// Normalized queries and the source staging mode reach the differ.
	assert.Equal(t, "SELECT id FROM a", f.differ.lastIn.SourceQuery)
	assert.Equal(t, models.StagingTemp, f.differ.lastIn.Staging)

	require.Len(t, f.sink.events, 1)
	event := f.sink.events[0]
	assert.Equal(t, audit.OutcomeCompleted, event.Outcome)
	require.NotNil(t, event.Summary)
	assert.Equal(t, int64(5), event.Summary.Matched)
}

func TestCompareDiffTimeoutHasItsOwnErrorKind(t *testing.T) {
	f := newFixture(cheapPlan(), cheapPlan(), Options{DiffTimeout: 20 * time.Millisecond})
	f.differ.block = true

	_, err := f.orch.Compare(context.Background(), compareSpec())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTimeout))
	assert.Contains(t, err.Error(), "diff timeout")

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, audit.OutcomeExecutionFailed, f.sink.events[0].Outcome)
}

func TestComparePlanFailureFailsClosed(t *testing.T) {
	f := newFixture(nil, cheapPlan(), Options{})

	_, err := f.orch.Compare(context.Background(), compareSpec())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindCostRejected))
	assert.Zero(t, f.differ.calls)
}

func TestExplainCostValidatesFirst(t *testing.T) {
	f := newFixture(cheapPlan(), cheapPlan(), Options{})

	_, err := f.orch.ExplainCost(context.Background(), "src", "DROP TABLE a")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidationRejected))
	assert.Empty(t, f.registry.acquired)
}

func TestExplainCostReturnsEstimate(t *testing.T) {
	f := newFixture(cheapPlan(), cheapPlan(), Options{})

	est, err := f.orch.ExplainCost(context.Background(), "src", "SELECT id FROM a")
	require.NoError(t, err)
	assert.True(t, est.Acceptable)
	assert.Equal(t, models.EnginePostgres, est.Engine)
	assert.Equal(t, []string{"src"}, f.registry.acquired)
}
