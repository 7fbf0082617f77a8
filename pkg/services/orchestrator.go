// Package services wires the safety gates around the diff core. The
// orchestrator is the only component that owns policy: validation, probing,
// and cost estimation report facts, and the decisions (fail fast, reject,
// honor an override) all live here.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters"
	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/audit"
	"github.com/crossdiff-io/crossdiff-engine/pkg/compare"
	"github.com/crossdiff-io/crossdiff-engine/pkg/cost"
	"github.com/crossdiff-io/crossdiff-engine/pkg/logging"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
	"github.com/crossdiff-io/crossdiff-engine/pkg/sqlcheck"
)

// DefaultDiffTimeout bounds comparison execution after all gates pass. The
// probe timeout is configured separately on the prober; the two expire with
// distinct error kinds.
const DefaultDiffTimeout = 10 * time.Minute

// Registry is the slice of the connection registry the orchestrator needs.
type Registry interface {
	Lookup(name string) (models.LogicalDatabase, error)
	Acquire(ctx context.Context, name string) (*adapters.Lease, error)
	List() []models.DatabaseInfo
}

// AvailabilityChecker probes databases for liveness.
type AvailabilityChecker interface {
	Check(ctx context.Context, name string) models.AvailabilityResult
	CheckAll(ctx context.Context) []models.AvailabilityResult
}

// Differ executes one comparison over leased handles.
type Differ interface {
	Run(ctx context.Context, in compare.Input) (*models.ComparisonSummary, []models.MismatchRow, error)
}

// Options carries the orchestrator's policy knobs.
type Options struct {
	DiffTimeout time.Duration
	// PrivilegedRoles may override a cost rejection. Matched case-insensitively
	// against the requester role.
	PrivilegedRoles []string
}

// Orchestrator runs the gate sequence in front of every comparison:
// validate, probe, estimate, then execute. Each gate fails fast; nothing
// touches a database before both queries pass validation.
type Orchestrator struct {
	registry  Registry
	prober    AvailabilityChecker
	estimator *cost.Estimator
	differ    Differ
	sink      audit.Sink
	opts      Options
	log       *zap.Logger
}

// NewOrchestrator assembles the pipeline. A nil sink disables auditing.
func NewOrchestrator(registry Registry, prober AvailabilityChecker,
	estimator *cost.Estimator, differ Differ, sink audit.Sink,
	opts Options, log *zap.Logger) *Orchestrator {

	if opts.DiffTimeout <= 0 {
		opts.DiffTimeout = DefaultDiffTimeout
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Orchestrator{
		registry:  registry,
		prober:    prober,
		estimator: estimator,
		differ:    differ,
		sink:      sink,
		opts:      opts,
		log:       log.Named("orchestrator"),
	}
}

// Compare runs one gated comparison. Every invocation, whatever its outcome,
// emits exactly one audit event.
func (o *Orchestrator) Compare(ctx context.Context, spec models.ComparisonSpec) (*models.ComparisonResult, error) {
	started := time.Now()
	event := audit.Event{
		Timestamp:      started.UTC(),
		Requester:      spec.Requester,
		RequesterRole:  spec.RequesterRole,
		SourceDatabase: spec.SourceDatabase,
		TargetDatabase: spec.TargetDatabase,
	}
	fail := func(outcome audit.Outcome, err error) (*models.ComparisonResult, error) {
		event.Outcome = outcome
		event.Error = logging.SanitizeError(err)
		event.Duration = time.Since(started)
		o.sink.Record(event)
		return nil, err
	}

	// Gate 1: both queries must pass read-only validation before anything
	// touches a database.
	srcVal := sqlcheck.Validate(spec.SourceQuery)
	tgtVal := sqlcheck.Validate(spec.TargetQuery)
	if !srcVal.Admitted || !tgtVal.Admitted {
		event.ValidationCodes = violationCodes(srcVal, tgtVal)
		err := apperrors.New(apperrors.KindValidationRejected,
			"query rejected by read-only validation").
			With("violations", event.ValidationCodes)
		return fail(audit.OutcomeValidationRejected, err)
	}

	// Gate 2: both databases must answer a probe.
	for _, name := range distinct(spec.SourceDatabase, spec.TargetDatabase) {
		res := o.prober.Check(ctx, name)
		if !res.Available {
			err := apperrors.New(apperrors.KindDatabaseUnavailable,
				"database "+name+" is unavailable").
				With("database", name).
				With("cause", string(res.Cause))
			return fail(audit.OutcomeDatabaseUnavailable, err)
		}
	}

	srcDB, err := o.registry.Lookup(spec.SourceDatabase)
	if err != nil {
		return fail(audit.OutcomeDatabaseUnavailable, err)
	}
	tgtDB, err := o.registry.Lookup(spec.TargetDatabase)
	if err != nil {
		return fail(audit.OutcomeDatabaseUnavailable, err)
	}

	srcLease, err := o.registry.Acquire(ctx, spec.SourceDatabase)
	if err != nil {
		return fail(audit.OutcomeExecutionFailed, err)
	}
	defer srcLease.Release()

	tgtLease := srcLease
	if spec.TargetDatabase != spec.SourceDatabase {
		tgtLease, err = o.registry.Acquire(ctx, spec.TargetDatabase)
		if err != nil {
			return fail(audit.OutcomeExecutionFailed, err)
		}
		defer tgtLease.Release()
	}

	// Gate 3: cost. A failed plan retrieval estimates as unacceptable (fail
	// closed), so rejection and override follow the same path either way.
	srcEst := o.estimate(ctx, srcLease, srcDB, srcVal.Normalized)
	tgtEst := o.estimate(ctx, tgtLease, tgtDB, tgtVal.Normalized)
	event.SourceCost = &srcEst
	event.TargetCost = &tgtEst

	overrideUsed := false
	if !srcEst.Acceptable || !tgtEst.Acceptable {
		if spec.OverrideSafety && o.isPrivileged(spec.RequesterRole) {
			overrideUsed = true
			event.OverrideUsed = true
			srcEst.OverrideUsed = true
			tgtEst.OverrideUsed = true
			o.log.Warn("cost rejection overridden",
				zap.String("requester", spec.Requester),
				zap.String("requester_role", spec.RequesterRole),
				zap.Float64("source_estimated_seconds", srcEst.EstimatedSeconds),
				zap.Float64("target_estimated_seconds", tgtEst.EstimatedSeconds))
		} else {
			err := apperrors.New(apperrors.KindCostRejected, costReason(srcEst, tgtEst)).
				With("source_estimated_seconds", srcEst.EstimatedSeconds).
				With("target_estimated_seconds", tgtEst.EstimatedSeconds).
				With("override_requested", spec.OverrideSafety)
			return fail(audit.OutcomeCostRejected, err)
		}
	}

	// All gates passed; execute under the diff deadline.
	runCtx, cancel := context.WithTimeout(ctx, o.opts.DiffTimeout)
	defer cancel()

	summary, mismatches, err := o.differ.Run(runCtx, compare.Input{
		Spec:        spec,
		SourceQuery: srcVal.Normalized,
		TargetQuery: tgtVal.Normalized,
		Source:      srcLease,
		Target:      tgtLease,
		Staging:     srcDB.Staging,
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = apperrors.Wrap(apperrors.KindTimeout,
				"comparison exceeded the diff timeout", err).
				With("phase", "diff").
				With("timeout", o.opts.DiffTimeout.String())
		}
		return fail(audit.OutcomeExecutionFailed, err)
	}

	event.Outcome = audit.OutcomeCompleted
	event.Summary = summary
	event.Duration = time.Since(started)
	o.sink.Record(event)

	return &models.ComparisonResult{
		Summary:      summary,
		Mismatches:   mismatches,
		SourceCost:   &srcEst,
		TargetCost:   &tgtEst,
		OverrideUsed: overrideUsed,
		Duration:     time.Since(started),
	}, nil
}

// ListDatabases returns the redacted catalog.
func (o *Orchestrator) ListDatabases() []models.DatabaseInfo {
	return o.registry.List()
}

// CheckAvailability probes one database.
func (o *Orchestrator) CheckAvailability(ctx context.Context, name string) models.AvailabilityResult {
	return o.prober.Check(ctx, name)
}

// CheckAllAvailability probes every catalog database.
func (o *Orchestrator) CheckAllAvailability(ctx context.Context) []models.AvailabilityResult {
	return o.prober.CheckAll(ctx)
}

// ExplainCost validates a query and returns its normalized cost estimate
// without executing it.
func (o *Orchestrator) ExplainCost(ctx context.Context, name, query string) (*models.CostEstimate, error) {
	val := sqlcheck.Validate(query)
	if !val.Admitted {
		return nil, apperrors.New(apperrors.KindValidationRejected,
			"query rejected by read-only validation").
			With("violations", violationCodes(val))
	}

	db, err := o.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	lease, err := o.registry.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	est := o.estimate(ctx, lease, db, val.Normalized)
	return &est, nil
}

// estimate obtains a plan and normalizes it. Plan retrieval failure reaches
// the estimator as a nil plan, which it rejects as fail-closed.
func (o *Orchestrator) estimate(ctx context.Context, lease *adapters.Lease,
	db models.LogicalDatabase, query string) models.CostEstimate {

	plan, err := lease.ExplainPlan(ctx, query)
	if err != nil {
		o.log.Warn("plan retrieval failed",
			zap.String("database", db.Name),
			zap.String("error", logging.SanitizeError(err)))
		plan = nil
	}
	return o.estimator.Estimate(db, plan)
}

func (o *Orchestrator) isPrivileged(role string) bool {
	for _, privileged := range o.opts.PrivilegedRoles {
		if strings.EqualFold(role, privileged) {
			return true
		}
	}
	return false
}

func violationCodes(results ...sqlcheck.ValidationResult) []string {
	var codes []string
	for _, r := range results {
		for _, v := range r.Violations {
			codes = append(codes, v.Code)
		}
	}
	return codes
}

func costReason(estimates ...models.CostEstimate) string {
	for _, est := range estimates {
		if !est.Acceptable {
			return est.Reason
		}
	}
	return "cost estimate rejected"
}

func distinct(names ...string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
