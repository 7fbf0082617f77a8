// Package compare implements the diff core: staging both query results,
// computing presence and value differences, and sampling example mismatches.
// Same-database comparisons push the whole diff into the engine; cross-engine
// comparisons fall back to a bounded in-process join over text-coerced
// extracts.
package compare

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

const (
	// DefaultSampleCap bounds the number of example mismatch records
	// returned with a summary.
	DefaultSampleCap = 10000
	// DefaultMaxInProcessRows bounds each side of a cross-engine in-process
	// join.
	DefaultMaxInProcessRows = 100000
)

// Options tune the diff engine's bounds.
type Options struct {
	SampleCap        int
	MaxInProcessRows int
}

// Engine runs comparisons. It holds no connections of its own; handles are
// leased by the caller and passed in per run.
type Engine struct {
	opts Options
	log  *zap.Logger
}

// NewEngine builds a diff engine. Zero option values fall back to defaults.
func NewEngine(opts Options, log *zap.Logger) *Engine {
	if opts.SampleCap <= 0 {
		opts.SampleCap = DefaultSampleCap
	}
	if opts.MaxInProcessRows <= 0 {
		opts.MaxInProcessRows = DefaultMaxInProcessRows
	}
	return &Engine{opts: opts, log: log}
}

// Input is one comparison run. Queries must already be validated and
// normalized; Staging is the source database's catalog staging mode and only
// consulted on the pushdown path.
type Input struct {
	Spec        models.ComparisonSpec
	SourceQuery string
	TargetQuery string
	Source      engine.Handle
	Target      engine.Handle
	Staging     models.StagingMode
}

// Run executes one comparison and returns the summary plus sampled mismatch
// records. The diff is pushed into the database when both sides name the same
// logical database; otherwise the rows are joined in the service under the
// in-process row bound.
func (e *Engine) Run(ctx context.Context, in Input) (*models.ComparisonSummary, []models.MismatchRow, error) {
	started := time.Now()

	plan, err := resolveColumns(ctx, in.Spec, in.Source, in.Target, in.SourceQuery, in.TargetQuery)
	if err != nil {
		return nil, nil, err
	}

	var (
		summary    *models.ComparisonSummary
		mismatches []models.MismatchRow
	)
	if in.Spec.SourceDatabase == in.Spec.TargetDatabase {
		summary, mismatches, err = e.runPushdown(ctx, in.Spec, in.Source, in.Staging,
			plan, in.SourceQuery, in.TargetQuery)
	} else {
		summary, mismatches, err = e.runInProcess(ctx, in.Spec, in.Source, in.Target,
			plan, in.SourceQuery, in.TargetQuery)
	}
	if err != nil {
		return nil, nil, err
	}
	summary.Duration = time.Since(started)
	return summary, mismatches, nil
}
