package compare

import (
	"context"
	"strings"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// columnPlan is the resolved column layout of one comparison: which columns
// join rows, which get value-compared, and whether anything is left to
// compare at all.
type columnPlan struct {
	Join          []string
	Compare       []string
	ExistenceOnly bool
}

// resolveColumns probes both projections with zero-row wrapped queries and
// resolves the comparison's column plan. Column matching is case-insensitive
// but the source side's spelling wins, so generated SQL stays consistent.
func resolveColumns(ctx context.Context, spec models.ComparisonSpec,
	src, tgt engine.Handle, srcQuery, tgtQuery string) (columnPlan, error) {

	if err := checkJoinIgnoreOverlap(spec); err != nil {
		return columnPlan{}, err
	}

	srcCols, err := probeProjection(ctx, src, srcQuery)
	if err != nil {
		return columnPlan{}, apperrors.Wrap(apperrors.KindExecutionFailed,
			"cannot determine source query columns", err).
			With("database", spec.SourceDatabase)
	}
	tgtCols, err := probeProjection(ctx, tgt, tgtQuery)
	if err != nil {
		return columnPlan{}, apperrors.Wrap(apperrors.KindExecutionFailed,
			"cannot determine target query columns", err).
			With("database", spec.TargetDatabase)
	}

	srcSet := columnSet(srcCols)
	tgtSet := columnSet(tgtCols)

	for _, col := range spec.JoinColumns {
		if _, ok := srcSet[strings.ToLower(col)]; !ok {
			return columnPlan{}, apperrors.New(apperrors.KindValidationRejected,
				"join column "+col+" is not in the source query projection").
				With("column", col).With("database", spec.SourceDatabase)
		}
		if _, ok := tgtSet[strings.ToLower(col)]; !ok {
			return columnPlan{}, apperrors.New(apperrors.KindValidationRejected,
				"join column "+col+" is not in the target query projection").
				With("column", col).With("database", spec.TargetDatabase)
		}
	}

	plan := columnPlan{Join: spec.JoinColumns}

	excluded := make(map[string]bool, len(spec.JoinColumns)+len(spec.IgnoreColumns))
	for _, col := range spec.JoinColumns {
		excluded[strings.ToLower(col)] = true
	}
	for _, col := range spec.IgnoreColumns {
		excluded[strings.ToLower(col)] = true
	}

	if len(spec.CompareColumns) > 0 {
		for _, col := range spec.CompareColumns {
			lower := strings.ToLower(col)
			if _, ok := srcSet[lower]; !ok {
				return columnPlan{}, apperrors.New(apperrors.KindValidationRejected,
					"compare column "+col+" is not in the source query projection").
					With("column", col)
			}
			if _, ok := tgtSet[lower]; !ok {
				return columnPlan{}, apperrors.New(apperrors.KindValidationRejected,
					"compare column "+col+" is not in the target query projection").
					With("column", col)
			}
			if excluded[lower] {
				continue
			}
			plan.Compare = append(plan.Compare, col)
		}
	} else {
		// Default: intersection of both projections, in source order, minus
		// join and ignored columns.
		for _, col := range srcCols {
			lower := strings.ToLower(col)
			if excluded[lower] {
				continue
			}
			if _, ok := tgtSet[lower]; ok {
				plan.Compare = append(plan.Compare, col)
			}
		}
	}

	// With nothing left to value-compare the diff degrades to a pure
	// presence check rather than failing.
	plan.ExistenceOnly = len(plan.Compare) == 0
	return plan, nil
}

// checkJoinIgnoreOverlap rejects specs that list a join column among the
// ignored ones: the request is contradictory and is never guessed at.
func checkJoinIgnoreOverlap(spec models.ComparisonSpec) error {
	ignored := make(map[string]bool, len(spec.IgnoreColumns))
	for _, col := range spec.IgnoreColumns {
		ignored[strings.ToLower(col)] = true
	}
	for _, col := range spec.JoinColumns {
		if ignored[strings.ToLower(col)] {
			return apperrors.New(apperrors.KindValidationRejected,
				"join column "+col+" cannot also be ignored").
				With("column", col)
		}
	}
	return nil
}

// probeProjection discovers a query's output columns without materializing
// any rows.
func probeProjection(ctx context.Context, h engine.Handle, sqlQuery string) ([]string, error) {
	result, err := h.Query(ctx, h.Dialect().BoundedWrap(sqlQuery, 0))
	if err != nil {
		return nil, err
	}
	return result.Columns, nil
}

func columnSet(cols []string) map[string]string {
	set := make(map[string]string, len(cols))
	for _, col := range cols {
		set[strings.ToLower(col)] = col
	}
	return set
}
