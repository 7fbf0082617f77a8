package compare

import (
	"context"

	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// runPushdown executes the whole diff inside the shared database. Both
// queries run on one pinned session; in temp staging mode their results are
// materialized into invocation-unique staging tables, in inline mode the
// validated queries are embedded as subqueries instead. Staging cleanup is
// unconditional: it runs on success and on every failure path after staging.
func (e *Engine) runPushdown(ctx context.Context, spec models.ComparisonSpec,
	handle engine.Handle, staging models.StagingMode, plan columnPlan,
	srcQuery, tgtQuery string) (*models.ComparisonSummary, []models.MismatchRow, error) {

	d := handle.Dialect()
	log := e.log.With(
		zap.String("database", spec.SourceDatabase),
		zap.String("strategy", "pushdown"))

	sess, err := handle.Session(ctx)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindExecutionFailed,
			"cannot pin comparison session", err).
			With("database", spec.SourceDatabase)
	}
	defer sess.Release()

	log.Debug("comparison run created", zap.String("phase", string(phaseCreated)))

	b := diffSQL{d: d, columns: plan}
	summary := &models.ComparisonSummary{ExistenceOnly: plan.ExistenceOnly}
	var staged []string

	switch staging {
	case models.StagingInline:
		b.srcRel = "(" + srcQuery + ")"
		b.tgtRel = "(" + tgtQuery + ")"
		if summary.RowsSource, err = queryScalar(ctx, sess, b.rowCount(b.srcRel)); err != nil {
			return nil, nil, stageError(spec.SourceDatabase, "count source rows", err)
		}
		if summary.RowsTarget, err = queryScalar(ctx, sess, b.rowCount(b.tgtRel)); err != nil {
			return nil, nil, stageError(spec.SourceDatabase, "count target rows", err)
		}
	default:
		id := stagingID()
		srcTable := d.StagingName(stagingSourcePrefix, id)
		tgtTable := d.StagingName(stagingTargetPrefix, id)
		b.srcRel = d.QuoteIdentifier(srcTable)
		b.tgtRel = d.QuoteIdentifier(tgtTable)

		if summary.RowsSource, err = sess.StageQueryResult(ctx, srcTable, srcQuery); err != nil {
			return nil, nil, stageError(spec.SourceDatabase, "stage source query", err)
		}
		staged = append(staged, srcTable)
		if summary.RowsTarget, err = sess.StageQueryResult(ctx, tgtTable, tgtQuery); err != nil {
			summary.Warnings = cleanupStaging(ctx, sess, staged, log)
			return nil, nil, stageError(spec.SourceDatabase, "stage target query", err)
		}
		staged = append(staged, tgtTable)
	}

	log.Debug("comparison inputs staged",
		zap.String("phase", string(phaseStaged)),
		zap.Int64("rows_source", summary.RowsSource),
		zap.Int64("rows_target", summary.RowsTarget))

	mismatches, err := e.diffStaged(ctx, sess, b, plan, summary, log)
	warnings := cleanupStaging(ctx, sess, staged, log)
	if err != nil {
		return nil, nil, err
	}
	summary.Warnings = append(summary.Warnings, warnings...)
	log.Debug("staging cleaned", zap.String("phase", string(phaseCleaned)))
	return summary, mismatches, nil
}

// diffStaged runs the count aggregates and, when anything differs, the
// bounded sample queries. It fills summary in place and returns the sampled
// mismatch records.
func (e *Engine) diffStaged(ctx context.Context, sess engine.Session, b diffSQL,
	plan columnPlan, summary *models.ComparisonSummary, log *zap.Logger) ([]models.MismatchRow, error) {

	var err error
	if summary.SourceOnly, err = queryScalar(ctx, sess, b.sourceOnlyCount()); err != nil {
		return nil, diffError("count source-only keys", err)
	}
	if summary.TargetOnly, err = queryScalar(ctx, sess, b.targetOnlyCount()); err != nil {
		return nil, diffError("count target-only keys", err)
	}

	matched, err := sess.Query(ctx, b.matchedCount())
	if err != nil {
		return nil, diffError("count matched rows", err)
	}
	if matched.RowCount() == 0 {
		return nil, diffError("count matched rows",
			apperrors.New(apperrors.KindExecutionFailed, "aggregate returned no rows"))
	}
	row := matched.Rows[0]
	if summary.Matched, err = toInt64(row["matched"]); err != nil {
		return nil, diffError("read matched count", err)
	}
	if !plan.ExistenceOnly {
		if summary.MismatchedRows, err = toInt64(row["mismatched_rows"]); err != nil {
			return nil, diffError("read mismatched row count", err)
		}
		summary.ColumnMismatch = make(map[string]int64, len(plan.Compare))
		for i, col := range plan.Compare {
			n, convErr := toInt64(row[misAlias(i)])
			if convErr != nil {
				return nil, diffError("read column mismatch count", convErr)
			}
			if n > 0 {
				summary.ColumnMismatch[col] = n
			}
		}
	}

	log.Debug("diff counts computed",
		zap.String("phase", string(phaseDiffed)),
		zap.Int64("matched", summary.Matched),
		zap.Int64("source_only", summary.SourceOnly),
		zap.Int64("target_only", summary.TargetOnly),
		zap.Int64("mismatched_rows", summary.MismatchedRows))

	if summary.Identical() {
		log.Debug("comparison summarized", zap.String("phase", string(phaseSummarized)))
		return nil, nil
	}

	mismatches, err := e.sampleMismatches(ctx, sess, b, plan, summary)
	if err != nil {
		return nil, err
	}
	log.Debug("comparison summarized",
		zap.String("phase", string(phaseSummarized)),
		zap.Int("samples", len(mismatches)))
	return mismatches, nil
}

// sampleMismatches fetches bounded example records, missing-target keys
// first, then missing-source, then value mismatches, until the sample cap is
// reached. Sampling only runs when the counts show a difference.
func (e *Engine) sampleMismatches(ctx context.Context, sess engine.Session, b diffSQL,
	plan columnPlan, summary *models.ComparisonSummary) ([]models.MismatchRow, error) {

	var mismatches []models.MismatchRow
	remaining := func() int { return e.opts.SampleCap - len(mismatches) }

	if summary.SourceOnly > 0 && remaining() > 0 {
		result, err := sess.Query(ctx, b.sourceOnlySample(remaining()))
		if err != nil {
			return nil, diffError("sample source-only keys", err)
		}
		for _, row := range result.Rows {
			mismatches = append(mismatches, models.MismatchRow{
				Key:  keyFromRow(row, plan.Join),
				Kind: models.MismatchMissingTarget,
			})
		}
	}

	if summary.TargetOnly > 0 && remaining() > 0 {
		result, err := sess.Query(ctx, b.targetOnlySample(remaining()))
		if err != nil {
			return nil, diffError("sample target-only keys", err)
		}
		for _, row := range result.Rows {
			mismatches = append(mismatches, models.MismatchRow{
				Key:  keyFromRow(row, plan.Join),
				Kind: models.MismatchMissingSource,
			})
		}
	}

	if summary.MismatchedRows > 0 && remaining() > 0 {
		result, err := sess.Query(ctx, b.valueMismatchSample(remaining()))
		if err != nil {
			return nil, diffError("sample value mismatches", err)
		}
		for _, row := range result.Rows {
			key := keyFromRow(row, plan.Join)
			for i, col := range plan.Compare {
				src := toStringPtr(row[srcAlias(i)])
				tgt := toStringPtr(row[tgtAlias(i)])
				if textEqual(src, tgt) {
					continue
				}
				mismatches = append(mismatches, models.MismatchRow{
					Key:         key,
					Column:      col,
					SourceValue: src,
					TargetValue: tgt,
					Kind:        models.MismatchValue,
				})
				if len(mismatches) >= e.opts.SampleCap {
					return mismatches, nil
				}
			}
		}
	}

	return mismatches, nil
}

func stageError(database, message string, err error) error {
	return apperrors.Wrap(apperrors.KindExecutionFailed, message, err).
		With("database", database)
}

func diffError(message string, err error) error {
	return apperrors.Wrap(apperrors.KindExecutionFailed, message, err)
}
