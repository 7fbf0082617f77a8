package compare

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// extractRow is one text-coerced row pulled to the service for a cross-engine
// join. Values are compared as text on both sides, so engine type differences
// never produce spurious mismatches.
type extractRow struct {
	key    map[string]string
	values map[string]*string
}

// runInProcess joins the two result sets inside the service. Both extracts
// are text-coerced at the source and bounded: a side that exceeds the
// configured row cap aborts the comparison rather than silently truncating
// it.
func (e *Engine) runInProcess(ctx context.Context, spec models.ComparisonSpec,
	src, tgt engine.Handle, plan columnPlan,
	srcQuery, tgtQuery string) (*models.ComparisonSummary, []models.MismatchRow, error) {

	log := e.log.With(
		zap.String("source_database", spec.SourceDatabase),
		zap.String("target_database", spec.TargetDatabase),
		zap.String("strategy", "in_process"))
	log.Debug("comparison run created", zap.String("phase", string(phaseCreated)))

	srcRows, err := e.extract(ctx, src, srcQuery, plan, spec.SourceDatabase)
	if err != nil {
		return nil, nil, err
	}
	tgtRows, err := e.extract(ctx, tgt, tgtQuery, plan, spec.TargetDatabase)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("comparison inputs extracted",
		zap.String("phase", string(phaseStaged)),
		zap.Int("rows_source", len(srcRows)),
		zap.Int("rows_target", len(tgtRows)))

	srcByKey, err := indexByKey(srcRows, plan.Join, spec.SourceDatabase)
	if err != nil {
		return nil, nil, err
	}
	tgtByKey, err := indexByKey(tgtRows, plan.Join, spec.TargetDatabase)
	if err != nil {
		return nil, nil, err
	}

	summary := &models.ComparisonSummary{
		RowsSource:    int64(len(srcRows)),
		RowsTarget:    int64(len(tgtRows)),
		ExistenceOnly: plan.ExistenceOnly,
	}
	if !plan.ExistenceOnly {
		summary.ColumnMismatch = make(map[string]int64, len(plan.Compare))
	}

	var missingTarget, missingSource, valueDiff []models.MismatchRow

	// Source order drives the walk so sampled records stay deterministic for
	// a given pair of extracts.
	for _, row := range srcRows {
		k := joinKey(row.key, plan.Join)
		t, ok := tgtByKey[k]
		if !ok {
			summary.SourceOnly++
			missingTarget = append(missingTarget, models.MismatchRow{
				Key:  row.key,
				Kind: models.MismatchMissingTarget,
			})
			continue
		}
		summary.Matched++
		if plan.ExistenceOnly {
			continue
		}
		rowDiffers := false
		for _, col := range plan.Compare {
			sv, tv := row.values[col], t.values[col]
			if textEqual(sv, tv) {
				continue
			}
			rowDiffers = true
			summary.ColumnMismatch[col]++
			valueDiff = append(valueDiff, models.MismatchRow{
				Key:         row.key,
				Column:      col,
				SourceValue: sv,
				TargetValue: tv,
				Kind:        models.MismatchValue,
			})
		}
		if rowDiffers {
			summary.MismatchedRows++
		}
	}
	for _, row := range tgtRows {
		if _, ok := srcByKey[joinKey(row.key, plan.Join)]; ok {
			continue
		}
		summary.TargetOnly++
		missingSource = append(missingSource, models.MismatchRow{
			Key:  row.key,
			Kind: models.MismatchMissingSource,
		})
	}

	log.Debug("diff counts computed",
		zap.String("phase", string(phaseDiffed)),
		zap.Int64("matched", summary.Matched),
		zap.Int64("source_only", summary.SourceOnly),
		zap.Int64("target_only", summary.TargetOnly),
		zap.Int64("mismatched_rows", summary.MismatchedRows))

	var mismatches []models.MismatchRow
	for _, batch := range [][]models.MismatchRow{missingTarget, missingSource, valueDiff} {
		for _, m := range batch {
			if len(mismatches) >= e.opts.SampleCap {
				break
			}
			mismatches = append(mismatches, m)
		}
	}
	log.Debug("comparison summarized",
		zap.String("phase", string(phaseSummarized)),
		zap.Int("samples", len(mismatches)))
	return summary, mismatches, nil
}

// extract pulls one side's rows with all projected columns text-coerced by
// the side's own dialect. The query is bounded at cap+1 rows so overflow is
// detected without an unbounded transfer.
func (e *Engine) extract(ctx context.Context, h engine.Handle, sqlQuery string,
	plan columnPlan, database string) ([]extractRow, error) {

	d := h.Dialect()
	selects := make([]string, 0, len(plan.Join)+len(plan.Compare))
	for _, col := range plan.Join {
		quoted := d.QuoteIdentifier(col)
		selects = append(selects, fmt.Sprintf("%s AS %s", d.TextCast("s."+quoted), quoted))
	}
	for _, col := range plan.Compare {
		quoted := d.QuoteIdentifier(col)
		selects = append(selects, fmt.Sprintf("%s AS %s", d.TextCast("s."+quoted), quoted))
	}
	projection := fmt.Sprintf("SELECT %s FROM (%s) AS s",
		strings.Join(selects, ", "), sqlQuery)

	result, err := h.Query(ctx, d.BoundedWrap(projection, e.opts.MaxInProcessRows+1))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindExecutionFailed,
			"extract rows for cross-engine comparison", err).
			With("database", database)
	}
	if result.RowCount() > e.opts.MaxInProcessRows {
		return nil, apperrors.New(apperrors.KindExecutionFailed,
			"result set exceeds the in-process row limit; narrow the query or raise compare.max_inprocess_rows").
			With("database", database).
			With("limit", e.opts.MaxInProcessRows)
	}

	rows := make([]extractRow, 0, result.RowCount())
	for _, raw := range result.Rows {
		row := extractRow{
			key:    keyFromRow(raw, plan.Join),
			values: make(map[string]*string, len(plan.Compare)),
		}
		for _, col := range plan.Compare {
			row.values[col] = toStringPtr(raw[col])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// indexByKey builds the join index for one side. Duplicate join keys make
// row correspondence ambiguous, so they abort the comparison.
func indexByKey(rows []extractRow, joinCols []string, database string) (map[string]extractRow, error) {
	index := make(map[string]extractRow, len(rows))
	for _, row := range rows {
		k := joinKey(row.key, joinCols)
		if _, exists := index[k]; exists {
			return nil, apperrors.New(apperrors.KindExecutionFailed,
				"duplicate join key in result set; join columns must identify rows uniquely").
				With("database", database).
				With("key", row.key)
		}
		index[k] = row
	}
	return index, nil
}

// joinKey flattens a key map into an index key, unit-separated in join
// column order.
func joinKey(key map[string]string, joinCols []string) string {
	parts := make([]string, 0, len(joinCols))
	for _, col := range joinCols {
		parts = append(parts, key[col])
	}
	return strings.Join(parts, "\x1f")
}
