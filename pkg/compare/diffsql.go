package compare

import (
	"fmt"
	"strings"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
)

// diffSQL renders the pushdown diff statements against two relations on the
// same database. A relation is either a quoted staging table name or, in
// inline staging mode, the parenthesized original query.
type diffSQL struct {
	d       engine.Dialect
	srcRel  string
	tgtRel  string
	columns columnPlan
}

func (b diffSQL) srcCol(col string) string { return "s." + b.d.QuoteIdentifier(col) }
func (b diffSQL) tgtCol(col string) string { return "t." + b.d.QuoteIdentifier(col) }

// joinCond renders the null-safe row correspondence predicate.
func (b diffSQL) joinCond() string {
	terms := make([]string, 0, len(b.columns.Join))
	for _, col := range b.columns.Join {
		terms = append(terms, b.d.NullSafeEq(b.srcCol(col), b.tgtCol(col)))
	}
	return strings.Join(terms, " AND ")
}

// colEq renders the text-coerced, null-safe value equality for one compared
// column. Text coercion keeps the predicate valid across type differences in
// the two projections.
func (b diffSQL) colEq(col string) string {
	return b.d.NullSafeEq(b.d.TextCast(b.srcCol(col)), b.d.TextCast(b.tgtCol(col)))
}

// rowCount counts a relation's rows; used in inline staging mode where no
// staging row count exists.
func (b diffSQL) rowCount(rel string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS n FROM %s AS _c", rel)
}

// sourceOnlyCount counts keys present only in the source relation.
func (b diffSQL) sourceOnlyCount() string {
	return fmt.Sprintf(
		"SELECT COUNT(*) AS n FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)",
		b.srcRel, b.tgtRel, b.joinCond())
}

// targetOnlyCount counts keys present only in the target relation.
func (b diffSQL) targetOnlyCount() string {
	return fmt.Sprintf(
		"SELECT COUNT(*) AS n FROM %s AS t WHERE NOT EXISTS (SELECT 1 FROM %s AS s WHERE %s)",
		b.tgtRel, b.srcRel, b.joinCond())
}

// matchedCount renders the joined aggregate: matched row count, per-column
// mismatch counts (aliased mis_0..mis_n in compare-column order), and the
// count of matched rows with at least one differing column. In existence-only
// mode only the matched count remains.
func (b diffSQL) matchedCount() string {
	selects := []string{"COUNT(*) AS matched"}

	if !b.columns.ExistenceOnly {
		var anyDiff []string
		for i, col := range b.columns.Compare {
			diff := "NOT (" + b.colEq(col) + ")"
			selects = append(selects,
				fmt.Sprintf("SUM(CASE WHEN %s THEN 1 ELSE 0 END) AS mis_%d", diff, i))
			anyDiff = append(anyDiff, diff)
		}
		selects = append(selects, fmt.Sprintf(
			"SUM(CASE WHEN %s THEN 1 ELSE 0 END) AS mismatched_rows",
			strings.Join(anyDiff, " OR ")))
	}

	return fmt.Sprintf("SELECT %s FROM %s AS s JOIN %s AS t ON %s",
		strings.Join(selects, ", "), b.srcRel, b.tgtRel, b.joinCond())
}

// keyProjection renders the join columns of one side, aliased to their bare
// names so sample readback is uniform.
func (b diffSQL) keyProjection(side func(string) string) string {
	cols := make([]string, 0, len(b.columns.Join))
	for _, col := range b.columns.Join {
		cols = append(cols, fmt.Sprintf("%s AS %s",
			b.d.TextCast(side(col)), b.d.QuoteIdentifier(col)))
	}
	return strings.Join(cols, ", ")
}

// sourceOnlySample samples keys missing from the target.
func (b diffSQL) sourceOnlySample(limit int) string {
	inner := fmt.Sprintf(
		"SELECT %s FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)",
		b.keyProjection(b.srcCol), b.srcRel, b.tgtRel, b.joinCond())
	return b.d.BoundedWrap(inner, limit)
}

// targetOnlySample samples keys missing from the source.
func (b diffSQL) targetOnlySample(limit int) string {
	inner := fmt.Sprintf(
		"SELECT %s FROM %s AS t WHERE NOT EXISTS (SELECT 1 FROM %s AS s WHERE %s)",
		b.keyProjection(b.tgtCol), b.tgtRel, b.srcRel, b.joinCond())
	return b.d.BoundedWrap(inner, limit)
}

// valueMismatchSample samples matched rows with at least one differing
// column, projecting keys plus both sides of every compared column
// (src_0/tgt_0 .. in compare-column order).
func (b diffSQL) valueMismatchSample(limit int) string {
	selects := []string{b.keyProjection(b.srcCol)}
	var anyDiff []string
	for i, col := range b.columns.Compare {
		selects = append(selects,
			fmt.Sprintf("%s AS src_%d", b.d.TextCast(b.srcCol(col)), i),
			fmt.Sprintf("%s AS tgt_%d", b.d.TextCast(b.tgtCol(col)), i))
		anyDiff = append(anyDiff, "NOT ("+b.colEq(col)+")")
	}

	inner := fmt.Sprintf("SELECT %s FROM %s AS s JOIN %s AS t ON %s WHERE %s",
		strings.Join(selects, ", "), b.srcRel, b.tgtRel, b.joinCond(),
		strings.Join(anyDiff, " OR "))
	return b.d.BoundedWrap(inner, limit)
}
