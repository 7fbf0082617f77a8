package models

import "time"

// ComparisonSpec describes one comparison request. Databases are referred to
// by catalog name; queries must already be read-only validated before the
// comparison engine sees them.
type ComparisonSpec struct {
	SourceDatabase string `json:"source_database"`
	TargetDatabase string `json:"target_database"`
	SourceQuery    string `json:"source_query"`
	TargetQuery    string `json:"target_query"`

	// JoinColumns define row correspondence. Non-empty, order preserved.
	JoinColumns []string `json:"join_columns"`
	// CompareColumns limits value comparison to these columns. Empty means
	// the intersection of both projections minus join and ignore columns.
	CompareColumns []string `json:"compare_columns,omitempty"`
	// IgnoreColumns are excluded from value comparison. A join column here is
	// a spec error, never silently honored.
	IgnoreColumns []string `json:"ignore_columns,omitempty"`

	// OverrideSafety asks to proceed past an unacceptable cost estimate.
	// Honored only for privileged requester roles.
	OverrideSafety bool   `json:"override_safety"`
	Requester      string `json:"requester"`
	RequesterRole  string `json:"requester_role"`
}

// MismatchKind classifies one mismatch record.
type MismatchKind string

const (
	// MismatchMissingSource marks a key present only on the target side.
	MismatchMissingSource MismatchKind = "MISSING_SOURCE"
	// MismatchMissingTarget marks a key present only on the source side.
	MismatchMissingTarget MismatchKind = "MISSING_TARGET"
	// MismatchValue marks one column whose values differ for a matched key.
	MismatchValue MismatchKind = "VALUE_MISMATCH"
)

// MismatchRow is one column-level difference, or a presence/absence record
// when a key exists on only one side. A matched row with several differing
// columns yields several records; the report is column-addressable.
type MismatchRow struct {
	Key         map[string]string `json:"key"`
	Column      string            `json:"column,omitempty"`
	SourceValue *string           `json:"source_value"`
	TargetValue *string           `json:"target_value"`
	Kind        MismatchKind      `json:"kind"`
}

// ComparisonSummary aggregates one comparison. Every distinct key across both
// sides lands in exactly one of matched/source-only/target-only.
type ComparisonSummary struct {
	RowsSource     int64            `json:"rows_source"`
	RowsTarget     int64            `json:"rows_target"`
	Matched        int64            `json:"matched"`
	SourceOnly     int64            `json:"source_only"`
	TargetOnly     int64            `json:"target_only"`
	MismatchedRows int64            `json:"mismatched_rows"`
	ColumnMismatch map[string]int64 `json:"column_mismatches,omitempty"`

	// ExistenceOnly records that no columns were left to value-compare, so
	// only presence/absence was checked.
	ExistenceOnly bool          `json:"existence_only,omitempty"`
	Duration      time.Duration `json:"duration_ms"`

	// Warnings surfaces non-fatal problems, e.g. staging cleanup failures
	// that signal leaked staging state.
	Warnings []string `json:"warnings,omitempty"`
}

// Identical reports whether the two sides matched exactly.
func (s *ComparisonSummary) Identical() bool {
	return s.SourceOnly == 0 && s.TargetOnly == 0 && s.MismatchedRows == 0
}

// ComparisonResult is the full outcome returned by the orchestrator.
type ComparisonResult struct {
	Summary    *ComparisonSummary `json:"summary"`
	Mismatches []MismatchRow      `json:"mismatches,omitempty"`
	SourceCost *CostEstimate      `json:"source_cost,omitempty"`
	TargetCost *CostEstimate      `json:"target_cost,omitempty"`
	// OverrideUsed is true when a privileged caller forced execution past an
	// unacceptable cost estimate. Always recorded for audit.
	OverrideUsed bool          `json:"override_used"`
	Duration     time.Duration `json:"duration_ms"`
}
