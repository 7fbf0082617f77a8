package mysql

import (
	"fmt"
	"strings"
)

// Dialect renders MySQL SQL fragments for the comparison pipeline.
type Dialect struct{}

// QuoteIdentifier uses backtick quoting with embedded backticks doubled.
func (Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// NullSafeEq uses the null-safe equality operator.
func (Dialect) NullSafeEq(left, right string) string {
	return left + " <=> " + right
}

// TextCast coerces an expression to CHAR for cross-engine value comparison.
func (Dialect) TextCast(expr string) string {
	return "CAST(" + expr + " AS CHAR)"
}

// BoundedWrap caps the query's result set. LIMIT 0 yields the column shape
// with no rows.
func (Dialect) BoundedWrap(sqlQuery string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS _bounded LIMIT %d", sqlQuery, limit)
}

// StagingName joins the prefix and id; temporary table names need no
// decoration.
func (Dialect) StagingName(prefix, id string) string {
	return prefix + "_" + id
}
