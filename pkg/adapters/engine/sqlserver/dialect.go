package sqlserver

import (
	"fmt"
	"strings"
)

// Dialect renders T-SQL fragments for the comparison pipeline.
type Dialect struct{}

// QuoteIdentifier uses bracket quoting with embedded closing brackets
// doubled.
func (Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// NullSafeEq spells out the NULL-matching equality; T-SQL has no null-safe
// operator.
func (Dialect) NullSafeEq(left, right string) string {
	return fmt.Sprintf("(%s = %s OR (%s IS NULL AND %s IS NULL))", left, right, left, right)
}

// TextCast coerces an expression to NVARCHAR(MAX) for cross-engine value
// comparison.
func (Dialect) TextCast(expr string) string {
	return "CAST(" + expr + " AS NVARCHAR(MAX))"
}

// BoundedWrap caps the query's result set. TOP (0) yields the column shape
// with no rows.
func (Dialect) BoundedWrap(sqlQuery string, limit int) string {
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _bounded", limit, sqlQuery)
}

// StagingName prepends ## so the table lands in tempdb as a global temp
// table. Names are invocation-unique, and the table is still dropped with the
// creating session.
func (Dialect) StagingName(prefix, id string) string {
	return "##" + prefix + "_" + id
}
