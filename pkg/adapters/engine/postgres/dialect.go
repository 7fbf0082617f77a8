package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Dialect renders PostgreSQL SQL fragments for the comparison pipeline.
type Dialect struct{}

// QuoteIdentifier uses pgx's standard double-quote quoting.
func (Dialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// NullSafeEq treats NULL = NULL as a match.
func (Dialect) NullSafeEq(left, right string) string {
	return left + " IS NOT DISTINCT FROM " + right
}

// TextCast coerces an expression to TEXT for cross-engine value comparison.
func (Dialect) TextCast(expr string) string {
	return "CAST(" + expr + " AS TEXT)"
}

// BoundedWrap caps the query's result set. LIMIT 0 yields the column shape
// with no rows.
func (Dialect) BoundedWrap(sqlQuery string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS _bounded LIMIT %d", sqlQuery, limit)
}

// StagingName joins the prefix and id; temp table names need no decoration.
func (Dialect) StagingName(prefix, id string) string {
	return prefix + "_" + id
}
