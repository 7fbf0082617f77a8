// Package engine defines the database-engine abstraction the comparison
// pipeline runs against. Each supported engine (PostgreSQL, MySQL, SQL
// Server) provides a Handle; sessions pin a single connection so that
// session-scoped staging tables stay visible across statements.
package engine

import (
	"context"

	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// Factory opens a handle for one catalog entry. The production factory is a
// closed switch over the three supported engine kinds; tests substitute
// fakes.
type Factory func(ctx context.Context, db models.LogicalDatabase) (Handle, error)

// QueryResult contains the results of a SQL query execution.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// RowCount returns the number of rows in the result.
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Handle is a live attachment to one logical database. Handles are pooled by
// the registry and shared between requests; all methods are safe for
// concurrent use except where a Session is involved.
type Handle interface {
	// Kind reports which engine family the handle speaks to.
	Kind() models.EngineKind

	// Database returns the logical database name from the catalog.
	Database() string

	// Dialect returns the SQL dialect helpers for this engine.
	Dialect() Dialect

	// Query runs a read-only statement on any pooled connection.
	Query(ctx context.Context, sqlQuery string) (*QueryResult, error)

	// ExplainPlan obtains the engine's execution plan for a query without
	// running it. The returned plan is raw engine output; normalization
	// happens in the cost package.
	ExplainPlan(ctx context.Context, sqlQuery string) (*RawPlan, error)

	// Ping verifies liveness and returns the server version string.
	Ping(ctx context.Context) (string, error)

	// Session pins a single connection. Staging tables created through a
	// session are only visible on that session and are dropped with it.
	Session(ctx context.Context) (Session, error)

	// Close releases the underlying pool.
	Close() error
}

// Session is a pinned connection. Not safe for concurrent use; callers must
// Release when done, which also discards any session-scoped staging tables
// the engine still holds.
type Session interface {
	// Query runs a statement on the pinned connection.
	Query(ctx context.Context, sqlQuery string) (*QueryResult, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sqlStatement string) error

	// StageQueryResult materializes a query's result set into a
	// session-scoped staging table and returns the row count staged.
	StageQueryResult(ctx context.Context, table, sqlQuery string) (int64, error)

	// DropStaging removes a staging table. Dropping a table that does not
	// exist is not an error.
	DropStaging(ctx context.Context, table string) error

	// Release returns the pinned connection to the pool.
	Release()
}

// Dialect renders the engine-specific SQL fragments the comparison pipeline
// needs. Implementations are stateless.
type Dialect interface {
	// QuoteIdentifier quotes a table or column name.
	QuoteIdentifier(name string) string

	// NullSafeEq renders an equality predicate that treats NULL = NULL as
	// true (IS NOT DISTINCT FROM, <=>, or an explicit OR IS NULL form).
	NullSafeEq(left, right string) string

	// TextCast renders a cast of expr to the engine's unbounded text type.
	TextCast(expr string) string

	// BoundedWrap wraps a query so it returns at most limit rows. A limit
	// of zero yields the query's column shape with no rows.
	BoundedWrap(sqlQuery string, limit int) string

	// StagingName builds a staging table name from a prefix and unique id,
	// applying any engine naming requirement (SQL Server temp tables need
	// the ## prefix).
	StagingName(prefix, id string) string
}
