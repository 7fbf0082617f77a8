// Package mysql implements the engine handle for MySQL using
// go-sql-driver/mysql. Staging tables are CREATE TEMPORARY TABLE, visible
// only on the session's pinned connection.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/go-sql-driver/mysql"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

const (
	maxOpenConns = 25
	maxIdleConns = 5
)

// Handle is a pooled attachment to one MySQL database.
type Handle struct {
	db   models.LogicalDatabase
	pool *sql.DB
}

// Open connects to the database and verifies liveness before returning.
func Open(ctx context.Context, db models.LogicalDatabase) (engine.Handle, error) {
	pool, err := sql.Open("mysql", dsn(db))
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetMaxIdleConns(maxIdleConns)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &Handle{db: db, pool: pool}, nil
}

func (h *Handle) Kind() models.EngineKind { return models.EngineMySQL }
func (h *Handle) Database() string        { return h.db.Name }
func (h *Handle) Dialect() engine.Dialect { return Dialect{} }

// Query runs a statement on any pooled connection.
func (h *Handle) Query(ctx context.Context, sqlQuery string) (*engine.QueryResult, error) {
	rows, err := h.pool.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()
	return engine.CollectSQLRows(rows)
}

// ExplainPlan runs tabular EXPLAIN and parses each output row. The query is
// planned but never executed.
func (h *Handle) ExplainPlan(ctx context.Context, sqlQuery string) (*engine.RawPlan, error) {
	result, err := h.Query(ctx, "EXPLAIN "+sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("explain query: %w", err)
	}

	planRows := make([]engine.MySQLPlanRow, 0, len(result.Rows))
	for _, row := range result.Rows {
		planRows = append(planRows, engine.MySQLPlanRow{
			ID:           asInt64(row["id"]),
			SelectType:   asString(row["select_type"]),
			Table:        asStringPtr(row["table"]),
			AccessType:   asStringPtr(row["type"]),
			PossibleKeys: asStringPtr(row["possible_keys"]),
			Key:          asStringPtr(row["key"]),
			Rows:         asInt64(row["rows"]),
			Filtered:     asFloat64Ptr(row["filtered"]),
			Extra:        asStringPtr(row["Extra"]),
		})
	}
	return &engine.RawPlan{MySQL: planRows}, nil
}

// Ping verifies liveness and returns the server version string.
func (h *Handle) Ping(ctx context.Context) (string, error) {
	if err := h.pool.PingContext(ctx); err != nil {
		return "", err
	}
	var version string
	if err := h.pool.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", fmt.Errorf("read server version: %w", err)
	}
	return version, nil
}

// Session pins a single pooled connection. Temporary tables created on it
// live until Release.
func (h *Handle) Session(ctx context.Context) (engine.Session, error) {
	conn, err := h.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session connection: %w", err)
	}
	return &session{conn: conn}, nil
}

// Close releases the pool.
func (h *Handle) Close() error {
	return h.pool.Close()
}

type session struct {
	conn *sql.Conn
}

func (s *session) Query(ctx context.Context, sqlQuery string) (*engine.QueryResult, error) {
	rows, err := s.conn.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()
	return engine.CollectSQLRows(rows)
}

func (s *session) Exec(ctx context.Context, sqlStatement string) error {
	if _, err := s.conn.ExecContext(ctx, sqlStatement); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}

func (s *session) StageQueryResult(ctx context.Context, table, sqlQuery string) (int64, error) {
	quoted := (Dialect{}).QuoteIdentifier(table)
	if err := s.Exec(ctx, fmt.Sprintf("CREATE TEMPORARY TABLE %s AS (%s)", quoted, sqlQuery)); err != nil {
		return 0, fmt.Errorf("stage query result into %s: %w", table, err)
	}
	var count int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoted).Scan(&count); err != nil {
		return 0, fmt.Errorf("count staged rows in %s: %w", table, err)
	}
	return count, nil
}

func (s *session) DropStaging(ctx context.Context, table string) error {
	quoted := (Dialect{}).QuoteIdentifier(table)
	if err := s.Exec(ctx, "DROP TEMPORARY TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("drop staging table %s: %w", table, err)
	}
	return nil
}

func (s *session) Release() {
	// Closing the pinned connection returns it to the pool; MySQL discards
	// the session's temporary tables with it.
	_ = s.conn.Close()
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := asString(v)
	return &s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}

func asFloat64Ptr(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		f = n
	case int64:
		f = float64(n)
	case string:
		f, _ = strconv.ParseFloat(n, 64)
	default:
		return nil
	}
	return &f
}
