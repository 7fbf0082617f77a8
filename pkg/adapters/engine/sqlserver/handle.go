// Package sqlserver implements the engine handle for SQL Server using
// go-mssqldb. Staging tables are ##-prefixed temp tables in tempdb, dropped
// with the session that created them. Plans come from SET SHOWPLAN_ALL, which
// returns the estimated plan as a row hierarchy without executing the query.
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

const (
	maxOpenConns = 25
	maxIdleConns = 5
)

// Handle is a pooled attachment to one SQL Server database.
type Handle struct {
	db   models.LogicalDatabase
	pool *sql.DB
}

// Open connects to the database and verifies liveness before returning.
func Open(ctx context.Context, db models.LogicalDatabase) (engine.Handle, error) {
	pool, err := sql.Open("sqlserver", connString(db))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetMaxIdleConns(maxIdleConns)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return &Handle{db: db, pool: pool}, nil
}

func (h *Handle) Kind() models.EngineKind { return models.EngineSQLServer }
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

// ExplainPlan obtains the estimated plan via SET SHOWPLAN_ALL. SHOWPLAN is a
// session setting, so the whole exchange runs on one pinned connection: turn
// it on, submit the query (which now returns plan rows instead of executing),
// then turn it off before returning the connection to the pool.
func (h *Handle) ExplainPlan(ctx context.Context, sqlQuery string) (*engine.RawPlan, error) {
	conn, err := h.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for showplan: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_ALL ON"); err != nil {
		return nil, fmt.Errorf("enable showplan: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(ctx, "SET SHOWPLAN_ALL OFF")
	}()

	rows, err := conn.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("obtain showplan: %w", err)
	}
	defer rows.Close()

	result, err := engine.CollectSQLRows(rows)
	if err != nil {
		return nil, err
	}

	planRows := make([]engine.ShowplanRow, 0, len(result.Rows))
	for _, row := range result.Rows {
		planRows = append(planRows, engine.ShowplanRow{
			StmtText:         asString(row["StmtText"]),
			NodeID:           asInt64(row["NodeId"]),
			Parent:           asInt64(row["Parent"]),
			PhysicalOp:       asStringPtr(row["PhysicalOp"]),
			LogicalOp:        asStringPtr(row["LogicalOp"]),
			EstimateRows:     asFloat64(row["EstimateRows"]),
			TotalSubtreeCost: asFloat64(row["TotalSubtreeCost"]),
		})
	}
	return &engine.RawPlan{SQLServer: planRows}, nil
}

// Ping verifies liveness and returns the server version string.
func (h *Handle) Ping(ctx context.Context) (string, error) {
	if err := h.pool.PingContext(ctx); err != nil {
		return "", err
	}
	var version string
	if err := h.pool.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&version); err != nil {
		return "", fmt.Errorf("read server version: %w", err)
	}
	return version, nil
}

// Session pins a single pooled connection. Temp tables created on it live
// until Release.
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
	stage := fmt.Sprintf("SELECT * INTO %s FROM (%s) AS _src", quoted, sqlQuery)
	if err := s.Exec(ctx, stage); err != nil {
		return 0, fmt.Errorf("stage query result into %s: %w", table, err)
	}
	var count int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM "+quoted).Scan(&count); err != nil {
		return 0, fmt.Errorf("count staged rows in %s: %w", table, err)
	}
	return count, nil
}

func (s *session) DropStaging(ctx context.Context, table string) error {
	quoted := (Dialect{}).QuoteIdentifier(table)
	drop := fmt.Sprintf("IF OBJECT_ID('tempdb..%s') IS NOT NULL DROP TABLE %s",
		strings.ReplaceAll(table, "'", "''"), quoted)
	if err := s.Exec(ctx, drop); err != nil {
		return fmt.Errorf("drop staging table %s: %w", table, err)
	}
	return nil
}

func (s *session) Release() {
	// Closing the pinned connection returns it to the pool; SQL Server
	// drops the temp tables this session created.
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

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case string:
		parsed, _ := strconv.ParseFloat(n, 64)
		return parsed
	default:
		return 0
	}
}
