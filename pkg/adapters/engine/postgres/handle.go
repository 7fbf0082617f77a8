// Package postgres implements the engine handle for PostgreSQL using
// pgx/pgxpool. Staging tables are CREATE TEMP TABLE, visible only on the
// session's pinned connection.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// Handle is a pooled attachment to one PostgreSQL database.
type Handle struct {
	db   models.LogicalDatabase
	pool *pgxpool.Pool
}

// Open connects to the database and verifies liveness before returning.
func Open(ctx context.Context, db models.LogicalDatabase) (engine.Handle, error) {
	pool, err := pgxpool.New(ctx, connString(db))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Handle{db: db, pool: pool}, nil
}

func (h *Handle) Kind() models.EngineKind { return models.EnginePostgres }
func (h *Handle) Database() string        { return h.db.Name }
func (h *Handle) Dialect() engine.Dialect { return Dialect{} }

// Query runs a statement on any pooled connection.
func (h *Handle) Query(ctx context.Context, sqlQuery string) (*engine.QueryResult, error) {
	rows, err := h.pool.Query(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

// ExplainPlan runs EXPLAIN (FORMAT JSON) and returns the parsed plan tree.
// The query is planned but never executed.
func (h *Handle) ExplainPlan(ctx context.Context, sqlQuery string) (*engine.RawPlan, error) {
	var raw []byte
	err := h.pool.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sqlQuery).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("explain query: %w", err)
	}

	var parsed []engine.PostgresExplain
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse explain output: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("explain returned no plan")
	}
	return &engine.RawPlan{Postgres: &parsed[0].Plan}, nil
}

// Ping verifies liveness and returns the server version string.
func (h *Handle) Ping(ctx context.Context) (string, error) {
	if err := h.pool.Ping(ctx); err != nil {
		return "", err
	}
	var version string
	if err := h.pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("read server version: %w", err)
	}
	return version, nil
}

// Session pins a single pooled connection. Temp tables created on it live
// until Release.
func (h *Handle) Session(ctx context.Context) (engine.Session, error) {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session connection: %w", err)
	}
	return &session{conn: conn}, nil
}

// Close releases the pool.
func (h *Handle) Close() error {
	h.pool.Close()
	return nil
}

type session struct {
	conn *pgxpool.Conn
}

func (s *session) Query(ctx context.Context, sqlQuery string) (*engine.QueryResult, error) {
	rows, err := s.conn.Query(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

func (s *session) Exec(ctx context.Context, sqlStatement string) error {
	if _, err := s.conn.Exec(ctx, sqlStatement); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}

func (s *session) StageQueryResult(ctx context.Context, table, sqlQuery string) (int64, error) {
	quoted := (Dialect{}).QuoteIdentifier(table)
	if err := s.Exec(ctx, fmt.Sprintf("CREATE TEMP TABLE %s AS (%s)", quoted, sqlQuery)); err != nil {
		return 0, fmt.Errorf("stage query result into %s: %w", table, err)
	}
	var count int64
	if err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+quoted).Scan(&count); err != nil {
		return 0, fmt.Errorf("count staged rows in %s: %w", table, err)
	}
	return count, nil
}

func (s *session) DropStaging(ctx context.Context, table string) error {
	quoted := (Dialect{}).QuoteIdentifier(table)
	if err := s.Exec(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("drop staging table %s: %w", table, err)
	}
	return nil
}

func (s *session) Release() {
	s.conn.Release()
}

func collectRows(rows pgx.Rows) (*engine.QueryResult, error) {
	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = values[i]
			}
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &engine.QueryResult{Columns: columns, Rows: resultRows}, nil
}
