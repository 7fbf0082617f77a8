package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

func newMockHandle(t *testing.T) (*Handle, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Handle{db: models.LogicalDatabase{Name: "orders_mysql"}, pool: db}, mock
}

func TestExplainPlanParsesRows(t *testing.T) {
	handle, mock := newMockHandle(t)

	columns := []string{"id", "select_type", "table", "partitions", "type",
		"possible_keys", "key", "key_len", "ref", "rows", "filtered", "Extra"}
	mock.ExpectQuery("EXPLAIN SELECT").WillReturnRows(
		sqlmock.NewRows(columns).
			AddRow(int64(1), "SIMPLE", "orders", nil, "ALL", nil, nil, nil, nil, int64(250000), "100.00", "Using where"),
	)

	plan, err := handle.ExplainPlan(context.Background(), "SELECT * FROM orders WHERE amount > 10")
	require.NoError(t, err)
	require.Len(t, plan.MySQL, 1)

	row := plan.MySQL[0]
	assert.Equal(t, int64(1), row.ID)
	assert.Equal(t, "SIMPLE", row.SelectType)
	assert.Equal(t, int64(250000), row.Rows)
	assert.True(t, row.FullTableScan())
	assert.Nil(t, row.Key)
	require.NotNil(t, row.Extra)
	assert.Equal(t, "Using where", *row.Extra)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExplainPlanIndexedAccessIsNotFullScan(t *testing.T) {
	handle, mock := newMockHandle(t)

	columns := []string{"id", "select_type", "table", "partitions", "type",
		"possible_keys", "key", "key_len", "ref", "rows", "filtered", "Extra"}
	mock.ExpectQuery("EXPLAIN SELECT").WillReturnRows(
		sqlmock.NewRows(columns).
			AddRow(int64(1), "SIMPLE", "orders", nil, "ref", "idx_customer", "idx_customer", "4", "const", int64(12), "100.00", nil),
	)

	plan, err := handle.ExplainPlan(context.Background(), "SELECT * FROM orders WHERE customer_id = 7")
	require.NoError(t, err)
	require.Len(t, plan.MySQL, 1)
	assert.False(t, plan.MySQL[0].FullTableScan())
}

func TestPingReturnsVersion(t *testing.T) {
	handle, mock := newMockHandle(t)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT VERSION").WillReturnRows(
		sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.36"),
	)

	version, err := handle.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", version)
}

func TestSessionStagingSQL(t *testing.T) {
	handle, mock := newMockHandle(t)

	mock.ExpectExec(`CREATE TEMPORARY TABLE .cmp_src_abc. AS`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(int64(3)),
	)
	mock.ExpectExec(`DROP TEMPORARY TABLE IF EXISTS .cmp_src_abc.`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sess, err := handle.Session(context.Background())
	require.NoError(t, err)
	defer sess.Release()

	count, err := sess.StageQueryResult(context.Background(), "cmp_src_abc", "SELECT id FROM t")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, sess.DropStaging(context.Background(), "cmp_src_abc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDSNIncludesTLSAndParseTime(t *testing.T) {
	db := models.LogicalDatabase{
		Name:     "orders_mysql",
		Engine:   models.EngineMySQL,
		Host:     "db1",
		Port:     3306,
		Database: "orders",
		User:     "app",
		Password: "hunter2",
		SSLMode:  "disable",
	}
	assert.Equal(t, "app:hunter2@tcp(db1:3306)/orders?tls=false&parseTime=true", dsn(db))
}
