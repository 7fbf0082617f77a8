package adapters

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

type fakeHandle struct {
	name   string
	closed atomic.Bool
}

func (f *fakeHandle) Kind() models.EngineKind { return models.EnginePostgres }
func (f *fakeHandle) Database() string        { return f.name }
func (f *fakeHandle) Dialect() engine.Dialect { return nil }
func (f *fakeHandle) Query(context.Context, string) (*engine.QueryResult, error) {
	return &engine.QueryResult{}, nil
}
func (f *fakeHandle) ExplainPlan(context.Context, string) (*engine.RawPlan, error) {
	return &engine.RawPlan{}, nil
}
func (f *fakeHandle) Ping(context.Context) (string, error) { return "fake 1.0", nil }
func (f *fakeHandle) Session(context.Context) (engine.Session, error) {
	return nil, errors.New("fake handle has no sessions")
}
func (f *fakeHandle) Close() error {
	f.closed.Store(true)
	return nil
}

func testCatalog() []models.LogicalDatabase {
	return []models.LogicalDatabase{
		{Name: "orders_pg", Engine: models.EnginePostgres, Host: "db1", Database: "orders"},
		{Name: "orders_my", Engine: models.EngineMySQL, Host: "db2", Database: "orders"},
	}
}

func TestAcquireOpensHandleOnce(t *testing.T) {
	var opens atomic.Int32
	registry := NewRegistry(testCatalog(), RegistryOptions{
		Factory: func(_ context.Context, db models.LogicalDatabase) (engine.Handle, error) {
			opens.Add(1)
			return &fakeHandle{name: db.Name}, nil
		},
	}, zap.NewNop())
	defer registry.Close()

	for i := 0; i < 3; i++ {
		lease, err := registry.Acquire(context.Background(), "orders_pg")
		require.NoError(t, err)
		assert.Equal(t, "orders_pg", lease.Database())
		lease.Release()
	}
	assert.Equal(t, int32(1), opens.Load())
}

func TestAcquireUnknownDatabase(t *testing.T) {
	registry := NewRegistry(testCatalog(), RegistryOptions{}, zap.NewNop())
	defer registry.Close()

	_, err := registry.Acquire(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownDatabase))
	assert.Equal(t, apperrors.KindValidationRejected, apperrors.KindOf(err))
}

func TestAcquireExhaustsCheckouts(t *testing.T) {
	registry := NewRegistry(testCatalog(), RegistryOptions{
		MaxCheckoutsPerDatabase: 1,
		AcquireTimeout:          50 * time.Millisecond,
		Factory: func(_ context.Context, db models.LogicalDatabase) (engine.Handle, error) {
			return &fakeHandle{name: db.Name}, nil
		},
	}, zap.NewNop())
	defer registry.Close()

	lease, err := registry.Acquire(context.Background(), "orders_pg")
	require.NoError(t, err)

	_, err = registry.Acquire(context.Background(), "orders_pg")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPoolExhausted, apperrors.KindOf(err))

	// Releasing frees the slot for the next checkout.
	lease.Release()
	lease2, err := registry.Acquire(context.Background(), "orders_pg")
	require.NoError(t, err)
	lease2.Release()
}

func TestFactoryFailureReleasesSlot(t *testing.T) {
	var calls atomic.Int32
	registry := NewRegistry(testCatalog(), RegistryOptions{
		MaxCheckoutsPerDatabase: 1,
		Factory: func(context.Context, models.LogicalDatabase) (engine.Handle, error) {
			calls.Add(1)
			return nil, errors.New("connection refused")
		},
	}, zap.NewNop())
	defer registry.Close()

	_, err := registry.Acquire(context.Background(), "orders_pg")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindDatabaseUnavailable, apperrors.KindOf(err))

	// The failed attempt must not leak the checkout slot.
	_, err = registry.Acquire(context.Background(), "orders_pg")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindDatabaseUnavailable, apperrors.KindOf(err))
}

func TestListRedactsCredentials(t *testing.T) {
	catalog := testCatalog()
	catalog[0].Password = "hunter2"
	registry := NewRegistry(catalog, RegistryOptions{}, zap.NewNop())
	defer registry.Close()

	infos := registry.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "orders_pg", infos[0].Name)
	assert.Equal(t, "orders_my", infos[1].Name)
}

func TestCloseShutsDownHandles(t *testing.T) {
	handle := &fakeHandle{name: "orders_pg"}
	registry := NewRegistry(testCatalog(), RegistryOptions{
		Factory: func(context.Context, models.LogicalDatabase) (engine.Handle, error) {
			return handle, nil
		},
	}, zap.NewNop())

	lease, err := registry.Acquire(context.Background(), "orders_pg")
	require.NoError(t, err)
	lease.Release()

	require.NoError(t, registry.Close())
	assert.True(t, handle.closed.Load())
	require.NoError(t, registry.Close(), "close is idempotent")
}
