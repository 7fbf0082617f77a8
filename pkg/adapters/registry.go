// Package adapters wires the engine catalog to concrete database handles and
// pools checkouts per logical database.
package adapters

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/logging"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
	"github.com/crossdiff-io/crossdiff-engine/pkg/retry"
)

const (
	DefaultMaxCheckoutsPerDatabase = 4
	DefaultAcquireTimeout          = 10 * time.Second
)

// RegistryOptions configures checkout limits and handle construction.
type RegistryOptions struct {
	// MaxCheckoutsPerDatabase bounds concurrent leases per logical database.
	MaxCheckoutsPerDatabase int
	// AcquireTimeout bounds how long Acquire waits for a free slot before
	// failing with a pool-exhausted error.
	AcquireTimeout time.Duration
	// Factory overrides handle construction. Tests inject fakes here; the
	// zero value uses the engine-kind switch in OpenHandle.
	Factory engine.Factory
}

// Registry owns the catalog of logical databases and the pooled handles
// attached to them. Handles open lazily on first checkout and live until
// Close; checkouts are bounded per database so one runaway comparison cannot
// monopolize an engine.
type Registry struct {
	mu      sync.Mutex
	catalog map[string]models.LogicalDatabase
	order   []string
	entries map[string]*registryEntry
	opts    RegistryOptions
	logger  *zap.Logger
	closed  bool
}

type registryEntry struct {
	mu     sync.Mutex
	handle engine.Handle
	slots  chan struct{}
}

// NewRegistry builds a registry over the configured catalog. Catalog order is
// preserved for listings; duplicate names keep the first entry.
func NewRegistry(catalog []models.LogicalDatabase, opts RegistryOptions, logger *zap.Logger) *Registry {
	if opts.MaxCheckoutsPerDatabase <= 0 {
		opts.MaxCheckoutsPerDatabase = DefaultMaxCheckoutsPerDatabase
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	if opts.Factory == nil {
		opts.Factory = OpenHandle
	}

	r := &Registry{
		catalog: make(map[string]models.LogicalDatabase, len(catalog)),
		entries: make(map[string]*registryEntry, len(catalog)),
		opts:    opts,
		logger:  logger,
	}
	for _, db := range catalog {
		if _, dup := r.catalog[db.Name]; dup {
			continue
		}
		r.catalog[db.Name] = db
		r.order = append(r.order, db.Name)
	}
	return r
}

// List returns redacted catalog entries in configuration order. Credentials
// never appear in the listing.
func (r *Registry) List() []models.DatabaseInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]models.DatabaseInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.catalog[name].Info())
	}
	return infos
}

// Lookup returns the catalog entry for a logical database name.
func (r *Registry) Lookup(name string) (models.LogicalDatabase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, ok := r.catalog[name]
	if !ok {
		return models.LogicalDatabase{}, apperrors.Wrap(
			apperrors.KindValidationRejected,
			"unknown database: "+name,
			apperrors.ErrUnknownDatabase,
		).With("database", name)
	}
	return db, nil
}

// Acquire checks out a lease on a database handle, waiting up to the
// configured acquire timeout for a free slot. The handle is opened on first
// checkout, with retry for transient connection failures.
func (r *Registry) Acquire(ctx context.Context, name string) (*Lease, error) {
	db, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	entry := r.entry(name)

	waitCtx, cancel := context.WithTimeout(ctx, r.opts.AcquireTimeout)
	defer cancel()

	select {
	case entry.slots <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.KindTimeout, "acquire canceled", ctx.Err()).
				With("database", name)
		}
		return nil, apperrors.New(apperrors.KindPoolExhausted,
			"no connection slot available for database "+name).
			With("database", name).
			With("max_checkouts", r.opts.MaxCheckoutsPerDatabase)
	}

	handle, err := r.handleFor(ctx, entry, db)
	if err != nil {
		<-entry.slots
		return nil, err
	}

	lease := &Lease{Handle: handle}
	lease.release = func() { <-entry.slots }
	return lease, nil
}

func (r *Registry) entry(name string) *registryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		e = &registryEntry{slots: make(chan struct{}, r.opts.MaxCheckoutsPerDatabase)}
		r.entries[name] = e
	}
	return e
}

func (r *Registry) handleFor(ctx context.Context, entry *registryEntry, db models.LogicalDatabase) (engine.Handle, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.handle != nil {
		return entry.handle, nil
	}

	handle, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (engine.Handle, error) {
		return r.opts.Factory(ctx, db)
	})
	if err != nil {
		r.logger.Warn("failed to open database handle",
			zap.String("database", db.Name),
			zap.String("engine", string(db.Engine)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, apperrors.Wrap(apperrors.KindDatabaseUnavailable,
			"cannot connect to database "+db.Name, err).
			With("database", db.Name).
			With("engine", string(db.Engine))
	}

	r.logger.Info("opened database handle",
		zap.String("database", db.Name),
		zap.String("engine", string(db.Engine)),
	)
	entry.handle = handle
	return handle, nil
}

// Close shuts down every open handle. Idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	for name, entry := range r.entries {
		entry.mu.Lock()
		if entry.handle != nil {
			if err := entry.handle.Close(); err != nil {
				r.logger.Warn("error closing database handle",
					zap.String("database", name),
					zap.String("error", logging.SanitizeError(err)),
				)
			}
			entry.handle = nil
		}
		entry.mu.Unlock()
	}
	return nil
}

// Lease is a checked-out handle. Release returns the checkout slot; the
// handle itself stays open for reuse.
type Lease struct {
	engine.Handle

	releaseOnce sync.Once
	release     func()
}

// Release frees the checkout slot. Safe to call more than once.
func (l *Lease) Release() {
	l.releaseOnce.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}
