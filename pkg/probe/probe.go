// Package probe answers "is this database reachable right now". A probe is a
// single liveness check with a hard deadline; it never retries, because the
// caller wants the current state, not an eventual one.
package probe

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters"
	"github.com/crossdiff-io/crossdiff-engine/pkg/logging"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// DefaultTimeout bounds a single availability check.
const DefaultTimeout = 5 * time.Second

// HandleSource is the slice of the registry the prober needs.
type HandleSource interface {
	Lookup(name string) (models.LogicalDatabase, error)
	Acquire(ctx context.Context, name string) (*adapters.Lease, error)
	List() []models.DatabaseInfo
}

// Prober checks catalog databases for liveness.
type Prober struct {
	source  HandleSource
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a prober. A non-positive timeout falls back to DefaultTimeout.
func New(source HandleSource, timeout time.Duration, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{source: source, timeout: timeout, logger: logger}
}

// Check pings one database and reports availability, latency, and server
// version. Failures are classified but never returned as errors: an
// unavailable database is a result, not a fault in the probe.
func (p *Prober) Check(ctx context.Context, name string) models.AvailabilityResult {
	result := models.AvailabilityResult{
		Database:  name,
		CheckedAt: time.Now().UTC(),
	}

	db, err := p.source.Lookup(name)
	if err != nil {
		result.Cause = models.CauseUnreachable
		result.Error = logging.SanitizeError(err)
		return result
	}
	result.Engine = db.Engine

	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	lease, err := p.source.Acquire(checkCtx, name)
	if err != nil {
		result.Latency = time.Since(start)
		result.Cause = classify(err)
		result.Error = logging.SanitizeError(err)
		p.logger.Warn("availability check failed",
			zap.String("database", name),
			zap.String("cause", string(result.Cause)),
			zap.String("error", result.Error),
		)
		return result
	}
	defer lease.Release()

	version, err := lease.Ping(checkCtx)
	result.Latency = time.Since(start)
	if err != nil {
		result.Cause = classify(err)
		result.Error = logging.SanitizeError(err)
		p.logger.Warn("availability check failed",
			zap.String("database", name),
			zap.String("cause", string(result.Cause)),
			zap.String("error", result.Error),
		)
		return result
	}

	result.Available = true
	result.Version = version
	return result
}

// CheckAll probes every catalog database in configuration order.
func (p *Prober) CheckAll(ctx context.Context) []models.AvailabilityResult {
	infos := p.source.List()
	results := make([]models.AvailabilityResult, 0, len(infos))
	for _, info := range infos {
		results = append(results, p.Check(ctx, info.Name))
	}
	return results
}

// classify buckets a probe failure into timeout, auth failure, or generic
// unreachability. Auth patterns cover the three engines' wording.
func classify(err error) models.AvailabilityCause {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.CauseTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded"):
		return models.CauseTimeout
	case strings.Contains(msg, "password authentication failed") || // postgres
		strings.Contains(msg, "access denied") || // mysql
		strings.Contains(msg, "login failed") || // sqlserver
		strings.Contains(msg, "authentication"):
		return models.CauseAuthFailure
	default:
		return models.CauseUnreachable
	}
}
