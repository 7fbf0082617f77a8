package compare

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/logging"
)

// phase tracks where a comparison run is in its lifecycle. Failures at any
// phase still route through cleanup before the run reports.
type phase string

const (
	phaseCreated    phase = "created"
	phaseStaged     phase = "staged"
	phaseDiffed     phase = "diffed"
	phaseSummarized phase = "summarized"
	phaseCleaned    phase = "cleaned"
)

const (
	stagingSourcePrefix = "cmp_src"
	stagingTargetPrefix = "cmp_tgt"

	cleanupTimeout = 30 * time.Second
)

// stagingID returns a fresh 12-hex-character invocation id, so concurrent
// comparisons against the same database never collide on staging names.
func stagingID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:6])
}

// cleanupStaging drops the given staging tables and returns a warning per
// table that could not be dropped. It runs even when the surrounding request
// context is already canceled: leaked global temp tables outlive the request,
// so cleanup gets its own deadline detached from the caller's.
func cleanupStaging(ctx context.Context, sess engine.Session, tables []string, log *zap.Logger) []string {
	dropCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	var warnings []string
	for _, table := range tables {
		if err := sess.DropStaging(dropCtx, table); err != nil {
			msg := "failed to drop staging table " + table + ": " + logging.SanitizeError(err)
			warnings = append(warnings, msg)
			log.Warn("staging cleanup failed",
				zap.String("table", table),
				zap.Error(err))
			continue
		}
		log.Debug("dropped staging table", zap.String("table", table))
	}
	return warnings
}
