// Package audit records one structured event per comparison request. The
// audit trail is the answer to "who compared what, and did anyone override a
// safety rejection" — it is written on every outcome, not just successes.
package audit

import (
	"time"

	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// Outcome classifies how a comparison request ended.
type Outcome string

const (
	OutcomeCompleted           Outcome = "completed"
	OutcomeValidationRejected  Outcome = "validation_rejected"
	OutcomeDatabaseUnavailable Outcome = "database_unavailable"
	OutcomeCostRejected        Outcome = "cost_rejected"
	OutcomeExecutionFailed     Outcome = "execution_failed"
)

// Event is one comparison request's audit record.
type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	Requester      string    `json:"requester"`
	RequesterRole  string    `json:"requester_role"`
	SourceDatabase string    `json:"source_database"`
	TargetDatabase string    `json:"target_database"`
	Outcome        Outcome   `json:"outcome"`

	// ValidationCodes lists the violation codes when validation rejected the
	// request.
	ValidationCodes []string `json:"validation_codes,omitempty"`

	SourceCost *models.CostEstimate `json:"source_cost,omitempty"`
	TargetCost *models.CostEstimate `json:"target_cost,omitempty"`

	// OverrideUsed is recorded whenever a privileged caller forced execution
	// past an unacceptable estimate, whatever the final outcome.
	OverrideUsed bool `json:"override_used"`

	Summary  *models.ComparisonSummary `json:"summary,omitempty"`
	Error    string                    `json:"error,omitempty"`
	Duration time.Duration             `json:"duration_ms"`
}

// Sink receives audit events. Implementations must not block the request
// path on slow destinations.
type Sink interface {
	Record(event Event)
}

// ZapSink writes audit events to a dedicated named logger, one Info entry per
// event.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink builds the standard log-backed sink.
func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log.Named("comparison_audit")}
}

func (s *ZapSink) Record(event Event) {
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("requester", event.Requester),
		zap.String("requester_role", event.RequesterRole),
		zap.String("source_database", event.SourceDatabase),
		zap.String("target_database", event.TargetDatabase),
		zap.String("outcome", string(event.Outcome)),
		zap.Bool("override_used", event.OverrideUsed),
		zap.Duration("duration", event.Duration),
	}
	if len(event.ValidationCodes) > 0 {
		fields = append(fields, zap.Strings("validation_codes", event.ValidationCodes))
	}
	if event.SourceCost != nil {
		fields = append(fields,
			zap.Float64("source_estimated_seconds", event.SourceCost.EstimatedSeconds),
			zap.Bool("source_acceptable", event.SourceCost.Acceptable))
	}
	if event.TargetCost != nil {
		fields = append(fields,
			zap.Float64("target_estimated_seconds", event.TargetCost.EstimatedSeconds),
			zap.Bool("target_acceptable", event.TargetCost.Acceptable))
	}
	if event.Summary != nil {
		fields = append(fields,
			zap.Int64("matched", event.Summary.Matched),
			zap.Int64("source_only", event.Summary.SourceOnly),
			zap.Int64("target_only", event.Summary.TargetOnly),
			zap.Int64("mismatched_rows", event.Summary.MismatchedRows))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	s.log.Info("comparison audited", fields...)
}

// NopSink discards events; used in tests and tools that do not audit.
type NopSink struct{}

func (NopSink) Record(Event) {}
