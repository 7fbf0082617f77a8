package models

import "time"

// AvailabilityCause classifies why a database failed its reachability check.
type AvailabilityCause string

const (
	CauseNone        AvailabilityCause = ""
	CauseTimeout     AvailabilityCause = "timeout"
	CauseAuthFailure AvailabilityCause = "auth_failure"
	CauseUnreachable AvailabilityCause = "unreachable"
)

// AvailabilityResult is the outcome of a bounded-time reachability probe.
type AvailabilityResult struct {
	Database  string            `json:"database"`
	Engine    EngineKind        `json:"engine"`
	Available bool              `json:"available"`
	Latency   time.Duration     `json:"latency_ms"`
	Version   string            `json:"version,omitempty"`
	Cause     AvailabilityCause `json:"cause,omitempty"`
	Error     string            `json:"error,omitempty"` // sanitized, never carries credentials
	CheckedAt time.Time         `json:"checked_at"`
}
