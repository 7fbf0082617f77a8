package models

// CostEstimate is the engine-neutral shape every execution plan is normalized
// into. Wall-time figures are explicitly heuristic: each family's plan cost is
// converted with a configurable scaling factor, not measured.
type CostEstimate struct {
	Database         string     `json:"database"`
	Engine           EngineKind `json:"engine"`
	EstimatedRows    int64      `json:"estimated_rows"`
	EstimatedCost    float64    `json:"estimated_cost_units"`
	EstimatedSeconds float64    `json:"estimated_seconds"`
	FullScanDetected bool       `json:"full_scan_detected"`
	Acceptable       bool       `json:"acceptable"`

	// Reason explains an unacceptable estimate, with a mitigation hint.
	Reason string `json:"reason,omitempty"`
	// Warning is set for acceptable-with-warning estimates (e.g. high
	// cardinality below the time ceiling).
	Warning string `json:"warning,omitempty"`
	// Recommendations are advisory optimization hints derived from the plan.
	Recommendations []string `json:"recommendations,omitempty"`

	// RawPlan is the native plan text for diagnostics.
	RawPlan string `json:"raw_plan,omitempty"`

	// OverrideUsed records that a privileged caller forced acceptance past an
	// unacceptable estimate. Set by the orchestrator, never by the estimator.
	OverrideUsed bool `json:"override_used"`
}
