// Package cost normalizes engine execution plans into a common time estimate
// and judges them against the configured ceiling. The estimator is policy
// free: it reports whether a query is acceptable, and the orchestrator
// decides what an override is allowed to do about it.
package cost

import (
	"encoding/json"
	"fmt"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// Default normalization scales. Planner units differ wildly between engines;
// these map each engine's native cost onto rough wall-clock seconds.
const (
	// DefaultPostgresUnitsPerSecond converts PostgreSQL planner cost units.
	DefaultPostgresUnitsPerSecond = 10000.0
	// DefaultMySQLRowsPerSecond converts MySQL examined-row estimates; EXPLAIN
	// reports rows, not cost.
	DefaultMySQLRowsPerSecond = 1e6
	// DefaultSQLServerCostPerSecond: SHOWPLAN subtree cost already
	// approximates seconds on the reference machine.
	DefaultSQLServerCostPerSecond = 1.0

	// DefaultCeilingSeconds rejects queries estimated beyond this runtime.
	DefaultCeilingSeconds = 300.0
	// DefaultWarnRows attaches a warning (not a rejection) above this
	// estimated row count.
	DefaultWarnRows = int64(1_000_000)
)

// Scales holds the per-engine normalization factors.
type Scales struct {
	PostgresUnitsPerSecond float64
	MySQLRowsPerSecond     float64
	SQLServerCostPerSecond float64
}

// DefaultScales returns the built-in normalization factors.
func DefaultScales() Scales {
	return Scales{
		PostgresUnitsPerSecond: DefaultPostgresUnitsPerSecond,
		MySQLRowsPerSecond:     DefaultMySQLRowsPerSecond,
		SQLServerCostPerSecond: DefaultSQLServerCostPerSecond,
	}
}

// Thresholds holds the acceptance ceiling and the row-count warning level.
type Thresholds struct {
	CeilingSeconds float64
	WarnRows       int64
}

// DefaultThresholds returns the built-in gate levels.
func DefaultThresholds() Thresholds {
	return Thresholds{CeilingSeconds: DefaultCeilingSeconds, WarnRows: DefaultWarnRows}
}

// Estimator turns raw plans into normalized cost estimates.
type Estimator struct {
	scales     Scales
	thresholds Thresholds
}

// NewEstimator builds an estimator; zero-valued fields fall back to defaults.
func NewEstimator(scales Scales, thresholds Thresholds) *Estimator {
	if scales.PostgresUnitsPerSecond <= 0 {
		scales.PostgresUnitsPerSecond = DefaultPostgresUnitsPerSecond
	}
	if scales.MySQLRowsPerSecond <= 0 {
		scales.MySQLRowsPerSecond = DefaultMySQLRowsPerSecond
	}
	if scales.SQLServerCostPerSecond <= 0 {
		scales.SQLServerCostPerSecond = DefaultSQLServerCostPerSecond
	}
	if thresholds.CeilingSeconds <= 0 {
		thresholds.CeilingSeconds = DefaultCeilingSeconds
	}
	if thresholds.WarnRows <= 0 {
		thresholds.WarnRows = DefaultWarnRows
	}
	return &Estimator{scales: scales, thresholds: thresholds}
}

// Estimate normalizes a raw plan for the given catalog entry. An empty or
// missing plan fails closed: the estimate comes back unacceptable rather than
// waving the query through unmeasured. The per-database ceiling, when set,
// overrides the global one.
func (e *Estimator) Estimate(db models.LogicalDatabase, plan *engine.RawPlan) models.CostEstimate {
	estimate := models.CostEstimate{
		Database: db.Name,
		Engine:   db.Engine,
		RawPlan:  renderPlan(plan),
	}

	if plan.Empty() {
		estimate.Acceptable = false
		estimate.Reason = "no execution plan available; failing closed"
		return estimate
	}

	switch {
	case plan.Postgres != nil:
		e.fromPostgres(&estimate, plan.Postgres)
	case len(plan.MySQL) > 0:
		e.fromMySQL(&estimate, plan.MySQL)
	case len(plan.SQLServer) > 0:
		e.fromSQLServer(&estimate, plan.SQLServer)
	}

	ceiling := e.thresholds.CeilingSeconds
	if db.CostCeilingSeconds > 0 {
		ceiling = float64(db.CostCeilingSeconds)
	}

	if estimate.EstimatedSeconds > ceiling {
		estimate.Acceptable = false
		estimate.Reason = fmt.Sprintf(
			"estimated runtime %.1fs exceeds ceiling %.0fs", estimate.EstimatedSeconds, ceiling)
		estimate.Recommendations = append(estimate.Recommendations,
			"narrow the query with more selective predicates, or have a privileged requester override the gate")
	} else {
		estimate.Acceptable = true
	}

	if estimate.EstimatedRows > e.thresholds.WarnRows {
		estimate.Warning = fmt.Sprintf(
			"estimated result of %d rows exceeds warning threshold %d",
			estimate.EstimatedRows, e.thresholds.WarnRows)
		estimate.Recommendations = append(estimate.Recommendations,
			"add filters or aggregate before comparing; very large result sets slow the diff")
	}

	if estimate.FullScanDetected {
		estimate.Recommendations = append(estimate.Recommendations,
			"plan contains a full table scan; an index on the filtered columns would reduce cost")
	}

	return estimate
}

// renderPlan serializes the raw plan for diagnostics. The estimate carries
// the plan as text so API responses stay engine-neutral.
func renderPlan(plan *engine.RawPlan) string {
	if plan.Empty() {
		return ""
	}
	rendered, err := json.Marshal(plan)
	if err != nil {
		return ""
	}
	return string(rendered)
}

func (e *Estimator) fromPostgres(estimate *models.CostEstimate, root *engine.PostgresPlan) {
	estimate.EstimatedCost = root.TotalCost
	estimate.EstimatedRows = root.PlanRows
	estimate.EstimatedSeconds = root.TotalCost / e.scales.PostgresUnitsPerSecond
	estimate.FullScanDetected = postgresHasSeqScan(root)
}

func postgresHasSeqScan(node *engine.PostgresPlan) bool {
	if node.NodeType == "Seq Scan" {
		return true
	}
	for i := range node.Plans {
		if postgresHasSeqScan(&node.Plans[i]) {
			return true
		}
	}
	return false
}

func (e *Estimator) fromMySQL(estimate *models.CostEstimate, rows []engine.MySQLPlanRow) {
	// EXPLAIN reports per-table row estimates; the largest step dominates.
	var examined int64
	for _, row := range rows {
		if row.FullTableScan() {
			estimate.FullScanDetected = true
		}
		if row.Rows > examined {
			examined = row.Rows
		}
	}

	estimate.EstimatedRows = examined
	estimate.EstimatedCost = float64(examined)
	estimate.EstimatedSeconds = float64(examined) / e.scales.MySQLRowsPerSecond
}

func (e *Estimator) fromSQLServer(estimate *models.CostEstimate, rows []engine.ShowplanRow) {
	// The root of the SHOWPLAN hierarchy carries the total subtree cost.
	root := rows[0]
	for _, row := range rows {
		if row.Parent == 0 {
			root = row
			break
		}
	}

	estimate.EstimatedCost = root.TotalSubtreeCost
	estimate.EstimatedRows = int64(root.EstimateRows)
	estimate.EstimatedSeconds = root.TotalSubtreeCost / e.scales.SQLServerCostPerSecond

	for _, row := range rows {
		if row.PhysicalOp == nil {
			continue
		}
		switch *row.PhysicalOp {
		case "Table Scan", "Clustered Index Scan":
			estimate.FullScanDetected = true
		}
	}
}
