package engine

// RawPlan is the tagged union of engine execution plans. Exactly one field is
// set, matching the handle's engine kind.
type RawPlan struct {
	Postgres  *PostgresPlan  `json:"postgres,omitempty"`
	MySQL     []MySQLPlanRow `json:"mysql,omitempty"`
	SQLServer []ShowplanRow  `json:"sqlserver,omitempty"`
}

// Empty reports whether the plan carries no engine output at all. An empty
// plan means the explain step produced nothing usable; cost estimation fails
// closed on it.
func (p *RawPlan) Empty() bool {
	return p == nil || (p.Postgres == nil && len(p.MySQL) == 0 && len(p.SQLServer) == 0)
}

// PostgresPlan is one node of EXPLAIN (FORMAT JSON) output. Field names match
// the JSON keys PostgreSQL emits.
type PostgresPlan struct {
	NodeType     string         `json:"Node Type"`
	RelationName string         `json:"Relation Name,omitempty"`
	StartupCost  float64        `json:"Startup Cost"`
	TotalCost    float64        `json:"Total Cost"`
	PlanRows     int64          `json:"Plan Rows"`
	PlanWidth    int            `json:"Plan Width"`
	Plans        []PostgresPlan `json:"Plans,omitempty"`
}

// PostgresExplain is the top-level element of the JSON array PostgreSQL
// returns from EXPLAIN (FORMAT JSON).
type PostgresExplain struct {
	Plan PostgresPlan `json:"Plan"`
}

// MySQLPlanRow is one row of tabular EXPLAIN output. Nullable columns are
// pointers; EXPLAIN leaves key and ref NULL when no index applies.
type MySQLPlanRow struct {
	ID           int64    `json:"id"`
	SelectType   string   `json:"select_type"`
	Table        *string  `json:"table"`
	AccessType   *string  `json:"type"`
	PossibleKeys *string  `json:"possible_keys"`
	Key          *string  `json:"key"`
	Rows         int64    `json:"rows"`
	Filtered     *float64 `json:"filtered"`
	Extra        *string  `json:"extra"`
}

// FullTableScan reports whether this plan row reads the whole table
// (access type ALL with no usable index).
func (r MySQLPlanRow) FullTableScan() bool {
	return r.AccessType != nil && *r.AccessType == "ALL"
}

// ShowplanRow is one row of SET SHOWPLAN_ALL output. SQL Server returns the
// estimated plan as a hierarchy of rows; NodeID/Parent encode the tree.
type ShowplanRow struct {
	StmtText         string  `json:"stmt_text"`
	NodeID           int64   `json:"node_id"`
	Parent           int64   `json:"parent"`
	PhysicalOp       *string `json:"physical_op"`
	LogicalOp        *string `json:"logical_op"`
	EstimateRows     float64 `json:"estimate_rows"`
	TotalSubtreeCost float64 `json:"total_subtree_cost"`
}
