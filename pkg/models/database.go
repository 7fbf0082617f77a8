package models

import "fmt"

// EngineKind identifies one of the supported database engine families.
// The set is closed: adding a family is a deliberate code change across the
// engine adapters, never a runtime registration.
type EngineKind string

const (
	EnginePostgres  EngineKind = "postgres"
	EngineMySQL     EngineKind = "mysql"
	EngineSQLServer EngineKind = "sqlserver"
)

// ParseEngineKind validates an engine kind string from the catalog.
func ParseEngineKind(s string) (EngineKind, error) {
	switch EngineKind(s) {
	case EnginePostgres, EngineMySQL, EngineSQLServer:
		return EngineKind(s), nil
	default:
		return "", fmt.Errorf("unsupported engine kind %q (supported: postgres, mysql, sqlserver)", s)
	}
}

// StagingMode selects how an engine materializes a query result for diffing.
// It is a catalog attribute, never runtime-detected, so comparisons stay
// deterministic for a given configuration.
type StagingMode string

const (
	// StagingTemp stages into an engine-native temporary table.
	StagingTemp StagingMode = "temp"
	// StagingInline skips staging and inlines the validated query as a
	// subquery in the diff statements. Used where staging privileges are
	// absent.
	StagingInline StagingMode = "inline"
)

// LogicalDatabase is a named, pre-configured connection target. Instances are
// loaded once from the catalog and immutable afterwards; callers refer to a
// database by name only and never supply free-form connection strings.
type LogicalDatabase struct {
	Name        string      `json:"name"`
	Engine      EngineKind  `json:"engine"`
	Host        string      `json:"host"`
	Port        int         `json:"port"`
	Database    string      `json:"database"`
	User        string      `json:"user"`
	Password    string      `json:"-"` // resolved from env, never serialized
	SSLMode     string      `json:"ssl_mode,omitempty"`
	Description string      `json:"description,omitempty"`
	Staging     StagingMode `json:"staging"`

	// CostCeilingSeconds overrides the global cost ceiling for this database.
	// Zero means no override.
	CostCeilingSeconds int `json:"cost_ceiling_seconds,omitempty"`
}

// DatabaseInfo is the redacted catalog view exposed by ListDatabases.
type DatabaseInfo struct {
	Name        string     `json:"name"`
	Engine      EngineKind `json:"engine"`
	Host        string     `json:"host"`
	Database    string     `json:"database"`
	Description string     `json:"description,omitempty"`
}

// Info returns the redacted view of a logical database.
func (d LogicalDatabase) Info() DatabaseInfo {
	return DatabaseInfo{
		Name:        d.Name,
		Engine:      d.Engine,
		Host:        d.Host,
		Database:    d.Database,
		Description: d.Description,
	}
}
