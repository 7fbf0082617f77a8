package sqlserver

import (
	"fmt"
	"net/url"

	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

func connString(db models.LogicalDatabase) string {
	port := db.Port
	if port == 0 {
		port = DefaultPort()
	}

	query := url.Values{}
	query.Add("database", db.Database)
	switch db.SSLMode {
	case "disable":
		query.Add("encrypt", "false")
	case "require":
		query.Add("encrypt", "true")
		query.Add("TrustServerCertificate", "true")
	default:
		query.Add("encrypt", "true")
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(db.User),
		url.QueryEscape(db.Password),
		db.Host,
		port,
		query.Encode(),
	)
}
