package mysql

import (
	"fmt"

	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// tlsParam maps the catalog ssl_mode setting onto the go-sql-driver tls
// parameter values.
func tlsParam(sslMode string) string {
	switch sslMode {
	case "disable":
		return "false"
	case "require":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return "true"
	default:
		return "preferred"
	}
}

func dsn(db models.LogicalDatabase) string {
	port := db.Port
	if port == 0 {
		port = DefaultPort()
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?tls=%s&parseTime=true",
		db.User, db.Password, db.Host, port, db.Database, tlsParam(db.SSLMode))
}
