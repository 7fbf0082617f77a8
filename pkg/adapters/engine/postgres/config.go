package postgres

import (
	"fmt"
	"net/url"

	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

func connString(db models.LogicalDatabase) string {
	port := db.Port
	if port == 0 {
		port = DefaultPort()
	}
	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(db.User),
		url.QueryEscape(db.Password),
		db.Host,
		port,
		url.QueryEscape(db.Database),
		sslMode,
	)
}
