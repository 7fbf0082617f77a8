package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength caps how much of a comparison query is ever logged.
	MaxQueryLogLength = 120
	// RedactedText replaces sensitive data in log output.
	RedactedText = "[REDACTED]"
)

var (
	// password=..., pwd=..., pass=... in DSN-style strings (until the next
	// delimiter). Covers postgres keyword DSNs, mysql DSN query params and
	// sqlserver connection strings.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host credentials embedded in URL-style connection strings
	// (postgres://u:p@h, mysql DSN u:p@tcp(h)).
	credentialsPattern = regexp.MustCompile(`(^|[\s"(:/])([^\s:@"(/]+):([^\s@"(]+)@`)
)

// SanitizeConnectionString removes credentials from a connection string before
// it is logged or attached to an error surface.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = credentialsPattern.ReplaceAllString(sanitized, "${1}"+RedactedText+":"+RedactedText+"@")
	return sanitized
}

// SanitizeError scrubs a database error message. Driver errors routinely echo
// the DSN back, so every error that reaches a log line or a caller-visible
// message goes through here first.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}

// SanitizeQuery truncates a SQL query for logging. Queries are caller input
// and may be arbitrarily large; they are never logged in full.
func SanitizeQuery(query string) string {
	if len(query) <= MaxQueryLogLength {
		return query
	}
	return query[:MaxQueryLogLength] + "..."
}
