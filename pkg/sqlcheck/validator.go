// Package sqlcheck admits or rejects comparison queries. Only read-only
// SELECT/WITH statements pass; everything else is rejected with the specific
// trigger so the caller can rewrite the query.
package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// Violation codes. Every rejection names its trigger.
const (
	CodeEmptyQuery       = "empty_query"
	CodeNotReadOnly      = "not_read_only"
	CodeDeniedKeyword    = "denied_keyword"
	CodeSelectInto       = "select_into"
	CodeMultipleStmts    = "multiple_statements"
	CodeSuspiciousString = "suspicious_literal"
)

// deniedKeywords are rejected wherever they appear as a whole word outside
// quoted spans. Order fixes the order of reported violations.
var deniedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE", "ALTER", "CREATE",
	"GRANT", "REVOKE", "EXECUTE", "CALL", "MERGE", "REPLACE", "LOCK",
}

var (
	keywordPatterns  = make(map[string]*regexp.Regexp, len(deniedKeywords))
	selectIntoRegexp = regexp.MustCompile(`(?s)\bSELECT\b.*?\bINTO\b`)
	firstWordRegexp  = regexp.MustCompile(`^[A-Za-z_]+`)
)

func init() {
	for _, kw := range deniedKeywords {
		keywordPatterns[kw] = regexp.MustCompile(`\b` + kw + `\b`)
	}
}

// Violation describes one reason a query was rejected.
type Violation struct {
	Code    string `json:"code"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// ValidationResult reports admission, the ordered violation list, and the
// normalized query (trailing statement separator stripped) when admitted.
type ValidationResult struct {
	Admitted   bool        `json:"admitted"`
	Violations []Violation `json:"violations,omitempty"`
	// Warnings are advisory findings that do not affect admission, e.g.
	// injection-shaped string literals flagged by libinjection.
	Warnings   []Violation `json:"warnings,omitempty"`
	Normalized string      `json:"normalized,omitempty"`
}

// Validate checks that a query is read-only and single-statement. All checks
// run; violations accumulate rather than short-circuiting, so the caller sees
// every trigger at once. Validation failures are terminal for a comparison
// request and are never retried.
func Validate(query string) ValidationResult {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ValidationResult{Violations: []Violation{{
			Code:    CodeEmptyQuery,
			Message: "query is empty",
		}}}
	}

	// Quoted spans are blanked before any keyword matching: a literal value
	// containing a denylisted word is never mistaken for the keyword, and a
	// keyword outside quotes is never hidden by unusual quoting.
	masked := strings.ToUpper(maskQuotedSpans(trimmed))

	var violations []Violation

	head := stripLeadingNoise(masked)
	first := firstWordRegexp.FindString(head)
	if first != "SELECT" && first != "WITH" {
		if first == "" {
			first = "(none)"
		}
		violations = append(violations, Violation{
			Code:    CodeNotReadOnly,
			Token:   first,
			Message: fmt.Sprintf("query must begin with SELECT or WITH, found %s", first),
		})
	}

	for _, kw := range deniedKeywords {
		if keywordPatterns[kw].MatchString(masked) {
			violations = append(violations, Violation{
				Code:    CodeDeniedKeyword,
				Token:   kw,
				Message: fmt.Sprintf("keyword %s is not allowed in read-only queries", kw),
			})
		}
	}

	if selectIntoRegexp.MatchString(masked) {
		violations = append(violations, Violation{
			Code:    CodeSelectInto,
			Token:   "INTO",
			Message: "SELECT ... INTO creates a table and is not allowed",
		})
	}

	if strings.Count(masked, ";") > 1 {
		violations = append(violations, Violation{
			Code:    CodeMultipleStmts,
			Token:   ";",
			Message: "multiple statement separators found; only a single statement is allowed",
		})
	}

	if len(violations) > 0 {
		return ValidationResult{Violations: violations}
	}

	return ValidationResult{
		Admitted:   true,
		Warnings:   scanLiterals(trimmed),
		Normalized: stripTrailingSeparator(trimmed),
	}
}

// maskQuotedSpans replaces the contents of single- and double-quoted spans
// (quotes included) with spaces, preserving length and word boundaries. The
// state machine honors the SQL doubled-quote escape ('') and backslash
// escapes.
func maskQuotedSpans(sqlQuery string) string {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	out := []rune(sqlQuery)
	state := stateNormal
	prev := rune(0)

	for i, ch := range out {
		switch state {
		case stateNormal:
			switch ch {
			case '\'':
				state = stateSingleQuote
				out[i] = ' '
			case '"':
				state = stateDoubleQuote
				out[i] = ' '
			}
		case stateSingleQuote:
			// A doubled quote ('') exits here and immediately re-enters on
			// the next quote, which keeps the whole literal masked.
			if ch == '\'' && prev != '\\' {
				state = stateNormal
			}
			out[i] = ' '
		case stateDoubleQuote:
			if ch == '"' && prev != '\\' {
				state = stateNormal
			}
			out[i] = ' '
		}
		prev = ch
	}

	return string(out)
}

// stripLeadingNoise removes whitespace, comments, and balanced leading
// parentheses so the first-keyword check sees the real statement head.
// Operates on the masked, uppercased query.
func stripLeadingNoise(masked string) string {
	s := masked
	for {
		trimmed := strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(trimmed, "--"):
			if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
				s = trimmed[idx+1:]
				continue
			}
			return ""
		case strings.HasPrefix(trimmed, "/*"):
			if idx := strings.Index(trimmed, "*/"); idx >= 0 {
				s = trimmed[idx+2:]
				continue
			}
			return ""
		}
		return trimmed
	}
}

// stripTrailingSeparator normalizes an admitted query by removing one
// trailing statement separator.
func stripTrailingSeparator(sqlQuery string) string {
	s := strings.TrimRight(sqlQuery, " \t\r\n")
	if strings.HasSuffix(s, ";") {
		s = strings.TrimRight(strings.TrimSuffix(s, ";"), " \t\r\n")
	}
	return s
}

// scanLiterals runs libinjection over the contents of single-quoted literals.
// A literal that fingerprints as SQL injection (e.g. a quote-breaking payload)
// is reported as an advisory warning; plain data that merely contains a
// keyword does not trip this.
func scanLiterals(sqlQuery string) []Violation {
	var warnings []Violation
	for _, lit := range extractSingleQuotedLiterals(sqlQuery) {
		if isSQLi, fingerprint := libinjection.IsSQLi(lit); isSQLi {
			warnings = append(warnings, Violation{
				Code:    CodeSuspiciousString,
				Token:   string(fingerprint),
				Message: "string literal matches a SQL injection fingerprint",
			})
		}
	}
	return warnings
}

func extractSingleQuotedLiterals(sqlQuery string) []string {
	var (
		literals []string
		current  []rune
		inside   bool
		prev     rune
	)
	for _, ch := range sqlQuery {
		if inside {
			if ch == '\'' && prev != '\\' {
				literals = append(literals, string(current))
				current = current[:0]
				inside = false
			} else {
				current = append(current, ch)
			}
		} else if ch == '\'' {
			inside = true
		}
		prev = ch
	}
	return literals
}
