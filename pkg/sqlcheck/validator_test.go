package sqlcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func violationCodes(violations []Violation) []string {
	codes := make([]string, 0, len(violations))
	for _, v := range violations {
		codes = append(codes, v.Code)
	}
	return codes
}

func violationTokens(violations []Violation) []string {
	tokens := make([]string, 0, len(violations))
	for _, v := range violations {
		tokens = append(tokens, v.Token)
	}
	return tokens
}

func TestValidateAdmitsPlainSelect(t *testing.T) {
	result := Validate("SELECT * FROM t")
	assert.True(t, result.Admitted)
	assert.Empty(t, result.Violations)
	assert.Equal(t, "SELECT * FROM t", result.Normalized)
}

func TestValidateRejectsDelete(t *testing.T) {
	result := Validate("DELETE FROM t")
	assert.False(t, result.Admitted)
	assert.Contains(t, violationTokens(result.Violations), "DELETE")
}

func TestValidateAdmitsKeywordInsideLiteral(t *testing.T) {
	result := Validate("SELECT * FROM t WHERE name = 'DELETE ME'")
	assert.True(t, result.Admitted, "keyword inside a string literal must not reject")
	assert.Empty(t, result.Violations)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	result := Validate("DROP TABLE a; TRUNCATE b; DELETE FROM c")
	require.False(t, result.Admitted)

	tokens := violationTokens(result.Violations)
	assert.Contains(t, tokens, "DROP")
	assert.Contains(t, tokens, "TRUNCATE")
	assert.Contains(t, tokens, "DELETE")
	assert.Contains(t, violationCodes(result.Violations), CodeNotReadOnly)
	assert.Contains(t, violationCodes(result.Violations), CodeMultipleStmts)
}

func TestValidateKeywordOrderIsStable(t *testing.T) {
	result := Validate("SELECT 1; UPDATE t SET a = 1; INSERT INTO t VALUES (1)")
	require.False(t, result.Admitted)

	var keywords []string
	for _, v := range result.Violations {
		if v.Code == CodeDeniedKeyword {
			keywords = append(keywords, v.Token)
		}
	}
	// Reported in denylist order, not query order.
	assert.Equal(t, []string{"INSERT", "UPDATE"}, keywords)
}

func TestValidateWithQuery(t *testing.T) {
	result := Validate("WITH recent AS (SELECT id FROM orders) SELECT * FROM recent")
	assert.True(t, result.Admitted)
}

func TestValidateParenthesizedSelect(t *testing.T) {
	result := Validate("((SELECT 1))")
	assert.True(t, result.Admitted)
}

func TestValidateLeadingComments(t *testing.T) {
	result := Validate("-- nightly recon\n/* q42 */ SELECT id FROM orders")
	assert.True(t, result.Admitted)
}

func TestValidateRejectsSelectInto(t *testing.T) {
	result := Validate("SELECT * INTO backup_t FROM t")
	require.False(t, result.Admitted)
	assert.Contains(t, violationCodes(result.Violations), CodeSelectInto)
}

func TestValidateAdmitsIntoAsIdentifierPrefix(t *testing.T) {
	result := Validate("SELECT * FROM into_history")
	assert.True(t, result.Admitted)
}

func TestValidateSingleTrailingSeparator(t *testing.T) {
	result := Validate("SELECT 1;")
	require.True(t, result.Admitted)
	assert.Equal(t, "SELECT 1", result.Normalized)

	result = Validate("SELECT 1; ; ")
	assert.False(t, result.Admitted)
	assert.Contains(t, violationCodes(result.Violations), CodeMultipleStmts)
}

func TestValidateEmptyQuery(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		result := Validate(q)
		assert.False(t, result.Admitted)
		require.Len(t, result.Violations, 1)
		assert.Equal(t, CodeEmptyQuery, result.Violations[0].Code)
	}
}

func TestValidateRejectsNonSelectHead(t *testing.T) {
	result := Validate("SHOW TABLES")
	require.False(t, result.Admitted)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, CodeNotReadOnly, result.Violations[0].Code)
	assert.Equal(t, "SHOW", result.Violations[0].Token)
}

func TestValidateLowercaseKeywords(t *testing.T) {
	result := Validate("delete from t")
	assert.False(t, result.Admitted)
	assert.Contains(t, violationTokens(result.Violations), "DELETE")
}

func TestValidateDoubledQuoteEscape(t *testing.T) {
	// The '' escape keeps the literal span masked end to end.
	result := Validate("SELECT * FROM t WHERE note = 'it''s a DROP test'")
	assert.True(t, result.Admitted)
	assert.Empty(t, result.Violations)
}

func TestValidateInjectionShapedLiteralWarns(t *testing.T) {
	result := Validate("SELECT * FROM t WHERE id = '1 UNION SELECT * FROM passwords'")
	// Admission is unaffected; the finding is advisory.
	assert.True(t, result.Admitted)
	assert.NotEmpty(t, result.Warnings)
	assert.Equal(t, CodeSuspiciousString, result.Warnings[0].Code)
}
