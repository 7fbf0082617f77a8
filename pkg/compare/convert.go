package compare

import (
	"context"
	"fmt"
	"strconv"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
)

// nullKeySentinel stands in for NULL join-key values in mismatch records and
// in-process key maps. NULLs join null-safely, so a key column can be NULL on
// both sides and still match.
const nullKeySentinel = "<NULL>"

func misAlias(i int) string { return "mis_" + strconv.Itoa(i) }
func srcAlias(i int) string { return "src_" + strconv.Itoa(i) }
func tgtAlias(i int) string { return "tgt_" + strconv.Itoa(i) }

// queryScalar runs a single-row single-column query and converts the value to
// int64.
func queryScalar(ctx context.Context, sess engine.Session, sqlQuery string) (int64, error) {
	result, err := sess.Query(ctx, sqlQuery)
	if err != nil {
		return 0, err
	}
	if result.RowCount() == 0 || len(result.Columns) == 0 {
		return 0, fmt.Errorf("scalar query returned no rows")
	}
	return toInt64(result.Rows[0][result.Columns[0]])
}

// toInt64 normalizes driver count values. MySQL returns aggregate results as
// strings, pgx returns int64, and SUM over zero joined rows is NULL.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric count value %q", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected count value type %T", v)
	}
}

// toStringPtr converts a driver value to the text form used in mismatch
// records, preserving NULL as nil.
func toStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

// textEqual compares two text-coerced values null-safely.
func textEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// keyFromRow extracts the join-key values of one sampled row, substituting
// the NULL sentinel where the key column is NULL.
func keyFromRow(row map[string]any, joinCols []string) map[string]string {
	key := make(map[string]string, len(joinCols))
	for _, col := range joinCols {
		if v := toStringPtr(row[col]); v != nil {
			key[col] = *v
		} else {
			key[col] = nullKeySentinel
		}
	}
	return key
}
