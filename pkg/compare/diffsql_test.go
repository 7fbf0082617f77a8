package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine/mysql"
	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine/postgres"
)

func TestDiffSQLAntiJoinCounts(t *testing.T) {
	b := diffSQL{
		d:       mysql.Dialect{},
		srcRel:  "`cmp_src_ab`",
		tgtRel:  "`cmp_tgt_ab`",
		columns: columnPlan{Join: []string{"id"}, Compare: []string{"amount"}},
	}

	assert.Equal(t,
		"SELECT COUNT(*) AS n FROM `cmp_src_ab` AS s WHERE NOT EXISTS "+
			"(SELECT 1 FROM `cmp_tgt_ab` AS t WHERE s.`id` <=> t.`id`)",
		b.sourceOnlyCount())
	assert.Equal(t,
		"SELECT COUNT(*) AS n FROM `cmp_tgt_ab` AS t WHERE NOT EXISTS "+
			"(SELECT 1 FROM `cmp_src_ab` AS s WHERE s.`id` <=> t.`id`)",
		b.targetOnlyCount())
}

func TestDiffSQLMatchedAggregates(t *testing.T) {
	b := diffSQL{
		d:       mysql.Dialect{},
		srcRel:  "`src`",
		tgtRel:  "`tgt`",
		columns: columnPlan{Join: []string{"id"}, Compare: []string{"amount", "status"}},
	}

	sql := b.matchedCount()
	assert.Contains(t, sql, "COUNT(*) AS matched")
	assert.Contains(t, sql,
		"SUM(CASE WHEN NOT (CAST(s.`amount` AS CHAR) <=> CAST(t.`amount` AS CHAR)) THEN 1 ELSE 0 END) AS mis_0")
	assert.Contains(t, sql, "AS mis_1")
	assert.Contains(t, sql, "AS mismatched_rows")
	assert.Contains(t, sql, "JOIN `tgt` AS t ON s.`id` <=> t.`id`")
}

func TestDiffSQLExistenceOnlyOmitsColumnAggregates(t *testing.T) {
	b := diffSQL{
		d:       postgres.Dialect{},
		srcRel:  `"src"`,
		tgtRel:  `"tgt"`,
		columns: columnPlan{Join: []string{"id"}, ExistenceOnly: true},
	}

	sql := b.matchedCount()
	assert.Equal(t, `SELECT COUNT(*) AS matched FROM "src" AS s JOIN "tgt" AS t ON s."id" IS NOT DISTINCT FROM t."id"`, sql)
}

func TestDiffSQLSamplesAreBounded(t *testing.T) {
	b := diffSQL{
		d:       postgres.Dialect{},
		srcRel:  `"src"`,
		tgtRel:  `"tgt"`,
		columns: columnPlan{Join: []string{"id"}, Compare: []string{"amount"}},
	}

	assert.Contains(t, b.sourceOnlySample(100), "LIMIT 100")
	assert.Contains(t, b.targetOnlySample(7), "LIMIT 7")

	sample := b.valueMismatchSample(10)
	assert.Contains(t, sample, "AS src_0")
	assert.Contains(t, sample, "AS tgt_0")
	assert.Contains(t, sample, `WHERE NOT (CAST(s."amount" AS TEXT) IS NOT DISTINCT FROM CAST(t."amount" AS TEXT))`)
	assert.Contains(t, sample, "LIMIT 10")
}

func TestResolveColumnsDefaultsToIntersection(t *testing.T) {
	// Exercised indirectly through Run in compare_test.go; this covers the
	// spelling rule directly.
	set := columnSet([]string{"ID", "Amount"})
	assert.Equal(t, "ID", set["id"])
	assert.Equal(t, "Amount", set["amount"])
}
