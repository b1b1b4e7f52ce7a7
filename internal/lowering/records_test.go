package lowering

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecords_AddKeepsDiscoveryOrder(t *testing.T) {
	// --- Arrange ---
	rec := NewRecords()

	// --- Act ---
	rec.Add("rule_param", Row{"n": 1})
	rec.Add("var_expr", Row{"n": 2})
	rec.Add("fact_arg", Row{"n": 3})
	rec.Add("var_expr", Row{"n": 4})

	// --- Assert ---
	assert.Equal(t, []string{"rule_param", "var_expr", "fact_arg"}, rec.Tables())
	assert.Equal(t, []Row{{"n": 2}, {"n": 4}}, rec.Rows("var_expr"))
	assert.Equal(t, 4, rec.Len())
}

func TestRecords_WithPipelineID(t *testing.T) {
	rec := NewRecords()
	rec.Add("rule", Row{"rule_id": "ru1", "table_name": "r"})
	rec.Add("var_expr", Row{"rule_id": "ru1", "expr_id": "ex2", "var_name": "x"})

	stamped := rec.WithPipelineID("basic:0123456789")

	assert.Equal(t, rec.Tables(), stamped.Tables())
	for _, table := range stamped.Tables() {
		for _, row := range stamped.Rows(table) {
			assert.Equal(t, "basic:0123456789", row[ColPipelineID])
		}
	}
	for _, table := range rec.Tables() {
		for _, row := range rec.Rows(table) {
			assert.NotContains(t, row, ColPipelineID, "source rows stay unstamped")
		}
	}
}

func TestRecords_TablesReturnsCopy(t *testing.T) {
	rec := NewRecords()
	rec.Add("rule", Row{})

	tables := rec.Tables()
	tables[0] = "mutated"

	assert.Equal(t, []string{"rule"}, rec.Tables())
}
