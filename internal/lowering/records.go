package lowering

// Row is one relational row: column name to scalar value.
type Row map[string]any

// Records maps table names to ordered rows. Tables keep the order in which
// they were first seen.
type Records struct {
	tables []string
	rows   map[string][]Row
}

// NewRecords returns an empty set of records.
func NewRecords() *Records {
	return &Records{rows: make(map[string][]Row)}
}

// Add appends a row to table.
func (r *Records) Add(table string, row Row) {
	if _, ok := r.rows[table]; !ok {
		r.tables = append(r.tables, table)
	}
	r.rows[table] = append(r.rows[table], row)
}

// Tables lists the populated tables in discovery order.
func (r *Records) Tables() []string {
	out := make([]string, len(r.tables))
	copy(out, r.tables)
	return out
}

// Rows returns the rows of table in insertion order.
func (r *Records) Rows(table string) []Row {
	return r.rows[table]
}

// Len counts rows across all tables.
func (r *Records) Len() int {
	n := 0
	for _, rows := range r.rows {
		n += len(rows)
	}
	return n
}

// WithPipelineID returns a copy of r in which every row carries a
// pipeline_id column set to id.
func (r *Records) WithPipelineID(id string) *Records {
	out := NewRecords()
	for _, table := range r.tables {
		for _, row := range r.rows[table] {
			stamped := make(Row, len(row)+1)
			for k, v := range row {
				stamped[k] = v
			}
			stamped[ColPipelineID] = id
			out.Add(table, stamped)
		}
	}
	return out
}
