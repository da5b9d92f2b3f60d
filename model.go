package main

// Column is one column of a target table as it will be created in PostgreSQL.
type Column struct {
	Name   string
	PGType string // bigint, double precision, boolean, timestamp or text
	IsDate bool   // parsed from the configured date layout
}

// Table is the target definition derived from a consolidated dataset.
type Table struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
