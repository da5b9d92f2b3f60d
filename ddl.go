package main

import (
	"fmt"
	"strings"
)

// generateCreateTable produces a CREATE TABLE statement for a target table.
func generateCreateTable(t Table, pgSchema string, unlogged bool) (string, error) {
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", t.Name)
	}

	var b strings.Builder
	tableKind := "TABLE"
	if unlogged {
		tableKind = "UNLOGGED TABLE"
	}
	fmt.Fprintf(&b, "CREATE %s %s (\n", tableKind, qualifiedTable(pgSchema, t.Name))

	for i, col := range t.Columns {
		if col.PGType == "" {
			return "", fmt.Errorf("column %s.%s has no type", t.Name, col.Name)
		}
		fmt.Fprintf(&b, "  %s %s", pgIdent(col.Name), col.PGType)
		if i < len(t.Columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}

	b.WriteString(")")
	return b.String(), nil
}

// generateDropTable produces the DROP statement used for full-replace loads.
func generateDropTable(t Table, pgSchema string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", qualifiedTable(pgSchema, t.Name))
}

func qualifiedTable(pgSchema, name string) string {
	return pgIdent(pgSchema) + "." + pgIdent(name)
}
