package main

import (
	"strings"
	"testing"
)

func TestGenerateCreateTable(t *testing.T) {
	table := Table{
		Name: "OrdersFlat",
		Columns: []Column{
			{Name: "ID", PGType: "bigint"},
			{Name: "ORDER_DATE", PGType: "timestamp", IsDate: true},
			{Name: "amount", PGType: "double precision"},
			{Name: "Name", PGType: "text"},
		},
	}

	ddl, err := generateCreateTable(table, "app", false)
	if err != nil {
		t.Fatalf("generateCreateTable() error: %v", err)
	}

	want := `CREATE TABLE app."OrdersFlat" (
  "ID" bigint,
  "ORDER_DATE" timestamp,
  amount double precision,
  "Name" text
)`
	if ddl != want {
		t.Errorf("generateCreateTable() =\n%s\nwant:\n%s", ddl, want)
	}
}

func TestGenerateCreateTable_Unlogged(t *testing.T) {
	table := Table{
		Name:    "users",
		Columns: []Column{{Name: "id", PGType: "bigint"}},
	}

	ddl, err := generateCreateTable(table, "app", true)
	if err != nil {
		t.Fatalf("generateCreateTable() error: %v", err)
	}
	if !strings.HasPrefix(ddl, "CREATE UNLOGGED TABLE app.users (") {
		t.Errorf("DDL should be unlogged when enabled, got:\n%s", ddl)
	}
}

func TestGenerateCreateTable_ReservedWords(t *testing.T) {
	table := Table{
		Name:    "user",
		Columns: []Column{{Name: "order", PGType: "bigint"}},
	}

	ddl, err := generateCreateTable(table, "public", false)
	if err != nil {
		t.Fatalf("generateCreateTable() error: %v", err)
	}
	if !strings.Contains(ddl, `public."user"`) {
		t.Errorf("DDL should quote reserved word 'user', got:\n%s", ddl)
	}
	if !strings.Contains(ddl, `"order" bigint`) {
		t.Errorf("DDL should quote reserved word 'order', got:\n%s", ddl)
	}
}

func TestGenerateCreateTable_Errors(t *testing.T) {
	if _, err := generateCreateTable(Table{Name: "empty"}, "public", false); err == nil {
		t.Error("expected error for table without columns")
	}
	untyped := Table{Name: "t", Columns: []Column{{Name: "a"}}}
	if _, err := generateCreateTable(untyped, "public", false); err == nil {
		t.Error("expected error for column without type")
	}
}

func TestGenerateDropTable(t *testing.T) {
	got := generateDropTable(Table{Name: "OrdersFlat"}, "staging")
	want := `DROP TABLE IF EXISTS staging."OrdersFlat"`
	if got != want {
		t.Errorf("generateDropTable() = %q, want %q", got, want)
	}
}
