//go:build integration

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestIntegration_SQLite(t *testing.T) {
	pgDSN := os.Getenv("POSTGRES_DSN")
	if pgDSN == "" {
		t.Skip("POSTGRES_DSN env var required")
	}

	ctx := context.Background()
	tmpDir := t.TempDir()

	sqliteFile := filepath.Join(tmpDir, "shop.db")
	seedShopSQLite(t, sqliteFile)

	const pgSchema = "inttest_sqlite"
	pgPool := connectPG(t, pgDSN, pgSchema)

	cfgPath := filepath.Join(tmpDir, "pipeline.toml")
	writeIntegrationConfig(t, cfgPath, "sqlite", sqliteFile, "none", pgDSN, pgSchema, "2006/01/02")

	cfg, err := loadConfig(cfgPath, "")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	// A second run must replace, not append.
	for run := 1; run <= 2; run++ {
		if err := runPipeline(ctx, cfg, 0); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
	}

	assertRowCount(t, pgPool, pgSchema, "OrdersFlat", 3)
	assertRowCount(t, pgPool, pgSchema, "Customer", 2)
	assertColumnType(t, pgPool, pgSchema, "OrdersFlat", "ORDER_DATE", "timestamp without time zone")
	assertColumnType(t, pgPool, pgSchema, "OrdersFlat", "ID", "bigint")
	assertNoColumn(t, pgPool, pgSchema, "OrdersFlat", "ID_Customer")

	var name string
	var orderDate time.Time
	err = pgPool.QueryRow(ctx,
		fmt.Sprintf(`SELECT "Name", "ORDER_DATE" FROM %s."OrdersFlat" WHERE "ID" = 2`, pgIdent(pgSchema)),
	).Scan(&name, &orderDate)
	if err != nil {
		t.Fatalf("spot-check query: %v", err)
	}
	if name != "Bob, Jr." {
		t.Errorf("order 2 customer = %q, want %q", name, "Bob, Jr.")
	}
	if !orderDate.Equal(time.Date(2021, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("order 2 date = %v", orderDate)
	}

	runLog, err := os.ReadFile(cfg.runLogPath())
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if n := strings.Count(string(runLog), "sourceTableNames"); n != 1 {
		t.Errorf("run log has %d extract sections, want 1 (truncated per run)", n)
	}
	for _, want := range []string{"targetTableNames", "OrdersFlat", "disk usage at"} {
		if !strings.Contains(string(runLog), want) {
			t.Errorf("run log missing %q:\n%s", want, runLog)
		}
	}
}

func TestIntegration_MySQL(t *testing.T) {
	mysqlDSN := os.Getenv("MYSQL_DSN")
	pgDSN := os.Getenv("POSTGRES_DSN")
	if mysqlDSN == "" || pgDSN == "" {
		t.Skip("MYSQL_DSN and POSTGRES_DSN env vars required")
	}

	ctx := context.Background()
	tmpDir := t.TempDir()

	mysqlDB, err := sql.Open("mysql", mysqlDSN+"?parseTime=true&loc=UTC")
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	defer mysqlDB.Close()
	seedShopMySQL(t, mysqlDB)

	// Extraction only needs SELECT.
	dbName, err := extractMySQLDBName(mysqlDSN)
	if err != nil {
		t.Fatalf("extract db name: %v", err)
	}
	const roUser, roPass = "pgflatten_ro", "pgflatten_ro_pw"
	if err := createReadOnlyMySQLUser(ctx, mysqlDB, dbName, roUser, roPass); err != nil {
		t.Fatalf("create read-only user: %v", err)
	}
	roDSN, err := buildReadOnlyUserDSN(mysqlDSN, roUser, roPass)
	if err != nil {
		t.Fatalf("build read-only DSN: %v", err)
	}
	mysqlDB.Close()

	const pgSchema = "inttest_mysql"
	pgPool := connectPG(t, pgDSN, pgSchema)

	// MySQL DATE columns extract as YYYY-MM-DD.
	cfgPath := filepath.Join(tmpDir, "pipeline.toml")
	writeIntegrationConfig(t, cfgPath, "mysql", roDSN, "single_tx", pgDSN, pgSchema, "2006-01-02")

	cfg, err := loadConfig(cfgPath, "")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := check(ctx, cfg); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := runPipeline(ctx, cfg, 0); err != nil {
		t.Fatalf("run: %v", err)
	}

	assertRowCount(t, pgPool, pgSchema, "OrdersFlat", 3)
	assertRowCount(t, pgPool, pgSchema, "Customer", 2)
	assertColumnType(t, pgPool, pgSchema, "OrdersFlat", "ORDER_DATE", "timestamp without time zone")
	assertNoColumn(t, pgPool, pgSchema, "OrdersFlat", "ID_Customer")
}

func connectPG(t *testing.T, dsn, schema string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	_, _ = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgIdent(schema)))
	t.Cleanup(func() {
		pool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgIdent(schema)))
	})
	return pool
}

func writeIntegrationConfig(t *testing.T, path, sourceType, sourceDSN, snapshot, pgDSN, pgSchema, dateLayout string) {
	t.Helper()
	content := fmt.Sprintf(`output_path = "out"
source_snapshot_mode = %q
source_tables = ["Orders", "Customer"]

[source]
type = %q
dsn = %q

[transform]
main_table = "Orders"
join_tables = ["Customer"]
output_name = "OrdersFlat"

[target]
dsn = %q
schema = %q
tables = ["OrdersFlat", "Customer"]
date_layout = %q
`, snapshot, sourceType, sourceDSN, pgDSN, pgSchema, dateLayout)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func seedShopMySQL(t *testing.T, db *sql.DB) {
	t.Helper()

	stmts := []string{
		"DROP TABLE IF EXISTS Orders",
		"DROP TABLE IF EXISTS Customer",
		`CREATE TABLE Customer (ID INT PRIMARY KEY, Name VARCHAR(100) NOT NULL)`,
		`CREATE TABLE Orders (
			ID INT PRIMARY KEY,
			Customer_ID INT NULL,
			ORDER_DATE DATE NULL,
			Amount DECIMAL(10,2) NULL
		)`,
		"INSERT INTO Customer VALUES (10, 'Ann'), (11, 'Bob, Jr.')",
		"INSERT INTO Orders VALUES (1, 10, '2021-03-10', 12.50), (2, 11, '2021-03-11', 7.00), (3, NULL, NULL, NULL)",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed mysql %q: %v", stmt[:min(len(stmt), 60)], err)
		}
	}
}

func createReadOnlyMySQLUser(ctx context.Context, db *sql.DB, dbName, user, password string) error {
	stmts := []string{
		fmt.Sprintf("DROP USER IF EXISTS '%s'@'%%'", user),
		fmt.Sprintf("CREATE USER '%s'@'%%' IDENTIFIED BY '%s'", user, password),
		fmt.Sprintf("GRANT SELECT, SHOW VIEW ON `%s`.* TO '%s'@'%%'", dbName, user),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func buildReadOnlyUserDSN(baseDSN, user, password string) (string, error) {
	cfg, err := mysql.ParseDSN(baseDSN)
	if err != nil {
		return "", err
	}
	cfg.User = user
	cfg.Passwd = password
	return cfg.FormatDSN(), nil
}

func assertRowCount(t *testing.T, pool *pgxpool.Pool, schema, table string, want int) {
	t.Helper()
	var got int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", pgIdent(schema), pgIdent(table))
	if err := pool.QueryRow(context.Background(), q).Scan(&got); err != nil {
		t.Fatalf("count %s.%s: %v", schema, table, err)
	}
	if got != want {
		t.Errorf("%s.%s row count: got %d, want %d", schema, table, got, want)
	}
}

func assertColumnType(t *testing.T, pool *pgxpool.Pool, schema, table, column, wantType string) {
	t.Helper()
	var got string
	err := pool.QueryRow(context.Background(),
		`SELECT data_type FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`,
		schema, table, column,
	).Scan(&got)
	if err != nil {
		t.Fatalf("column type %s.%s.%s: %v", schema, table, column, err)
	}
	if got != wantType {
		t.Errorf("%s.%s.%s type = %q, want %q", schema, table, column, got, wantType)
	}
}

func assertNoColumn(t *testing.T, pool *pgxpool.Pool, schema, table, column string) {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`,
		schema, table, column,
	).Scan(&n)
	if err != nil {
		t.Fatalf("column lookup %s.%s.%s: %v", schema, table, column, err)
	}
	if n != 0 {
		t.Errorf("%s.%s should not have column %s", schema, table, column)
	}
}
