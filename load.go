package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LoadResult describes one replaced target table.
type LoadResult struct {
	Table string
	Rows  int
}

// targetDB is the subset of *pgxpool.Pool the loader needs.
type targetDB interface {
	execer
	Begin(ctx context.Context) (pgx.Tx, error)
}

// load replaces every configured target table in PostgreSQL with the content
// of {output_path}/{table}.csv and appends one run log line per table.
// preview > 0 prints that many rows of each loaded table to stdout.
func load(ctx context.Context, cfg *PipelineConfig, preview int) ([]LoadResult, error) {
	log.Printf("connecting to PostgreSQL...")
	pool, err := pgxpool.New(ctx, cfg.Target.DSN)
	if err != nil {
		return nil, &ConnectivityError{Store: "target", Err: err}
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return nil, &ConnectivityError{Store: "target", Err: fmt.Errorf("ping postgres: %w", err)}
	}

	return loadTables(ctx, pool, cfg, preview, os.Stdout)
}

func loadTables(ctx context.Context, db targetDB, cfg *PipelineConfig, preview int, out io.Writer) ([]LoadResult, error) {
	if err := prepareTargetSchema(ctx, db, cfg.Target.Schema); err != nil {
		return nil, err
	}

	if err := loadAndExecSQLFiles(ctx, db, cfg, cfg.Hooks.BeforeLoad, "before_load"); err != nil {
		return nil, fmt.Errorf("before_load hooks: %w", err)
	}

	runLog, err := appendRunLog(cfg.runLogPath())
	if err != nil {
		return nil, err
	}
	defer runLog.Close()
	if err := runLog.Header("targetTableNames", "targetTableCount"); err != nil {
		return nil, fmt.Errorf("write run log: %w", err)
	}

	results := make([]LoadResult, 0, len(cfg.Target.Tables))
	for _, name := range cfg.Target.Tables {
		start := time.Now()
		ds, err := readDataset(cfg.OutputPath, name)
		if err != nil {
			return results, err
		}

		table, rows, err := coerceDataset(ds, cfg.Target.DateColumnSuffix, cfg.Target.DateLayout)
		if err != nil {
			return results, err
		}
		if dates := dateColumns(ds.Columns, cfg.Target.DateColumnSuffix); len(dates) > 0 {
			log.Printf("  %s: parsed date columns %v", name, dates)
		}

		n, err := replaceTable(ctx, db, cfg.Target.Schema, table, rows, cfg.Target.UnloggedTables)
		if err != nil {
			return results, &WriteError{Table: name, Err: err}
		}

		if err := runLog.Count(name, len(ds.Rows)); err != nil {
			return results, fmt.Errorf("write run log: %w", err)
		}
		log.Printf("  %s.%s: %d rows (%s)", cfg.Target.Schema, name, n, time.Since(start).Round(time.Millisecond))
		if preview > 0 {
			renderPreview(out, ds, preview)
		}
		results = append(results, LoadResult{Table: name, Rows: len(ds.Rows)})
	}

	if err := loadAndExecSQLFiles(ctx, db, cfg, cfg.Hooks.AfterLoad, "after_load"); err != nil {
		return results, fmt.Errorf("after_load hooks: %w", err)
	}
	return results, nil
}

// prepareTargetSchema creates the target schema when it does not exist yet.
func prepareTargetSchema(ctx context.Context, exec execer, schema string) error {
	if _, err := exec.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgIdent(schema))); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// replaceTable drops and recreates one target table and copies rows into it,
// all inside one transaction. Readers see either the old or the new table.
func replaceTable(ctx context.Context, db targetDB, pgSchema string, t Table, rows [][]any, unlogged bool) (int64, error) {
	ddl, err := generateCreateTable(t, pgSchema, unlogged)
	if err != nil {
		return 0, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, generateDropTable(t, pgSchema)); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create table: %w\nDDL: %s", err, ddl)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{pgSchema, t.Name}, t.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy rows: %w", err)
	}
	if n != int64(len(rows)) {
		return 0, fmt.Errorf("copy rows: wrote %d of %d rows", n, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
