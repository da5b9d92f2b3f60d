package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// ExtractResult describes one extracted source table.
type ExtractResult struct {
	Table    string
	Rows     int
	Path     string
	Checksum uint64 // xxh3 of the written CSV
}

// extract reads every configured source table in full, writes each one to
// {output_path}/{table}.csv and records its row count in a fresh run log.
func extract(ctx context.Context, cfg *PipelineConfig) ([]ExtractResult, error) {
	src, err := newSourceDB(cfg.Source.Type)
	if err != nil {
		return nil, err
	}
	src.SetCharset(cfg.Source.Charset)

	dbName, err := src.ExtractDBName(cfg.Source.DSN)
	if err != nil {
		dbName = src.Name()
	}
	log.Printf("connecting to %s source '%s'...", src.Name(), dbName)
	db, err := openSource(ctx, src, cfg.Source.DSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return extractTables(ctx, cfg, src, sqlx.NewDb(db, src.DriverName()))
}

func extractTables(ctx context.Context, cfg *PipelineConfig, src SourceDB, db *sqlx.DB) ([]ExtractResult, error) {
	runLog, err := createRunLog(cfg.runLogPath())
	if err != nil {
		return nil, err
	}
	defer runLog.Close()
	if err := runLog.Header("sourceTableNames", "sourceTableCount"); err != nil {
		return nil, fmt.Errorf("write run log: %w", err)
	}

	var q sqlx.QueryerContext = db
	if cfg.SourceSnapshotMode == "single_tx" {
		tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
		if err != nil {
			return nil, fmt.Errorf("begin snapshot transaction: %w", err)
		}
		// Read-only snapshot, nothing to commit.
		defer tx.Rollback()
		q = tx
	}

	results := make([]ExtractResult, 0, len(cfg.SourceTables))
	for _, table := range cfg.SourceTables {
		start := time.Now()
		ds, err := readTable(ctx, q, src, table)
		if err != nil {
			return results, err
		}
		if err := writeDataset(cfg.OutputPath, ds); err != nil {
			return results, err
		}
		sum, err := datasetChecksum(cfg.OutputPath, table)
		if err != nil {
			return results, err
		}
		if err := runLog.Count(table, len(ds.Rows)); err != nil {
			return results, fmt.Errorf("write run log: %w", err)
		}
		log.Printf("  %s: %d rows, %d cols, xxh3 %016x (%s)", table, len(ds.Rows), len(ds.Columns), sum,
			time.Since(start).Round(time.Millisecond))
		results = append(results, ExtractResult{
			Table:    table,
			Rows:     len(ds.Rows),
			Path:     datasetPath(cfg.OutputPath, table),
			Checksum: sum,
		})
	}
	return results, nil
}

// readTable runs SELECT * against one table and materializes every row.
func readTable(ctx context.Context, q sqlx.QueryerContext, src SourceDB, table string) (*Dataset, error) {
	rows, err := q.QueryxContext(ctx, "SELECT * FROM "+src.QuoteIdentifier(table))
	if err != nil {
		return nil, &QueryError{Table: table, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Table: table, Err: err}
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, &QueryError{Table: table, Err: err}
	}
	guids := make([]bool, len(types))
	for i, ct := range types {
		guids[i] = ct.DatabaseTypeName() == "UNIQUEIDENTIFIER"
	}

	ds := &Dataset{Name: table, Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, &QueryError{Table: table, Err: err}
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			if i < len(guids) && guids[i] {
				if s, ok := formatUniqueIdentifier(v); ok {
					row[i] = s
					continue
				}
			}
			row[i] = formatCell(v)
		}
		ds.Rows = append(ds.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Table: table, Err: err}
	}
	return ds, nil
}

// formatCell renders a scanned driver value as CSV text. NULL becomes the
// empty string. The output is deterministic so unchanged source data
// re-extracts to identical files.
func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return formatTime(v)
	default:
		return fmt.Sprint(v)
	}
}

func formatTime(t time.Time) string {
	h, m, s := t.Clock()
	switch {
	case h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0:
		return t.Format(time.DateOnly)
	case t.Nanosecond() == 0:
		return t.Format(time.DateTime)
	default:
		return t.Format("2006-01-02 15:04:05.999999")
	}
}
