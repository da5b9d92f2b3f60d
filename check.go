package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// check verifies that both stores are reachable and that every configured
// source table exists, without writing anything.
func check(ctx context.Context, cfg *PipelineConfig) error {
	src, err := newSourceDB(cfg.Source.Type)
	if err != nil {
		return err
	}
	src.SetCharset(cfg.Source.Charset)

	dbName, err := src.ExtractDBName(cfg.Source.DSN)
	if err != nil {
		return err
	}
	log.Printf("connecting to %s source '%s'...", src.Name(), dbName)
	db, err := openSource(ctx, src, cfg.Source.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	available, err := src.ListTables(ctx, db, dbName)
	if err != nil {
		return fmt.Errorf("list source tables: %w", err)
	}
	log.Printf("  found %d tables and views", len(available))
	if problems := missingTables(cfg.SourceTables, available); len(problems) > 0 {
		for _, p := range problems {
			log.Printf("  ERROR: %s", p)
		}
		return fmt.Errorf("%d configured source table(s) not found", len(problems))
	}
	db.Close()

	log.Printf("connecting to PostgreSQL...")
	pool, err := pgxpool.New(ctx, cfg.Target.DSN)
	if err != nil {
		return &ConnectivityError{Store: "target", Err: err}
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return &ConnectivityError{Store: "target", Err: fmt.Errorf("ping postgres: %w", err)}
	}

	log.Printf("check passed: %d source tables, %d target tables", len(cfg.SourceTables), len(cfg.Target.Tables))
	return nil
}

// missingTables reports configured tables absent from available. A table
// that only differs in case gets a hint, since the CSV name must match exactly.
func missingTables(configured, available []string) []string {
	exact := make(map[string]bool, len(available))
	folded := make(map[string]string, len(available))
	for _, a := range available {
		exact[a] = true
		folded[strings.ToLower(a)] = a
	}

	var problems []string
	for _, c := range configured {
		if exact[c] {
			continue
		}
		if alt, ok := folded[strings.ToLower(c)]; ok {
			problems = append(problems, fmt.Sprintf("table %q not found (did you mean %q?)", c, alt))
			continue
		}
		problems = append(problems, fmt.Sprintf("table %q not found", c))
	}
	return problems
}
