package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// loadAndExecSQLFiles reads each SQL file, expands {{schema}} to the target
// schema and executes every statement. Paths are relative to the config file.
func loadAndExecSQLFiles(ctx context.Context, exec execer, cfg *PipelineConfig, files []string, phase string) error {
	if len(files) == 0 {
		return nil
	}
	log.Printf("  running %s hooks (%d files)...", phase, len(files))

	for _, f := range files {
		data, err := os.ReadFile(cfg.resolvePath(f))
		if err != nil {
			return fmt.Errorf("hook %s: read %s: %w", phase, f, err)
		}

		stmts := splitStatements(strings.ReplaceAll(string(data), "{{schema}}", pgIdent(cfg.Target.Schema)))
		log.Printf("    %s: %d statements", f, len(stmts))
		for i, stmt := range stmts {
			if _, err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("hook %s: %s: statement %d: %w\nSQL: %s", phase, f, i+1, err, stmt)
			}
		}
	}
	return nil
}

// splitStatements splits SQL text on semicolons. Semicolons inside
// single-quoted strings, double-quoted identifiers and -- comments do not
// split; empty statements are dropped.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	var quote byte // 0, '\'' or '"'

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			current.WriteByte(c)
			if c == quote {
				// A doubled quote character is an escape, not a terminator.
				if i+1 < len(sql) && sql[i+1] == quote {
					current.WriteByte(c)
					i++
				} else {
					quote = 0
				}
			}
		case c == '\'' || c == '"':
			quote = c
			current.WriteByte(c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
			} else {
				i += end
				current.WriteByte('\n')
			}
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}

	// Trailing statement without semicolon
	flush()
	return stmts
}
