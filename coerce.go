package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateColumns returns the columns whose name ends in suffix (exact, case-sensitive).
func dateColumns(columns []string, suffix string) []string {
	var out []string
	for _, c := range columns {
		if strings.HasSuffix(c, suffix) {
			out = append(out, c)
		}
	}
	return out
}

// inferTable derives the target table definition for ds. Columns ending in
// dateSuffix become timestamps; every other column gets the narrowest type
// that fits all of its non-empty values.
func inferTable(ds *Dataset, dateSuffix string) Table {
	isDate := make(map[string]bool)
	for _, c := range dateColumns(ds.Columns, dateSuffix) {
		isDate[c] = true
	}

	t := Table{Name: ds.Name, Columns: make([]Column, len(ds.Columns))}
	for i, name := range ds.Columns {
		if isDate[name] {
			t.Columns[i] = Column{Name: name, PGType: "timestamp", IsDate: true}
			continue
		}
		t.Columns[i] = Column{Name: name, PGType: inferType(ds.Rows, i)}
	}
	return t
}

// inferType picks bigint, double precision, boolean or text for column idx.
// A column with no values at all is text.
func inferType(rows [][]string, idx int) string {
	allInt, allFloat, allBool := true, true, true
	seen := false
	for _, row := range rows {
		v := row[idx]
		if v == "" {
			continue
		}
		seen = true
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(v); !ok {
				allBool = false
			}
		}
		if !allInt && !allFloat && !allBool {
			return "text"
		}
	}
	switch {
	case !seen:
		return "text"
	case allInt:
		return "bigint"
	case allFloat:
		return "double precision"
	case allBool:
		return "boolean"
	default:
		return "text"
	}
}

// coerceDataset infers the target table for ds and converts every cell to the
// value pgx will copy. A date value that does not match layout fails the
// whole dataset with a ParseError.
func coerceDataset(ds *Dataset, dateSuffix, layout string) (Table, [][]any, error) {
	t := inferTable(ds, dateSuffix)
	out := make([][]any, len(ds.Rows))
	for r, row := range ds.Rows {
		vals := make([]any, len(row))
		for i, col := range t.Columns {
			v, err := transformValue(row[i], col, layout)
			if err != nil {
				if col.IsDate {
					return Table{}, nil, &ParseError{Table: ds.Name, Column: col.Name, Row: r + 1, Value: row[i], Err: err}
				}
				return Table{}, nil, fmt.Errorf("%s.%s row %d: %w", ds.Name, col.Name, r+1, err)
			}
			vals[i] = v
		}
		out[r] = vals
	}
	return t, out, nil
}

// transformValue converts one CSV cell to its PostgreSQL value for col.
// Empty cells become NULL.
func transformValue(v string, col Column, layout string) (any, error) {
	if v == "" {
		return nil, nil
	}

	switch col.PGType {
	case "timestamp":
		t, err := time.Parse(layout, v)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "bigint":
		return strconv.ParseInt(v, 10, 64)
	case "double precision":
		return strconv.ParseFloat(v, 64)
	case "boolean":
		b, ok := parseBool(v)
		if !ok {
			return nil, fmt.Errorf("cannot coerce %q to boolean", v)
		}
		return b, nil
	case "text":
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported column type %q", col.PGType)
	}
}

// parseBool accepts the spellings written by extraction (True/False) and
// their lowercase forms.
func parseBool(v string) (bool, bool) {
	switch v {
	case "True", "true":
		return true, true
	case "False", "false":
		return false, true
	}
	return false, false
}
