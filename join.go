package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
)

// transform flattens the main table: it left-joins the main dataset with each
// configured join table in order and writes the result as {output_name}.csv.
func transform(ctx context.Context, cfg *PipelineConfig) (*Dataset, error) {
	tc := cfg.Transform
	acc, err := readDataset(cfg.OutputPath, tc.MainTable)
	if err != nil {
		return nil, err
	}
	log.Printf("  %s: %d rows, %d cols", tc.MainTable, len(acc.Rows), len(acc.Columns))

	for _, join := range tc.JoinTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		aux, err := readDataset(cfg.OutputPath, join)
		if err != nil {
			return nil, err
		}
		if dups := countDuplicateKeys(aux, tc.PrimaryKey); dups > 0 {
			log.Printf("  WARN: %s has %d duplicated %s value(s); matching rows will be multiplied", join, dups, tc.PrimaryKey)
		}

		before := len(acc.Rows)
		acc, err = leftJoin(acc, aux, join, tc.ForeignKeySuffix, tc.PrimaryKey)
		if err != nil {
			return nil, fmt.Errorf("join %s: %w", join, err)
		}
		log.Printf("  joined %s on %s%s = %s.%s: %d -> %d rows, %d cols",
			join, join, tc.ForeignKeySuffix, join, tc.PrimaryKey, before, len(acc.Rows), len(acc.Columns))
	}

	acc.Name = tc.OutputName
	if err := writeDataset(cfg.OutputPath, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// leftJoin merges right into left on left.{aux}{fkSuffix} = right.{pk}.
//
// Every left row is kept in order. A left row with several matches is repeated
// once per match, in right-hand order; a left row without a match gets empty
// right-hand cells. A right column whose name already exists on the left is
// renamed {col}_{aux}. Afterwards every column ending in {pk}_{aux} is dropped,
// which removes the right-hand copy of the primary key.
func leftJoin(left, right *Dataset, aux, fkSuffix, pk string) (*Dataset, error) {
	leftKey := aux + fkSuffix
	li := left.ColumnIndex(leftKey)
	if li < 0 {
		return nil, &JoinKeyError{Dataset: left.Name, Column: leftKey}
	}
	ri := right.ColumnIndex(pk)
	if ri < 0 {
		return nil, &JoinKeyError{Dataset: right.Name, Column: pk}
	}

	suffix := "_" + aux
	seen := make(map[string]bool, len(left.Columns)+len(right.Columns))
	columns := make([]string, 0, len(left.Columns)+len(right.Columns))
	for _, c := range left.Columns {
		seen[c] = true
		columns = append(columns, c)
	}
	for _, c := range right.Columns {
		name := c
		if left.ColumnIndex(c) >= 0 {
			name = c + suffix
		}
		if seen[name] {
			return nil, fmt.Errorf("column %q from %s collides with an existing column", name, right.Name)
		}
		seen[name] = true
		columns = append(columns, name)
	}

	index := make(map[string][]int, len(right.Rows))
	for i, row := range right.Rows {
		if k, ok := joinKey(row[ri]); ok {
			index[k] = append(index[k], i)
		}
	}

	empty := make([]string, len(right.Columns))
	out := &Dataset{Name: left.Name, Columns: columns, Rows: make([][]string, 0, len(left.Rows))}
	for _, lrow := range left.Rows {
		var matches []int
		if k, ok := joinKey(lrow[li]); ok {
			matches = index[k]
		}
		if len(matches) == 0 {
			out.Rows = append(out.Rows, concatRow(lrow, empty))
			continue
		}
		for _, m := range matches {
			out.Rows = append(out.Rows, concatRow(lrow, right.Rows[m]))
		}
	}

	return dropColumnsWithSuffix(out, pk+suffix), nil
}

// dropColumnsWithSuffix returns ds without the columns whose name ends in suffix.
func dropColumnsWithSuffix(ds *Dataset, suffix string) *Dataset {
	var keep []int
	for i, c := range ds.Columns {
		if !strings.HasSuffix(c, suffix) {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(ds.Columns) {
		return ds
	}

	out := &Dataset{Name: ds.Name, Columns: make([]string, len(keep)), Rows: make([][]string, len(ds.Rows))}
	for j, i := range keep {
		out.Columns[j] = ds.Columns[i]
	}
	for r, row := range ds.Rows {
		nr := make([]string, len(keep))
		for j, i := range keep {
			nr[j] = row[i]
		}
		out.Rows[r] = nr
	}
	return out
}

// joinKey normalizes a key cell for matching. Numeric keys compare by value,
// so "10" and "10.0" match. An empty cell never matches anything.
func joinKey(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return strconv.FormatInt(int64(f), 10), true
		}
		return strconv.FormatFloat(f, 'g', -1, 64), true
	}
	return v, true
}

// countDuplicateKeys reports how many distinct key values occur more than once.
func countDuplicateKeys(ds *Dataset, pk string) int {
	idx := ds.ColumnIndex(pk)
	if idx < 0 {
		return 0
	}
	counts := make(map[string]int, len(ds.Rows))
	dups := 0
	for _, row := range ds.Rows {
		k, ok := joinKey(row[idx])
		if !ok {
			continue
		}
		counts[k]++
		if counts[k] == 2 {
			dups++
		}
	}
	return dups
}

func concatRow(a, b []string) []string {
	row := make([]string, 0, len(a)+len(b))
	row = append(row, a...)
	return append(row, b...)
}
