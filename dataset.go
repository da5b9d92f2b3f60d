package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// Dataset is an in-memory table: ordered named columns and ordered rows.
// Cells are text as stored in the intermediate CSV; an empty cell is a
// missing value.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of one column's values, or nil if the column is absent.
func (d *Dataset) Column(name string) []string {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[idx]
	}
	return out
}

// datasetPath returns {dir}/{name}.csv.
func datasetPath(dir, name string) string {
	return filepath.Join(dir, name+".csv")
}

// writeDataset stores ds as {dir}/{ds.Name}.csv with a header row. The file is
// written under a temporary name and renamed into place.
func writeDataset(dir string, ds *Dataset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := datasetPath(dir, ds.Name)
	tmp, err := os.CreateTemp(dir, "."+ds.Name+".*.csv")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	w := csv.NewWriter(bw)
	if err := writeRecord(bw, w, ds.Columns); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s header: %w", path, err)
	}
	for _, row := range ds.Rows {
		if err := writeRecord(bw, w, row); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// writeRecord writes one CSV record. csv.Writer emits a lone empty field as a
// blank line, which csv.Reader skips, so that record is written as "" instead.
func writeRecord(bw *bufio.Writer, w *csv.Writer, rec []string) error {
	if len(rec) != 1 || rec[0] != "" {
		return w.Write(rec)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	_, err := bw.WriteString("\"\"\n")
	return err
}

// readDataset loads {dir}/{name}.csv. The first record is the header.
func readDataset(dir, name string) (*Dataset, error) {
	path := datasetPath(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read dataset %s: missing header row", name)
		}
		return nil, fmt.Errorf("read dataset %s: %w", name, err)
	}
	ds := &Dataset{Name: name, Columns: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset %s: %w", name, err)
		}
		ds.Rows = append(ds.Rows, rec)
	}
	return ds, nil
}

// datasetChecksum returns the xxh3 hash of {dir}/{name}.csv. Re-extracting
// unchanged source data yields the same checksum.
func datasetChecksum(dir, name string) (uint64, error) {
	f, err := os.Open(datasetPath(dir, name))
	if err != nil {
		return 0, fmt.Errorf("open dataset %s: %w", name, err)
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("hash dataset %s: %w", name, err)
	}
	return h.Sum64(), nil
}
