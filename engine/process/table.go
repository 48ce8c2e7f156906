package process

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Table is a header plus string rows, the unit every processed file and
// the optional SQL sinks deal in.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// WriteCSV writes t to dir/{t.Name}.csv and returns the path.
func WriteCSV(dir string, t Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("process: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, t.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("process: create %s: %w", path, err)
	}
	defer f.Close()

	if err := t.Encode(f); err != nil {
		return "", fmt.Errorf("process: write %s: %w", path, err)
	}
	return path, f.Close()
}

// Encode writes t as CSV.
func (t Table) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// ReadCSV loads a CSV file with a header row. Short rows are padded so
// every row has len(Header) cells.
func ReadCSV(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("process: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("process: read %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(recs) == 0 {
		return Table{Name: name}, nil
	}
	t := Table{Name: name, Header: recs[0]}
	for _, rec := range recs[1:] {
		for len(rec) < len(t.Header) {
			rec = append(rec, "")
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// Row gives by-name access to one table row.
type Row struct {
	idx    map[string]int
	values []string
}

// Each calls f for every row.
func (t Table) Each(f func(Row)) {
	idx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, vals := range t.Rows {
		f(Row{idx: idx, values: vals})
	}
}

// Get returns the trimmed cell for col, or "" when the column is absent.
func (r Row) Get(col string) string {
	i, ok := r.idx[col]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// Has reports whether col exists and is non-empty.
func (r Row) Has(col string) bool { return r.Get(col) != "" }

func (r Row) Float(col string) (float64, bool) {
	v, err := strconv.ParseFloat(r.Get(col), 64)
	return v, err == nil
}

// Int accepts "12", "12.0" and "1,200".
func (r Row) Int(col string) (int64, bool) {
	s := strings.ReplaceAll(r.Get(col), ",", "")
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

func (r Row) Bool(col string) bool {
	b, _ := strconv.ParseBool(strings.ToLower(r.Get(col)))
	return b
}

// Time parses an RFC 3339 cell; the zero time is returned for empty or
// malformed cells.
func (r Row) Time(col string) time.Time {
	return ParseTime(r.Get(col))
}

// ParseTime accepts the timestamp layouts both APIs use.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
