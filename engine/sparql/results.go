package sparql

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/knakk/rdf"

	"github.com/skylane-labs/hubgraph/engine/kg"
)

// Results is a SELECT result table.
type Results struct {
	Vars      []string
	Solutions []map[string]rdf.Term
}

// Display renders a term for humans: IRIs compacted to prefixed names,
// literals by their lexical form.
func Display(t rdf.Term) string {
	switch t := t.(type) {
	case nil:
		return ""
	case rdf.IRI:
		return kg.Compact(t.String())
	case rdf.Literal:
		return t.String()
	case rdf.Blank:
		return t.String()
	}
	return t.String()
}

// Rows returns the table as display strings, one slice per solution.
func (r *Results) Rows() [][]string {
	out := make([][]string, len(r.Solutions))
	for i, sol := range r.Solutions {
		row := make([]string, len(r.Vars))
		for j, v := range r.Vars {
			row[j] = Display(sol[v])
		}
		out[i] = row
	}
	return out
}

// Maps returns solutions as variable to display string, for JSON.
func (r *Results) Maps() []map[string]string {
	out := make([]map[string]string, len(r.Solutions))
	for i, sol := range r.Solutions {
		m := make(map[string]string, len(sol))
		for k, v := range sol {
			m[k] = Display(v)
		}
		out[i] = m
	}
	return out
}

// WriteText writes an aligned table with a title and a row count.
func (r *Results) WriteText(w io.Writer, title string) error {
	rows := r.Rows()
	widths := make([]int, len(r.Vars))
	for i, v := range r.Vars {
		widths[i] = utf8.RuneCountInString(v)
	}
	for _, row := range rows {
		for i, c := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\n", title)
	line := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(c)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(c)))
			}
		}
		b.WriteString("\n")
	}
	line(r.Vars)
	sep := make([]string, len(widths))
	for i, n := range widths {
		sep[i] = strings.Repeat("-", n)
	}
	line(sep)
	for _, row := range rows {
		line(row)
	}
	fmt.Fprintf(&b, "\n(%d rows)\n", len(rows))
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteCSV writes one column per projected variable.
func (r *Results) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Vars); err != nil {
		return err
	}
	if err := cw.WriteAll(r.Rows()); err != nil {
		return err
	}
	return cw.Error()
}
