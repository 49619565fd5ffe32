package report

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table is a console rendering of report rows.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
	Footer []string
}

// Render writes t to w.
func (t Table) Render(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	if t.Title != "" {
		tw.SetTitle(t.Title)
	}
	if len(t.Header) > 0 {
		tw.AppendHeader(toRow(t.Header))
	}
	for _, r := range t.Rows {
		tw.AppendRow(toRow(r))
	}
	if len(t.Footer) > 0 {
		tw.AppendFooter(toRow(t.Footer))
	}
	tw.Render()
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
