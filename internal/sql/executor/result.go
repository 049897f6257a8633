package executor

import (
	"fmt"
	"strings"

	"github.com/pesadb/pesadb/internal/types"
)

// Result is the outcome of one statement. Queries fill Columns and Rows;
// mutations fill Message, and RowCount always carries the number of rows
// returned or affected.
type Result struct {
	Columns  []string
	Rows     [][]types.Value
	RowCount int
	Message  string
}

// String renders the result as a plain text table, or the message when
// there is no row set.
func (r *Result) String() string {
	if len(r.Columns) == 0 {
		return r.Message
	}

	widths := make([]int, len(r.Columns))
	for i, c := range r.Columns {
		widths[i] = len(c)
	}
	rendered := make([][]string, len(r.Rows))
	for ri, row := range r.Rows {
		cells := make([]string, len(row))
		for ci, v := range row {
			cells[ci] = v.String()
			if len(cells[ci]) > widths[ci] {
				widths[ci] = len(cells[ci])
			}
		}
		rendered[ri] = cells
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				sb.WriteString(" | ")
			}
			fmt.Fprintf(&sb, "%-*s", widths[i], cell)
		}
		sb.WriteByte('\n')
	}
	writeRow(r.Columns)
	for i, w := range widths {
		if i > 0 {
			sb.WriteString("-+-")
		}
		sb.WriteString(strings.Repeat("-", w))
	}
	sb.WriteByte('\n')
	for _, cells := range rendered {
		writeRow(cells)
	}
	fmt.Fprintf(&sb, "(%d rows)\n", len(r.Rows))
	return sb.String()
}
