// Package report renders the aligned-column metric tables and
// diagnostics text used by the info inspector (and printed by the CLI's
// info subcommand), repurposed from the teacher's loudness-comparison tables to
// container/codec metrics (mime, codec, bit rate, sample rate, capability
// flags).
package report

import (
	"fmt"
	"strings"
)

// MetricRow is a single labeled row in a MetricTable.
type MetricRow struct {
	Label string
	Value string
	Unit  string
}

// MetricTable formats a label/value/unit table with aligned columns, the
// way the teacher's loudness comparison tables align Input/Filtered/Final
// columns.
type MetricTable struct {
	Rows []MetricRow
}

// Add appends a row with a pre-formatted value.
func (t *MetricTable) Add(label, value, unit string) {
	t.Rows = append(t.Rows, MetricRow{Label: label, Value: value, Unit: unit})
}

// String renders the table: labels left-aligned, values right-aligned,
// units left-aligned after the value column.
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	labelWidth, valueWidth := 0, 0
	for _, row := range t.Rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
		if len(row.Value) > valueWidth {
			valueWidth = len(row.Value)
		}
	}

	var sb strings.Builder
	for _, row := range t.Rows {
		sb.WriteString(fmt.Sprintf("%-*s  %*s", labelWidth, row.Label, valueWidth, row.Value))
		if row.Unit != "" {
			sb.WriteString(" " + row.Unit)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
