package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Numeric columns are right aligned.
type column struct {
	title   string
	numeric bool
}

var (
	jobColumns = []column{
		{title: "Job"}, {title: "Status"}, {title: "Type"}, {title: "Owner"},
		{title: "Progress", numeric: true}, {title: "Updated"},
	}
	queueEntryColumns = []column{
		{title: "Job"}, {title: "State"}, {title: "Attempts", numeric: true},
		{title: "Due"}, {title: "Last error"},
	}
)

// countColumns is the two-column layout used for job and queue tallies.
func countColumns(label string) []column {
	return []column{{title: label}, {title: "Count", numeric: true}}
}

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := newTableWriter(columns)
	for _, row := range rows {
		tw.AppendRow(padRow(row, len(columns)))
	}
	return tw.Render() + "\n"
}

// renderCountTable renders label/count rows with a total footer.
func renderCountTable(label string, rows [][]string) string {
	columns := countColumns(label)
	tw := newTableWriter(columns)
	total := 0
	for _, row := range rows {
		tw.AppendRow(padRow(row, len(columns)))
		if len(row) > 1 {
			n, _ := strconv.Atoi(row[1])
			total += n
		}
	}
	tw.AppendFooter(table.Row{"Total", strconv.Itoa(total)})
	return tw.Render() + "\n"
}

func newTableWriter(columns []column) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, c := range columns {
		header[i] = c.title
		align := text.AlignLeft
		if c.numeric {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignFooter: align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)
	return tw
}

func padRow(row []string, width int) table.Row {
	r := make(table.Row, width)
	for i := range width {
		if i < len(row) {
			r[i] = row[i]
		} else {
			r[i] = ""
		}
	}
	return r
}
