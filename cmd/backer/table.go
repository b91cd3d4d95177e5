package main

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderTable prints rows with the shared rounded style. rightAlign lists
// 1-based column numbers holding numeric values.
func renderTable(out io.Writer, header table.Row, rows []table.Row, rightAlign ...int) {
	writer := table.NewWriter()
	writer.SetOutputMirror(out)
	writer.SetStyle(table.StyleRounded)
	writer.AppendHeader(header)
	writer.AppendRows(rows)
	if len(rightAlign) > 0 {
		configs := make([]table.ColumnConfig, 0, len(rightAlign))
		for _, col := range rightAlign {
			configs = append(configs, table.ColumnConfig{
				Number:      col,
				Align:       text.AlignRight,
				AlignHeader: text.AlignLeft,
			})
		}
		writer.SetColumnConfigs(configs)
	}
	writer.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatUnix(sec int64) string {
	if sec <= 0 {
		return "never"
	}
	return formatTime(time.Unix(sec, 0))
}
