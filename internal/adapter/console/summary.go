package console

import (
	"fmt"
	"io"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
)

// RenderSummary prints the statistics table followed by a one-line
// description of the time-series table.
func RenderSummary(w io.Writer, ts domain.TimeSeriesTable, stats domain.StatsTable) {
	if len(stats.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 regions)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "ISO", "Area (km²)", "Cells"})
	for _, r := range stats.Rows {
		t.AppendRow(table.Row{r.Index, r.Name, r.ISOCode, fmt.Sprintf("%.1f", r.AreaKm2), r.CellCount})
	}
	t.AppendFooter(table.Row{"", "Total", "", fmt.Sprintf("%.1f", totalArea(stats)), totalCells(stats)})
	t.Render()

	_, _ = fmt.Fprintf(w, "(%d regions, %d columns, %d timesteps, %d missing values)\n",
		len(stats.Rows), len(ts.Columns), ts.Rows(), missing(ts))
}

func totalArea(stats domain.StatsTable) float64 {
	var sum float64
	for _, r := range stats.Rows {
		sum += r.AreaKm2
	}
	return sum
}

func totalCells(stats domain.StatsTable) int {
	var sum int
	for _, r := range stats.Rows {
		sum += r.CellCount
	}
	return sum
}

func missing(ts domain.TimeSeriesTable) int {
	n := 0
	for _, c := range ts.Columns {
		for _, v := range c.Values {
			if math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}
