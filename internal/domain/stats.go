package domain

// StatsRow is one line of the statistics table.
type StatsRow struct {
	Index int
	RegionStats

	// Column is the time-series column holding the region's values, or ""
	// when the region has none. It is not part of the CSV output.
	Column string
}

// StatsTable is the finalized per-region summary.
type StatsTable struct {
	Rows []StatsRow
}

// StatsCollector accumulates one row per region, in merge order,
// whether or not the region produced a series.
type StatsCollector struct {
	rows []StatsRow
}

// NewStatsCollector creates an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

// Record appends a row for s.
func (c *StatsCollector) Record(s RegionStats) {
	c.RecordColumn(s, "")
}

// RecordColumn appends a row for s linked to the named time-series column.
func (c *StatsCollector) RecordColumn(s RegionStats, column string) {
	c.rows = append(c.rows, StatsRow{Index: len(c.rows), RegionStats: s, Column: column})
}

// Finalize returns a copy of the collected rows.
func (c *StatsCollector) Finalize() StatsTable {
	rows := make([]StatsRow, len(c.rows))
	copy(rows, c.rows)
	return StatsTable{Rows: rows}
}
