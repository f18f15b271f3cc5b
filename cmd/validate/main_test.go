package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-region-etl/internal/adapter/duckdb"
	"github.com/couchcryptid/climate-region-etl/internal/domain"
)

var t0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func statsRows(rows ...domain.RegionStats) domain.StatsTable {
	var table domain.StatsTable
	for i, r := range rows {
		table.Rows = append(table.Rows, domain.StatsRow{Index: i, RegionStats: r})
	}
	return table
}

func TestValidateStats(t *testing.T) {
	good := statsRows(domain.RegionStats{Name: "A", AreaKm2: 10, CellCount: 4})
	assert.True(t, validateStats(good).passed())

	bad := domain.StatsTable{Rows: []domain.StatsRow{
		{Index: 1, RegionStats: domain.RegionStats{Name: " ", AreaKm2: -1, CellCount: -2}},
	}}
	assert.Len(t, validateStats(bad).errors, 4)
}

func TestValidateSeries(t *testing.T) {
	good := duckdb.SeriesFile{
		Columns:   []string{"Paris", "PARIS_2"},
		Timesteps: []time.Time{t0, t0.Add(time.Hour)},
	}
	assert.True(t, validateSeries(good).passed())

	bad := duckdb.SeriesFile{
		Columns:   []string{"Paris", "paris", "Timestep"},
		Timesteps: []time.Time{t0, t0},
	}
	assert.Len(t, validateSeries(bad).errors, 3)
}

func TestValidateConsistency(t *testing.T) {
	stats := statsRows(
		domain.RegionStats{Name: "Paris", CellCount: 4},
		domain.RegionStats{Name: "Offshore"},
		domain.RegionStats{Name: "Paris", CellCount: 2},
	)

	tests := []struct {
		name     string
		series   duckdb.SeriesFile
		errors   int
		warnings int
	}{
		{
			name: "null filled",
			series: duckdb.SeriesFile{
				Columns:    []string{"Paris", "Offshore", "Paris_2"},
				Timesteps:  []time.Time{t0},
				NullCounts: map[string]int{"Offshore": 1},
			},
		},
		{
			name: "omitted",
			series: duckdb.SeriesFile{
				Columns:   []string{"Paris", "Paris_2"},
				Timesteps: []time.Time{t0},
			},
		},
		{
			name: "empty region with values",
			series: duckdb.SeriesFile{
				Columns:   []string{"Paris", "Offshore", "Paris_2"},
				Timesteps: []time.Time{t0},
			},
			errors: 1,
		},
		{
			name: "covered region missing",
			series: duckdb.SeriesFile{
				Columns:   []string{"Paris"},
				Timesteps: []time.Time{t0},
			},
			warnings: 1,
		},
		{
			name: "unknown column",
			series: duckdb.SeriesFile{
				Columns:   []string{"Paris", "Lyon"},
				Timesteps: []time.Time{t0},
			},
			errors:   1,
			warnings: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validateConsistency(tt.series, stats)
			assert.Len(t, p.errors, tt.errors)
			assert.Len(t, p.warnings, tt.warnings)
		})
	}
}

func TestValidateConsistency_FailedRegionKeepsStatsRow(t *testing.T) {
	stats := statsRows(
		domain.RegionStats{Name: "Paris", CellCount: 4},
		domain.RegionStats{Name: "Corse", CellCount: 9},
		domain.RegionStats{Name: "Lyon", CellCount: 2},
	)
	series := duckdb.SeriesFile{
		Columns:   []string{"Paris", "Lyon"},
		Timesteps: []time.Time{t0},
	}

	p := validateConsistency(series, stats)
	assert.True(t, p.passed())
	require.Len(t, p.warnings, 1)
	assert.Contains(t, p.warnings[0], "Corse")
}

func TestSameRegion(t *testing.T) {
	assert.True(t, sameRegion("Saint-Denis", "Saint-Denis"))
	assert.True(t, sameRegion("Saint-Denis_2_2", "Saint-Denis"))
	assert.True(t, sameRegion("Route_66", "Route_66"))
	assert.False(t, sameRegion("Lyon", "Paris"))
}
