package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
)

// SeriesFile summarises a time-series Parquet file.
type SeriesFile struct {
	Columns    []string // region columns, timestep excluded
	Timesteps  []time.Time
	NullCounts map[string]int
}

// ReadSeries loads the timestep axis and per-column null counts of a
// time-series Parquet file.
func ReadSeries(ctx context.Context, path string) (SeriesFile, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return SeriesFile{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT * FROM read_parquet("+quoteLiteral(path)+")")
	if err != nil {
		return SeriesFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return SeriesFile{}, err
	}
	if len(names) == 0 || names[0] != domain.TimestepColumn {
		return SeriesFile{}, fmt.Errorf("%s: first column must be %q, got %v", path, domain.TimestepColumn, names)
	}

	out := SeriesFile{
		Columns:    names[1:],
		NullCounts: make(map[string]int, len(names)-1),
	}
	var ts time.Time
	values := make([]sql.NullFloat64, len(names)-1)
	dest := make([]any, len(names))
	dest[0] = &ts
	for i := range values {
		dest[i+1] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return SeriesFile{}, fmt.Errorf("scan %s: %w", path, err)
		}
		out.Timesteps = append(out.Timesteps, ts.UTC())
		for i, v := range values {
			if !v.Valid {
				out.NullCounts[out.Columns[i]]++
			}
		}
	}
	return out, rows.Err()
}

// ReadStats loads a statistics CSV written by WriteTables.
func ReadStats(ctx context.Context, path string) (domain.StatsTable, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return domain.StatsTable{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	q := fmt.Sprintf(`SELECT %s, %s, %s, %s, %s FROM read_csv(%s, header = true, columns = {
		'index': 'BIGINT', 'name': 'VARCHAR', 'ISO': 'VARCHAR', 'area_km2': 'DOUBLE', 'cell_count': 'BIGINT'
	}) ORDER BY %s`,
		quoteIdent("index"), quoteIdent("name"), quoteIdent("ISO"), quoteIdent("area_km2"), quoteIdent("cell_count"),
		quoteLiteral(path), quoteIdent("index"))
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return domain.StatsTable{}, fmt.Errorf("read %s: %w", path, err)
	}
	defer rows.Close()

	var table domain.StatsTable
	for rows.Next() {
		var (
			index, cells int64
			name, iso    sql.NullString
			area         sql.NullFloat64
		)
		if err := rows.Scan(&index, &name, &iso, &area, &cells); err != nil {
			return domain.StatsTable{}, fmt.Errorf("scan %s: %w", path, err)
		}
		table.Rows = append(table.Rows, domain.StatsRow{
			Index: int(index),
			RegionStats: domain.RegionStats{
				Name:      name.String,
				ISOCode:   iso.String,
				AreaKm2:   area.Float64,
				CellCount: int(cells),
			},
		})
	}
	return table, rows.Err()
}
