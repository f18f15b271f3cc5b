// Package duckdb writes and reads the extraction outputs through an
// in-process DuckDB: the time-series table as Parquet and the per-region
// statistics as CSV.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
)

// appendCheckEvery is how many appended rows pass between context checks.
const appendCheckEvery = 4096

// Stats CSV header, in column order.
var statsColumns = []string{"index", "name", "ISO", "area_km2", "cell_count"}

// Writer emits finalized tables. Each file is written to a temporary path
// and renamed once both are complete, so a failed write leaves no output.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{logger: logger}
}

// WriteTables writes the time-series table to paths.TimeSeries (Parquet)
// and the statistics table to paths.Stats (CSV). NaN values become NULL.
func (w *Writer) WriteTables(ctx context.Context, ts domain.TimeSeriesTable, stats domain.StatsTable, paths domain.OutputPaths) (err error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("duckdb connection: %w", err)
	}
	defer conn.Close()

	seriesTmp := paths.TimeSeries + ".tmp"
	statsTmp := paths.Stats + ".tmp"
	defer func() {
		if err != nil {
			_ = os.Remove(seriesTmp)
			_ = os.Remove(statsTmp)
		}
	}()

	if err := loadSeries(ctx, conn, ts); err != nil {
		return err
	}
	if err := copyTo(ctx, conn, "series", seriesTmp, "FORMAT PARQUET"); err != nil {
		return err
	}
	if err := loadStats(ctx, conn, stats); err != nil {
		return err
	}
	if err := copyTo(ctx, conn, "stats", statsTmp, "FORMAT CSV, HEADER"); err != nil {
		return err
	}

	if err := os.Rename(seriesTmp, paths.TimeSeries); err != nil {
		return fmt.Errorf("publish %s: %w", paths.TimeSeries, err)
	}
	if err := os.Rename(statsTmp, paths.Stats); err != nil {
		_ = os.Remove(paths.TimeSeries)
		return fmt.Errorf("publish %s: %w", paths.Stats, err)
	}

	w.logger.Info("outputs written",
		"timeseries", paths.TimeSeries,
		"stats", paths.Stats,
		"rows", ts.Rows(),
		"columns", len(ts.Columns),
		"regions", len(stats.Rows),
	)
	return nil
}

func loadSeries(ctx context.Context, conn *sql.Conn, ts domain.TimeSeriesTable) error {
	cols := make([]string, 0, len(ts.Columns)+1)
	cols = append(cols, quoteIdent(domain.TimestepColumn)+" TIMESTAMP")
	for _, c := range ts.Columns {
		cols = append(cols, quoteIdent(c.Name)+" DOUBLE")
	}
	if _, err := conn.ExecContext(ctx, "CREATE TABLE series ("+strings.Join(cols, ", ")+")"); err != nil {
		return fmt.Errorf("create series table: %w", err)
	}

	rows := make([][]driver.Value, ts.Rows())
	for i, t := range ts.Timesteps {
		row := make([]driver.Value, 0, len(ts.Columns)+1)
		row = append(row, t.UTC())
		for _, c := range ts.Columns {
			row = append(row, nullable(c.Values[i]))
		}
		rows[i] = row
	}
	return appendRows(ctx, conn, "series", rows)
}

func loadStats(ctx context.Context, conn *sql.Conn, stats domain.StatsTable) error {
	ddl := fmt.Sprintf("CREATE TABLE stats (%s BIGINT, %s VARCHAR, %s VARCHAR, %s DOUBLE, %s BIGINT)",
		quoteIdent(statsColumns[0]), quoteIdent(statsColumns[1]), quoteIdent(statsColumns[2]),
		quoteIdent(statsColumns[3]), quoteIdent(statsColumns[4]))
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create stats table: %w", err)
	}

	rows := make([][]driver.Value, len(stats.Rows))
	for i, r := range stats.Rows {
		rows[i] = []driver.Value{int64(r.Index), r.Name, r.ISOCode, nullable(r.AreaKm2), int64(r.CellCount)}
	}
	return appendRows(ctx, conn, "stats", rows)
}

// appendRows bulk-loads rows into table through the driver's Appender.
func appendRows(ctx context.Context, conn *sql.Conn, table string, rows [][]driver.Value) error {
	if len(rows) == 0 {
		return nil
	}
	return conn.Raw(func(driverConn any) (err error) {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("append %s: unexpected driver connection %T", table, driverConn)
		}
		app, err := goduckdb.NewAppenderFromConn(dc, "", table)
		if err != nil {
			return fmt.Errorf("appender for %s: %w", table, err)
		}
		defer func() {
			if cerr := app.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("flush %s: %w", table, cerr))
			}
		}()

		for i, row := range rows {
			if i%appendCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := app.AppendRow(row...); err != nil {
				return fmt.Errorf("append %s row %d: %w", table, i, err)
			}
		}
		return nil
	})
}

func copyTo(ctx context.Context, conn *sql.Conn, table, path, options string) error {
	q := fmt.Sprintf("COPY %s TO %s (%s)", table, quoteLiteral(path), options)
	if _, err := conn.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("write %s to %s: %w", table, path, err)
	}
	return nil
}

func nullable(v float64) driver.Value {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
