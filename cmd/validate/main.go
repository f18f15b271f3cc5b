// Command validate checks the integrity of an extraction's outputs: the
// per-region statistics CSV, the time-series Parquet file and their
// consistency with each other.
//
// Usage:
//
//	go run ./cmd/validate --output fra_t2m.parquet
package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/pflag"

	"github.com/couchcryptid/climate-region-etl/internal/adapter/duckdb"
	"github.com/couchcryptid/climate-region-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name     string
	errors   []string
	warnings []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	output := pflag.StringP("output", "o", "", "time-series Parquet file written by extract")
	stats := pflag.String("stats", "", "statistics CSV (default <output>.csv)")
	pflag.Parse()

	if *output == "" {
		pflag.Usage()
		os.Exit(1)
	}
	if *stats == "" {
		*stats = *output + ".csv"
	}

	os.Exit(run(context.Background(), *output, *stats))
}

func run(ctx context.Context, seriesPath, statsPath string) int {
	fmt.Println("=== Extraction Output Validation ===")
	fmt.Println()

	stats, err := duckdb.ReadStats(ctx, statsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load stats CSV: %v\n", err)
		return 1
	}
	series, err := duckdb.ReadSeries(ctx, seriesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load time series: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateStats(stats),
		validateSeries(series),
		validateConsistency(series, stats),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Regions: %d stats rows, %d series columns, %d timesteps\n",
		len(stats.Rows), len(series.Columns), len(series.Timesteps))

	for _, p := range phases {
		if p.passed() && len(p.warnings) == 0 {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
		for _, w := range p.warnings {
			fmt.Printf("  [warn] %s\n", w)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Statistics ──

func validateStats(stats domain.StatsTable) *phase {
	p := &phase{name: "Phase 1: Statistics (CSV)"}
	for i, r := range stats.Rows {
		if r.Index != i {
			p.errorf("row %d: index is %d, expected %d", i, r.Index, i)
		}
		if strings.TrimSpace(r.Name) == "" {
			p.errorf("row %d: empty region name", i)
		}
		if r.AreaKm2 < 0 {
			p.errorf("row %d (%s): negative area %g", i, r.Name, r.AreaKm2)
		}
		if r.CellCount < 0 {
			p.errorf("row %d (%s): negative cell count %d", i, r.Name, r.CellCount)
		}
	}
	return p
}

// ── Phase 2: Time series ──

func validateSeries(series duckdb.SeriesFile) *phase {
	p := &phase{name: "Phase 2: Time Series (Parquet)"}

	for i := 1; i < len(series.Timesteps); i++ {
		if !series.Timesteps[i].After(series.Timesteps[i-1]) {
			p.errorf("timestep %d (%s) does not follow %s", i, series.Timesteps[i], series.Timesteps[i-1])
		}
	}

	seen := make(map[string]string, len(series.Columns))
	for _, c := range series.Columns {
		key := strings.ToLower(c)
		if key == domain.TimestepColumn {
			p.errorf("region column named %q", c)
		}
		if prev, ok := seen[key]; ok {
			p.errorf("columns %q and %q collide", prev, c)
		}
		seen[key] = c
	}
	return p
}

// ── Phase 3: Consistency ──

var dedupSuffix = regexp.MustCompile(`_\d+$`)

// validateConsistency walks columns against stats rows in order. Every
// column belongs to a stats row; rows without coverage may be skipped
// (omitted columns) or present with only nulls. A covered row without a
// column is a warning: regions that failed during extraction keep their
// stats row but produce no column.
func validateConsistency(series duckdb.SeriesFile, stats domain.StatsTable) *phase {
	p := &phase{name: "Phase 3: Consistency (CSV vs Parquet)"}

	if len(series.Columns) > len(stats.Rows) {
		p.errorf("%d columns but only %d regions", len(series.Columns), len(stats.Rows))
		return p
	}

	col := 0
	for _, r := range stats.Rows {
		if col >= len(series.Columns) {
			if r.CellCount > 0 {
				p.warnf("region %d (%s) covers %d cells but has no column", r.Index, r.Name, r.CellCount)
			}
			continue
		}
		name := series.Columns[col]
		if !sameRegion(name, r.Name) {
			if r.CellCount > 0 {
				p.warnf("region %d (%s) covers %d cells but has no column (next column %q)", r.Index, r.Name, r.CellCount, name)
			}
			continue
		}
		if r.CellCount == 0 && series.NullCounts[name] != len(series.Timesteps) {
			p.errorf("region %d (%s) covers no cells but column %q has values", r.Index, r.Name, name)
		}
		col++
	}
	if col < len(series.Columns) {
		p.errorf("columns %v do not match any region", series.Columns[col:])
	}
	return p
}

func sameRegion(column, region string) bool {
	for {
		if column == region {
			return true
		}
		trimmed := dedupSuffix.ReplaceAllString(column, "")
		if trimmed == column {
			return false
		}
		column = trimmed
	}
}
