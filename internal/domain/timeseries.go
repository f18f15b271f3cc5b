package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// TimestepColumn is the name of the table's key column. Region columns never
// take this name.
const TimestepColumn = "timestep"

// EmptyColumnPolicy decides what a region without grid coverage contributes
// to the time-series table.
type EmptyColumnPolicy string

const (
	// EmptyColumnsNull keeps the region's column, filled with NaN.
	EmptyColumnsNull EmptyColumnPolicy = "null"
	// EmptyColumnsOmit drops the column entirely.
	EmptyColumnsOmit EmptyColumnPolicy = "omit"
)

// Column is one region's values aligned with the table's timestep axis.
type Column struct {
	Name   string
	Values []float64
}

// TimeSeriesTable is the finalized, immutable output table.
type TimeSeriesTable struct {
	Timesteps []time.Time
	Columns   []Column
}

// Rows is the length of the timestep axis.
func (t TimeSeriesTable) Rows() int { return len(t.Timesteps) }

// ColumnNames lists the region columns in table order.
func (t TimeSeriesTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// TimeSeriesAssembler merges region series into one table. The first
// non-empty series fixes the timestep axis; later series must match it.
// It is not safe for concurrent use.
type TimeSeriesAssembler struct {
	policy  EmptyColumnPolicy
	axis    []time.Time
	fixed   bool
	columns []Column
	names   map[string]int
}

// NewTimeSeriesAssembler creates an assembler. Unknown policies fall back to
// EmptyColumnsNull.
func NewTimeSeriesAssembler(policy EmptyColumnPolicy) *TimeSeriesAssembler {
	if policy != EmptyColumnsOmit {
		policy = EmptyColumnsNull
	}
	return &TimeSeriesAssembler{
		policy: policy,
		names:  map[string]int{TimestepColumn: 1},
	}
}

// Established reports whether the timestep axis has been fixed.
func (a *TimeSeriesAssembler) Established() bool { return a.fixed }

// EstablishAxis fixes the shared timestep axis from series.
func (a *TimeSeriesAssembler) EstablishAxis(series AggregatedSeries) error {
	if a.fixed {
		return errors.New("timestep axis already established")
	}
	if len(series) == 0 {
		return errors.New("cannot establish timestep axis from an empty series")
	}
	a.axis = series.Timesteps()
	a.fixed = true
	return nil
}

// AddColumn appends a region's values under name. An empty series is handled
// per the assembler's EmptyColumnPolicy and never establishes the axis.
func (a *TimeSeriesAssembler) AddColumn(name string, series AggregatedSeries) error {
	_, err := a.AddNamedColumn(name, series)
	return err
}

// AddNamedColumn is AddColumn returning the deduplicated column name, or ""
// when an empty series was omitted.
func (a *TimeSeriesAssembler) AddNamedColumn(name string, series AggregatedSeries) (string, error) {
	if len(series) == 0 {
		if a.policy == EmptyColumnsOmit {
			return "", nil
		}
		col := a.uniqueName(name)
		a.columns = append(a.columns, Column{Name: col})
		return col, nil
	}

	if !a.fixed {
		if err := a.EstablishAxis(series); err != nil {
			return "", err
		}
	}
	if len(series) != len(a.axis) {
		return "", fmt.Errorf("%w: region %s has %d points, axis has %d", ErrAxisMismatch, name, len(series), len(a.axis))
	}

	values := make([]float64, len(series))
	for i, p := range series {
		if !p.Timestep.Equal(a.axis[i]) {
			return "", fmt.Errorf("%w: region %s timestep %d is %s, axis has %s",
				ErrAxisMismatch, name, i, p.Timestep.Format(time.RFC3339), a.axis[i].Format(time.RFC3339))
		}
		values[i] = p.Value
	}
	col := a.uniqueName(name)
	a.columns = append(a.columns, Column{Name: col, Values: values})
	return col, nil
}

// Finalize materializes null-filled columns and returns the table.
func (a *TimeSeriesAssembler) Finalize() TimeSeriesTable {
	columns := make([]Column, len(a.columns))
	for i, c := range a.columns {
		if c.Values == nil {
			c.Values = make([]float64, len(a.axis))
			for j := range c.Values {
				c.Values[j] = math.NaN()
			}
		}
		columns[i] = c
	}
	axis := a.axis
	if axis == nil {
		axis = []time.Time{}
	}
	return TimeSeriesTable{Timesteps: axis, Columns: columns}
}

// uniqueName suffixes repeated region names with _2, _3, ... Names are
// compared case-insensitively since columnar outputs fold case. Blank names
// become "region".
func (a *TimeSeriesAssembler) uniqueName(name string) string {
	if strings.TrimSpace(name) == "" {
		name = "region"
	}
	key := strings.ToLower(name)
	a.names[key]++
	n := a.names[key]
	if n == 1 {
		return name
	}
	candidate := fmt.Sprintf("%s_%d", name, n)
	for a.names[strings.ToLower(candidate)] > 0 {
		n++
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	a.names[strings.ToLower(candidate)]++
	return candidate
}
