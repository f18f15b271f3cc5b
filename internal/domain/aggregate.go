package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Aggregator reduces the grid cells inside one region to a scalar per
// (time, step). It holds no per-call state and may be shared across goroutines.
type Aggregator struct {
	geo GeometryOps
}

// NewAggregator creates an Aggregator. A nil GeometryOps selects PlanarOps.
func NewAggregator(geo GeometryOps) *Aggregator {
	if geo == nil {
		geo = NewGeometryOps()
	}
	return &Aggregator{geo: geo}
}

// Aggregate computes the region's series and stats row. A region whose
// bounding box covers no grid cell yields an empty series and a stats row
// with CellCount 0; that is not an error. The caller checks varname exists.
func (a *Aggregator) Aggregate(grid *Grid, region Region, varname string) (AggregatedSeries, RegionStats, error) {
	stats := RegionStats{Name: region.Name, ISOCode: region.ISOCode}

	bbox, err := a.geo.BoundingBox(region)
	if err != nil {
		return nil, stats, fmt.Errorf("bounding box of %s: %w", region.Name, err)
	}

	window := grid.SelectBoundingBox(bbox.XMin, bbox.YMin, bbox.XMax, bbox.YMax)
	stats.CellCount = len(window.Longitude) * len(window.Latitude)

	stats.AreaKm2, err = a.geo.AreaKm2(region)
	if err != nil {
		return nil, stats, fmt.Errorf("area of %s: %w", region.Name, err)
	}

	if window.Len() == 0 {
		return nil, stats, nil
	}

	mask, err := a.geo.Clip(region, window.Longitude, window.Latitude)
	if err != nil {
		return nil, stats, fmt.Errorf("clip %s: %w", region.Name, err)
	}

	values, ok := window.Values(varname)
	if !ok {
		return nil, stats, fmt.Errorf("%w: %s", ErrVariableNotFound, varname)
	}
	return reduce(window, values, mask), stats, nil
}

// reduce averages the masked cells for every (time, step) pair. NaN cells
// are skipped; a pair with no valid cell yields NaN.
func reduce(window *Grid, values []float64, mask []bool) AggregatedSeries {
	nt, ns, nlat, nlon := window.Shape()
	cells := nlat * nlon
	series := make(AggregatedSeries, 0, nt*ns)
	buf := make([]float64, 0, cells)

	for t := 0; t < nt; t++ {
		for s := 0; s < ns; s++ {
			base := window.offset(t, s, 0, 0)
			buf = buf[:0]
			for c := 0; c < cells; c++ {
				if !mask[c] {
					continue
				}
				if v := values[base+c]; !math.IsNaN(v) {
					buf = append(buf, v)
				}
			}

			value := math.NaN()
			if len(buf) > 0 {
				value = stat.Mean(buf, nil)
			}
			series = append(series, Point{
				Timestep: window.Time[t].Add(window.Step[s]),
				Value:    value,
			})
		}
	}
	return series
}
