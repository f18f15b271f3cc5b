package domain

import (
	"time"

	"github.com/ctessum/geom"
)

// Region is one administrative unit produced by the boundary provider.
type Region struct {
	Name     string
	ISOCode  string
	Geometry geom.Polygonal
	CRS      string // empty means WGS84 longitude/latitude
}

// BBox is an axis-aligned bounding box in longitude/latitude degrees.
type BBox struct {
	XMin, YMin, XMax, YMax float64
}

// Point is one aggregated value at a composite timestep (time + step).
type Point struct {
	Timestep time.Time `json:"timestep"`
	Value    float64   `json:"value"`
}

// AggregatedSeries is the ordered output of one region's spatial reduction.
// Points follow the grid's time-major, then step, ordering.
type AggregatedSeries []Point

// Timesteps returns the series' timestep axis.
func (s AggregatedSeries) Timesteps() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Timestep
	}
	return out
}

// RegionStats is the per-region diagnostic row. CellCount counts the
// bounding-box window, not the cells kept by the polygon mask.
type RegionStats struct {
	Name      string  `json:"name"`
	ISOCode   string  `json:"iso"`
	AreaKm2   float64 `json:"area_km2"`
	CellCount int     `json:"cell_count"`
}
