package domain

import (
	"fmt"
	"sort"
	"time"
)

// Grid is an in-memory raster keyed by longitude, latitude, time and step axes.
// Every variable is stored flattened in [time][step][latitude][longitude] order.
// A Grid is read-only once built and safe for concurrent readers.
type Grid struct {
	Longitude []float64
	Latitude  []float64
	Time      []time.Time
	Step      []time.Duration

	vars map[string][]float64
}

// NewGrid creates an empty grid with the given axes. A nil step axis is
// treated as a single zero offset.
func NewGrid(lon, lat []float64, times []time.Time, steps []time.Duration) *Grid {
	if len(steps) == 0 {
		steps = []time.Duration{0}
	}
	return &Grid{
		Longitude: lon,
		Latitude:  lat,
		Time:      times,
		Step:      steps,
		vars:      make(map[string][]float64),
	}
}

// Shape returns the axis lengths in storage order.
func (g *Grid) Shape() (nt, ns, nlat, nlon int) {
	return len(g.Time), len(g.Step), len(g.Latitude), len(g.Longitude)
}

// Len is the number of values per variable.
func (g *Grid) Len() int {
	nt, ns, nlat, nlon := g.Shape()
	return nt * ns * nlat * nlon
}

// AddVariable attaches a variable. values must match the grid's shape.
func (g *Grid) AddVariable(name string, values []float64) error {
	if len(values) != g.Len() {
		return fmt.Errorf("variable %s: got %d values, grid holds %d", name, len(values), g.Len())
	}
	g.vars[name] = values
	return nil
}

// HasVariable reports whether name is a data variable of the grid.
func (g *Grid) HasVariable(name string) bool {
	_, ok := g.vars[name]
	return ok
}

// Variables lists the data variable names in sorted order.
func (g *Grid) Variables() []string {
	names := make([]string, 0, len(g.vars))
	for name := range g.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns the flattened values of a variable.
func (g *Grid) Values(name string) ([]float64, bool) {
	v, ok := g.vars[name]
	return v, ok
}

// At returns a single value. Indices follow storage order.
func (g *Grid) At(name string, t, s, y, x int) float64 {
	return g.vars[name][g.offset(t, s, y, x)]
}

func (g *Grid) offset(t, s, y, x int) int {
	_, ns, nlat, nlon := g.Shape()
	return ((t*ns+s)*nlat+y)*nlon + x
}

// SelectBoundingBox returns the sub-grid whose longitudes fall in [xmin, xmax]
// and latitudes in [ymin, ymax]. Bounds are inclusive and the selection does
// not assume either axis is ascending; native ordering is preserved.
func (g *Grid) SelectBoundingBox(xmin, ymin, xmax, ymax float64) *Grid {
	return g.subset(axisSelect(g.Latitude, ymin, ymax), axisSelect(g.Longitude, xmin, xmax))
}

// WrapLongitude rolls a 0..360 longitude axis onto -180..180, ascending.
// Grids already in that range are returned unchanged.
func (g *Grid) WrapLongitude() *Grid {
	needs := false
	for _, lon := range g.Longitude {
		if lon > 180 {
			needs = true
			break
		}
	}
	if !needs {
		return g
	}

	wrapped := make([]float64, len(g.Longitude))
	order := make([]int, len(g.Longitude))
	for i, lon := range g.Longitude {
		if lon >= 180 {
			lon -= 360
		}
		wrapped[i] = lon
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return wrapped[order[a]] < wrapped[order[b]] })

	out := g.subset(seq(len(g.Latitude)), order)
	for i, src := range order {
		out.Longitude[i] = wrapped[src]
	}
	return out
}

// subset copies the cells at the given latitude and longitude indices.
func (g *Grid) subset(latIdx, lonIdx []int) *Grid {
	lon := make([]float64, len(lonIdx))
	for i, src := range lonIdx {
		lon[i] = g.Longitude[src]
	}
	lat := make([]float64, len(latIdx))
	for i, src := range latIdx {
		lat[i] = g.Latitude[src]
	}

	out := NewGrid(lon, lat, g.Time, g.Step)
	nt, ns, _, _ := g.Shape()
	for name, values := range g.vars {
		dst := make([]float64, 0, nt*ns*len(latIdx)*len(lonIdx))
		for t := 0; t < nt; t++ {
			for s := 0; s < ns; s++ {
				for _, y := range latIdx {
					for _, x := range lonIdx {
						dst = append(dst, values[g.offset(t, s, y, x)])
					}
				}
			}
		}
		out.vars[name] = dst
	}
	return out
}

// axisSelect returns the indices of values inside [lo, hi], in axis order.
func axisSelect(values []float64, lo, hi float64) []int {
	if lo > hi {
		lo, hi = hi, lo
	}
	var idx []int
	for i, v := range values {
		if v >= lo && v <= hi {
			idx = append(idx, i)
		}
	}
	return idx
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
