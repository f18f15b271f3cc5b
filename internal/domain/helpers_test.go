package domain

import (
	"io"
	"log/slog"
	"time"

	"github.com/ctessum/geom"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rect builds a counter-clockwise rectangular polygon.
func rect(xmin, ymin, xmax, ymax float64) geom.Polygon {
	return geom.Polygon{{
		{X: xmin, Y: ymin},
		{X: xmax, Y: ymin},
		{X: xmax, Y: ymax},
		{X: xmin, Y: ymax},
		{X: xmin, Y: ymin},
	}}
}

// axis returns n evenly spaced values starting at start.
func axis(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

var baseTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// constantGrid covers lon [0,10] and lat [50,40] (descending) at 1° with a
// single time/step and every t2m cell set to value.
func constantGrid(value float64) *Grid {
	g := NewGrid(axis(0, 1, 11), axis(50, -1, 11), []time.Time{baseTime}, nil)
	values := make([]float64, g.Len())
	for i := range values {
		values[i] = value
	}
	if err := g.AddVariable("t2m", values); err != nil {
		panic(err)
	}
	return g
}
