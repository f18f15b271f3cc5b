package netcdf

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
)

// Coordinate variable names, in lookup order.
var (
	lonNames  = []string{"longitude", "lon", "x"}
	latNames  = []string{"latitude", "lat", "y"}
	timeNames = []string{"time", "valid_time"}
	stepNames = []string{"step"}
)

// coordPrecision rounds float32 axis labels back to the grid's nominal values.
const coordPrecision = 1e6

var errNoSpatialAxes = errors.New("no longitude/latitude axes")

// coord is a decoded coordinate variable. dim is empty for scalar coordinates.
type coord struct {
	name string
	dim  string
}

func decode(g group, logger *slog.Logger) (*domain.Grid, error) {
	names := g.ListVariables()

	lonC, lon, err := spatialAxis(g, names, lonNames)
	if err != nil {
		return nil, err
	}
	latC, lat, err := spatialAxis(g, names, latNames)
	if err != nil {
		return nil, err
	}

	timeC, times, err := timeAxis(g, names)
	if err != nil {
		return nil, err
	}
	stepC, steps, err := stepAxis(g, names)
	if err != nil {
		return nil, err
	}

	grid := domain.NewGrid(lon, lat, times, steps)
	axes := map[string]int{lonC.dim: len(lon), latC.dim: len(lat)}
	if timeC.dim != "" {
		axes[timeC.dim] = len(times)
	}
	if stepC.dim != "" {
		axes[stepC.dim] = len(steps)
	}
	coords := []string{lonC.name, latC.name, timeC.name, stepC.name}

	for _, name := range names {
		if slices.Contains(coords, name) {
			continue
		}
		v, err := g.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("read variable %s: %w", name, err)
		}
		if !slices.Contains(v.Dimensions, lonC.dim) || !slices.Contains(v.Dimensions, latC.dim) {
			continue
		}
		values, err := gridValues(v, axes, []string{timeC.dim, stepC.dim, latC.dim, lonC.dim})
		if err != nil {
			logger.Warn("skipping variable", "variable", name, "error", err)
			continue
		}
		if err := grid.AddVariable(name, values); err != nil {
			return nil, err
		}
	}
	return grid, nil
}

// lookup returns the first name present in the file.
func lookup(names, candidates []string) (string, bool) {
	for _, c := range candidates {
		if slices.Contains(names, c) {
			return c, true
		}
	}
	return "", false
}

func spatialAxis(g group, names, candidates []string) (coord, []float64, error) {
	name, ok := lookup(names, candidates)
	if !ok {
		return coord{}, nil, errNoSpatialAxes
	}
	v, err := g.GetVariable(name)
	if err != nil {
		return coord{}, nil, fmt.Errorf("read %s: %w", name, err)
	}
	values, shape, err := flatten(v.Values)
	if err != nil {
		return coord{}, nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(shape) != 1 || len(v.Dimensions) != 1 {
		return coord{}, nil, fmt.Errorf("%s must be one-dimensional", name)
	}
	for i, x := range values {
		values[i] = math.Round(x*coordPrecision) / coordPrecision
	}
	return coord{name: name, dim: v.Dimensions[0]}, values, nil
}

// timeAxis decodes the reference-time coordinate. Files without one get a
// single Unix epoch time.
func timeAxis(g group, names []string) (coord, []time.Time, error) {
	name, ok := lookup(names, timeNames)
	if !ok {
		return coord{}, []time.Time{time.Unix(0, 0).UTC()}, nil
	}
	v, err := g.GetVariable(name)
	if err != nil {
		return coord{}, nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(v.Dimensions) > 1 {
		return coord{}, nil, fmt.Errorf("%s has %d dimensions", name, len(v.Dimensions))
	}
	raw, _, err := flatten(v.Values)
	if err != nil {
		return coord{}, nil, fmt.Errorf("read %s: %w", name, err)
	}
	units, _ := stringAttr(v.Attributes, "units")
	unit, epoch, err := parseTimeUnits(units)
	if err != nil {
		return coord{}, nil, fmt.Errorf("%s: %w", name, err)
	}
	times := make([]time.Time, len(raw))
	for i, x := range raw {
		times[i] = epoch.Add(scaleDuration(x, unit))
	}
	return coordOf(name, v), times, nil
}

// stepAxis decodes the forecast-step coordinate. Files without one get a
// single zero step.
func stepAxis(g group, names []string) (coord, []time.Duration, error) {
	name, ok := lookup(names, stepNames)
	if !ok {
		return coord{}, nil, nil
	}
	v, err := g.GetVariable(name)
	if err != nil {
		return coord{}, nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(v.Dimensions) > 1 {
		return coord{}, nil, fmt.Errorf("%s has %d dimensions", name, len(v.Dimensions))
	}
	raw, _, err := flatten(v.Values)
	if err != nil {
		return coord{}, nil, fmt.Errorf("read %s: %w", name, err)
	}
	units, _ := stringAttr(v.Attributes, "units")
	unit, err := parseStepUnits(units)
	if err != nil {
		return coord{}, nil, fmt.Errorf("%s: %w", name, err)
	}
	steps := make([]time.Duration, len(raw))
	for i, x := range raw {
		steps[i] = scaleDuration(x, unit)
	}
	return coordOf(name, v), steps, nil
}

func coordOf(name string, v *api.Variable) coord {
	c := coord{name: name}
	if len(v.Dimensions) == 1 {
		c.dim = v.Dimensions[0]
	}
	return c
}

func scaleDuration(x float64, unit time.Duration) time.Duration {
	return time.Duration(math.Round(x * float64(unit)))
}
