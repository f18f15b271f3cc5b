// Package netcdf reads ERA5-style NetCDF files into domain grids.
package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
)

// group is the subset of api.Group the decoder needs.
type group interface {
	Close()
	ListVariables() []string
	GetVariable(name string) (*api.Variable, error)
}

// Options controls post-processing of an opened grid.
type Options struct {
	// WrapLongitude rolls 0..360 longitudes onto -180..180.
	WrapLongitude bool
}

// Source opens NetCDF files from the local filesystem.
type Source struct {
	opts   Options
	logger *slog.Logger
	open   func(path string) (group, error)
}

// NewSource creates a Source.
func NewSource(opts Options, logger *slog.Logger) *Source {
	return &Source{
		opts:   opts,
		logger: logger,
		open: func(path string) (group, error) {
			g, err := netcdf.Open(path)
			if err != nil {
				return nil, err
			}
			return g, nil
		},
	}
}

// Open loads every gridded variable of the file at path. A path that is not
// a readable NetCDF file with longitude and latitude axes fails with
// domain.ErrMissingInput.
func (s *Source) Open(ctx context.Context, path string) (*domain.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMissingInput, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrMissingInput, path)
	}

	g, err := s.open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrMissingInput, path, err)
	}
	defer g.Close()

	grid, err := decode(g, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMissingInput, path, err)
	}
	if s.opts.WrapLongitude {
		grid = grid.WrapLongitude()
	}

	nt, ns, nlat, nlon := grid.Shape()
	s.logger.Info("grid opened",
		"path", path,
		"times", nt,
		"steps", ns,
		"latitudes", nlat,
		"longitudes", nlon,
		"variables", grid.Variables(),
	)
	return grid, nil
}
