package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// BoundaryLevel is the service's metadata record for one administrative level.
type BoundaryLevel struct {
	ID          string
	Name        string
	ISO         string
	Type        string // "ADM0", "ADM1", ...
	GeometryURL string // simplified GeoJSON download
}

// PolygonSpec identifies the boundary file selected for a run.
type PolygonSpec struct {
	Country        string
	RequestedLevel int
	Level          int
	Boundary       BoundaryLevel
}

// BoundaryFetcher talks to the upstream boundary service.
type BoundaryFetcher interface {
	// FetchLevels lists the administrative levels available for a country.
	FetchLevels(ctx context.Context, country string) ([]BoundaryLevel, error)

	// FetchGeometry downloads a GeoJSON FeatureCollection.
	FetchGeometry(ctx context.Context, url string) ([]byte, error)
}

// BoundaryProvider resolves a country and administrative level into regions.
type BoundaryProvider struct {
	fetcher BoundaryFetcher
	logger  *slog.Logger
}

// NewBoundaryProvider creates a provider backed by fetcher.
func NewBoundaryProvider(fetcher BoundaryFetcher, logger *slog.Logger) *BoundaryProvider {
	return &BoundaryProvider{fetcher: fetcher, logger: logger}
}

// Resolve validates the inputs, then selects the boundary record for
// admLevel. When the service offers two levels or fewer, level 0 is used
// instead and a warning is logged. Service failures wrap ErrBoundaryService.
func (p *BoundaryProvider) Resolve(ctx context.Context, countryCode string, admLevel int) (PolygonSpec, error) {
	country, err := NormalizeCountry(countryCode)
	if err != nil {
		return PolygonSpec{}, err
	}
	if err := ValidateAdmLevel(admLevel); err != nil {
		return PolygonSpec{}, err
	}

	levels, err := p.fetcher.FetchLevels(ctx, country)
	if err != nil {
		return PolygonSpec{}, fmt.Errorf("%w: list levels for %s: %w", ErrBoundaryService, country, err)
	}
	if len(levels) == 0 {
		return PolygonSpec{}, fmt.Errorf("%w: no boundaries published for %s", ErrBoundaryService, country)
	}

	spec := PolygonSpec{Country: country, RequestedLevel: admLevel, Level: admLevel}
	if len(levels) > 2 {
		spec.Boundary = pickLevel(levels, admLevel)
	} else {
		p.logger.Warn("adm level does not exist, switching to ADM0",
			"country", country,
			"adm_level", admLevel,
			"levels_available", len(levels),
		)
		spec.Level = 0
		spec.Boundary = pickLevel(levels, 0)
	}

	if spec.Boundary.GeometryURL == "" {
		return PolygonSpec{}, fmt.Errorf("%w: %s %s has no geometry download", ErrBoundaryService, country, spec.Boundary.Type)
	}
	return spec, nil
}

// LoadGeometry downloads the selected boundary and decodes one Region per feature.
func (p *BoundaryProvider) LoadGeometry(ctx context.Context, spec PolygonSpec) ([]Region, error) {
	data, err := p.fetcher.FetchGeometry(ctx, spec.Boundary.GeometryURL)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s geometry: %w", ErrBoundaryService, spec.Boundary.Type, err)
	}
	regions, err := DecodeRegions(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBoundaryService, err)
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: %s %s geometry has no features", ErrBoundaryService, spec.Country, spec.Boundary.Type)
	}
	return regions, nil
}

// pickLevel prefers the record typed ADM<level> and falls back to position.
func pickLevel(levels []BoundaryLevel, level int) BoundaryLevel {
	want := "ADM" + strconv.Itoa(level)
	for _, l := range levels {
		if strings.EqualFold(l.Type, want) {
			return l
		}
	}
	if level < len(levels) {
		return levels[level]
	}
	return levels[0]
}
