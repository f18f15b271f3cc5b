package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// GeometryOps is the narrow set of geometry capabilities the aggregator needs.
type GeometryOps interface {
	// BoundingBox returns the region's extent in WGS84 degrees.
	BoundingBox(r Region) (BBox, error)

	// AreaKm2 returns the region's equal-area surface in km², rounded to 2 decimals.
	AreaKm2(r Region) (float64, error)

	// Clip returns a mask in [lat][lon] order, true for cells whose centre
	// falls inside or on the edge of the region.
	Clip(r Region, lon, lat []float64) ([]bool, error)
}

// WGS84 ellipsoid parameters used by the equal-area projection.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
)

const wgs84Proj = "+proj=longlat +datum=WGS84 +no_defs"

var errEmptyGeometry = errors.New("empty geometry")

// PlanarOps implements GeometryOps with github.com/ctessum/geom.
type PlanarOps struct{}

// NewGeometryOps returns the default GeometryOps implementation.
func NewGeometryOps() PlanarOps { return PlanarOps{} }

func (PlanarOps) BoundingBox(r Region) (BBox, error) {
	g, err := toWGS84(r)
	if err != nil {
		return BBox{}, err
	}
	b := g.Bounds()
	if b == nil {
		return BBox{}, errEmptyGeometry
	}
	return BBox{XMin: b.Min.X, YMin: b.Min.Y, XMax: b.Max.X, YMax: b.Max.Y}, nil
}

func (PlanarOps) AreaKm2(r Region) (float64, error) {
	g, err := toWGS84(r)
	if err != nil {
		return 0, err
	}
	projected, err := g.Transform(equalAreaTransform)
	if err != nil {
		return 0, fmt.Errorf("project to equal-area: %w", err)
	}
	poly, ok := projected.(geom.Polygonal)
	if !ok {
		return 0, fmt.Errorf("project to equal-area: unexpected geometry %T", projected)
	}
	return math.Round(poly.Area()/1e6*100) / 100, nil
}

func (PlanarOps) Clip(r Region, lon, lat []float64) ([]bool, error) {
	g, err := toWGS84(r)
	if err != nil {
		return nil, err
	}
	b := g.Bounds()
	mask := make([]bool, len(lat)*len(lon))
	if b == nil {
		return mask, nil
	}
	for y, latv := range lat {
		if latv < b.Min.Y || latv > b.Max.Y {
			continue
		}
		for x, lonv := range lon {
			if lonv < b.Min.X || lonv > b.Max.X {
				continue
			}
			mask[y*len(lon)+x] = geom.Point{X: lonv, Y: latv}.Within(g) != geom.Outside
		}
	}
	return mask, nil
}

// toWGS84 aligns a region's geometry with the grid's longitude/latitude CRS.
func toWGS84(r Region) (geom.Polygonal, error) {
	if r.Geometry == nil || len(r.Geometry.Polygons()) == 0 {
		return nil, errEmptyGeometry
	}
	if isGeographic(r.CRS) {
		return r.Geometry, nil
	}

	src, err := proj.Parse(r.CRS)
	if err != nil {
		return nil, fmt.Errorf("parse crs %q: %w", r.CRS, err)
	}
	dst, err := proj.Parse(wgs84Proj)
	if err != nil {
		return nil, fmt.Errorf("parse wgs84: %w", err)
	}
	ct, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("crs transform %q: %w", r.CRS, err)
	}
	g, err := r.Geometry.Transform(ct)
	if err != nil {
		return nil, fmt.Errorf("reproject region %s: %w", r.Name, err)
	}
	poly, ok := g.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("reproject region %s: unexpected geometry %T", r.Name, g)
	}
	return poly, nil
}

// isGeographic reports whether crs names WGS84 longitude/latitude.
func isGeographic(crs string) bool {
	c := strings.ToUpper(strings.TrimSpace(crs))
	switch c {
	case "", "EPSG:4326", "WGS84", "OGC:CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84", "URN:OGC:DEF:CRS:EPSG::4326":
		return true
	}
	if strings.HasPrefix(c, "+PROJ=LONGLAT") || strings.HasPrefix(c, "+PROJ=LATLONG") {
		return !strings.Contains(c, "+DATUM=") || strings.Contains(c, "+DATUM=WGS84")
	}
	return false
}

// equalAreaTransform projects longitude/latitude degrees onto the Lambert
// cylindrical equal-area projection (lon_0=0, lat_ts=0) on the WGS84 ellipsoid.
func equalAreaTransform(lon, lat float64) (float64, float64, error) {
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude %g out of range", lat)
	}
	e2 := wgs84F * (2 - wgs84F)
	e := math.Sqrt(e2)
	phi := lat * math.Pi / 180
	lambda := lon * math.Pi / 180

	sinPhi := math.Sin(phi)
	esin := e * sinPhi
	q := (1 - e2) * (sinPhi/(1-esin*esin) - 1/(2*e)*math.Log((1-esin)/(1+esin)))

	return wgs84A * lambda, wgs84A * q / 2, nil
}
