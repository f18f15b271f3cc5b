package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ctessum/geom"
)

// featureCollection is the subset of a geoBoundaries GeoJSON file we read.
type featureCollection struct {
	Type string `json:"type"`
	CRS  *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
	Features []struct {
		Properties struct {
			ShapeName string `json:"shapeName"`
			ShapeISO  string `json:"shapeISO"`
			ShapeID   string `json:"shapeID"`
		} `json:"properties"`
		Geometry *struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// DecodeRegions parses a GeoJSON FeatureCollection into regions, one per
// feature, in file order. Features must be Polygon or MultiPolygon with a
// bounding box inside plausible longitude/latitude ranges.
func DecodeRegions(data []byte) ([]Region, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode geojson: expected FeatureCollection, got %q", fc.Type)
	}

	crs := ""
	if fc.CRS != nil {
		crs = fc.CRS.Properties.Name
	}

	regions := make([]Region, 0, len(fc.Features))
	for i, f := range fc.Features {
		name := f.Properties.ShapeName
		if strings.TrimSpace(name) == "" {
			name = f.Properties.ShapeID
		}
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("region_%d", i)
		}
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature %d (%s): missing geometry", i, name)
		}
		g, err := decodePolygonal(f.Geometry.Type, f.Geometry.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("feature %d (%s): %w", i, name, err)
		}
		if isGeographic(crs) {
			if err := checkGeographicBounds(g); err != nil {
				return nil, fmt.Errorf("feature %d (%s): %w", i, name, err)
			}
		}
		regions = append(regions, Region{
			Name:     name,
			ISOCode:  f.Properties.ShapeISO,
			Geometry: g,
			CRS:      crs,
		})
	}
	return regions, nil
}

func decodePolygonal(kind string, raw json.RawMessage) (geom.Polygonal, error) {
	switch kind {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(raw, &rings); err != nil {
			return nil, fmt.Errorf("decode polygon: %w", err)
		}
		poly, err := toPolygon(rings)
		if err != nil {
			return nil, err
		}
		return poly, nil
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(raw, &polys); err != nil {
			return nil, fmt.Errorf("decode multipolygon: %w", err)
		}
		mp := make(geom.MultiPolygon, 0, len(polys))
		for _, rings := range polys {
			poly, err := toPolygon(rings)
			if err != nil {
				return nil, err
			}
			mp = append(mp, poly)
		}
		if len(mp) == 0 {
			return nil, errEmptyGeometry
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", kind)
	}
}

func toPolygon(rings [][][]float64) (geom.Polygon, error) {
	if len(rings) == 0 {
		return nil, errEmptyGeometry
	}
	poly := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		if len(ring) < 3 {
			return nil, errors.New("polygon ring has fewer than 3 positions")
		}
		path := make([]geom.Point, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				return nil, errors.New("position has fewer than 2 coordinates")
			}
			path = append(path, geom.Point{X: pos[0], Y: pos[1]})
		}
		poly = append(poly, path)
	}
	return poly, nil
}

func checkGeographicBounds(g geom.Polygonal) error {
	b := g.Bounds()
	if b.Min.X < -180 || b.Max.X > 360 || b.Min.Y < -90 || b.Max.Y > 90 {
		return fmt.Errorf("bounds [%g %g %g %g] outside longitude/latitude ranges", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
	}
	return nil
}
