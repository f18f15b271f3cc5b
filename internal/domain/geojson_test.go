package domain

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRegions(t *testing.T) {
	regions, err := DecodeRegions([]byte(twoRegions))
	require.NoError(t, err)
	require.Len(t, regions, 2)

	west := regions[0]
	assert.Equal(t, "West", west.Name)
	assert.Equal(t, "XX-W", west.ISOCode)
	assert.Empty(t, west.CRS)
	poly, ok := west.Geometry.(geom.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	assert.Len(t, poly[0], 5)

	_, ok = regions[1].Geometry.(geom.MultiPolygon)
	assert.True(t, ok)
}

func TestDecodeRegions_FallsBackToShapeID(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
	  {"properties":{"shapeID":"abc"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`
	regions, err := DecodeRegions([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "abc", regions[0].Name)
}

func TestDecodeRegions_NamelessFeatureGetsPositionalName(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
	  {"properties":{"shapeName":"A"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
	  {"properties":{"shapeName":" "},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`
	regions, err := DecodeRegions([]byte(data))
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "region_1", regions[1].Name)
}

func TestDecodeRegions_KeepsCRS(t *testing.T) {
	data := `{"type":"FeatureCollection",
	  "crs":{"type":"name","properties":{"name":"EPSG:3857"}},
	  "features":[{"properties":{"shapeName":"M"},"geometry":{"type":"Polygon",
	    "coordinates":[[[0,0],[500000,0],[500000,500000],[0,0]]]}}]}`
	regions, err := DecodeRegions([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3857", regions[0].CRS)
}

func TestDecodeRegions_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"wrong type", `{"type":"Feature"}`},
		{"missing geometry", `{"type":"FeatureCollection","features":[{"properties":{"shapeName":"A"}}]}`},
		{"point geometry", `{"type":"FeatureCollection","features":[{"geometry":{"type":"Point","coordinates":[1,2]}}]}`},
		{"short ring", `{"type":"FeatureCollection","features":[{"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,1]]]}}]}`},
		{"out of range", `{"type":"FeatureCollection","features":[{"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,95],[0,0]]]}}]}`},
		{"empty multipolygon", `{"type":"FeatureCollection","features":[{"geometry":{"type":"MultiPolygon","coordinates":[]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRegions([]byte(tt.data))
			require.Error(t, err)
		})
	}
}
