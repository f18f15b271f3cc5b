// Package domain models gridded climate data and the administrative regions
// it is aggregated over.
//
// # Grid Conventions
//
// Grids follow the ERA5 / ERA5-land layout produced by cfgrib and the CDS
// NetCDF exporter:
//
//	longitude  degrees east, ascending; 0..360 files are wrapped to -180..180
//	latitude   degrees north, usually stored descending (90 → -90)
//	time       forecast reference or analysis time
//	step       lead time added to time; absent for analyses (treated as 0)
//
// Bounding-box selection is label based and inclusive on both ends, so a
// descending latitude axis needs no special casing by callers. See
// [Grid.SelectBoundingBox].
//
// A point of the output series is identified by its timestep, time + step.
// Series are ordered time-major, then step, matching the storage order.
//
// # Boundary Conventions
//
// Boundaries come from geoBoundaries (https://www.geoboundaries.org). The
// "ALL" endpoint lists every published level for a country. Countries with
// two levels or fewer fall back to ADM0, see [BoundaryProvider.Resolve].
// Features carry "shapeName" and "shapeISO" properties and are WGS84 unless
// the collection declares a "crs" member.
//
// # Aggregation
//
// A cell belongs to a region when its centre lies inside or on the edge of
// the polygon. The region value is the unweighted mean of those cells;
// missing values (NaN) are skipped. Areas are computed on the Lambert
// cylindrical equal-area projection of the WGS84 ellipsoid, in km² rounded to
// two decimals. CellCount is the size of the bounding-box window and is a
// coverage diagnostic only.
package domain
