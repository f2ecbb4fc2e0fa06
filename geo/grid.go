// Package geo maps longitude/latitude coordinates to row/column indices of a
// regular lat/lon grid.
//
// Row 0 is the southern-most row and column 0 the western-most column. A
// coordinate resolves to its nearest node only when that node lies within the
// grid's search radius, so points between a grid edge and the radius still
// resolve while points further out fail with errs.ErrOutOfBounds.
package geo

import (
	"fmt"
	"math"

	"github.com/arloliu/atmogrid/errs"
)

// Grid is a regular lat/lon grid. Its value is immutable; all methods are pure.
type Grid struct {
	MinLon  float64 // longitude of column 0 in degrees east
	MinLat  float64 // latitude of row 0 in degrees north
	Spacing float64 // node spacing in degrees on both axes
	Rows    int
	Cols    int
	Radius  float64 // search radius in degrees
}

// Family5km is the node spacing and search radius of the 1/24° source family.
var Family5km = Grid{Spacing: 1.0 / 24.0, Radius: 0.031}

// Family2p5km is the node spacing and search radius of the 1/48° source family.
var Family2p5km = Grid{Spacing: 1.0 / 48.0, Radius: 0.0155}

// NewGrid creates a grid anchored at (minLon, minLat) with the spacing and
// radius of family.
func NewGrid(family Grid, minLon, minLat float64, rows, cols int) (Grid, error) {
	g := family
	g.MinLon, g.MinLat, g.Rows, g.Cols = minLon, minLat, rows, cols

	return g, g.Validate()
}

// Validate checks that the grid has nodes and a positive spacing and radius.
func (g Grid) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("%w: grid %dx%d", errs.ErrInvalidConfig, g.Rows, g.Cols)
	}
	if !(g.Spacing > 0) || math.IsInf(g.Spacing, 0) {
		return fmt.Errorf("%w: grid spacing %v", errs.ErrInvalidConfig, g.Spacing)
	}
	if !(g.Radius > 0) || math.IsInf(g.Radius, 0) {
		return fmt.Errorf("%w: grid radius %v", errs.ErrInvalidConfig, g.Radius)
	}
	if math.IsNaN(g.MinLon) || math.IsNaN(g.MinLat) {
		return fmt.Errorf("%w: grid origin (%v, %v)", errs.ErrInvalidConfig, g.MinLon, g.MinLat)
	}

	return nil
}

// MaxLon returns the longitude of the last column.
func (g Grid) MaxLon() float64 {
	return g.MinLon + float64(g.Cols-1)*g.Spacing
}

// MaxLat returns the latitude of the last row.
func (g Grid) MaxLat() float64 {
	return g.MinLat + float64(g.Rows-1)*g.Spacing
}

// Node returns the coordinates of the node at (row, col).
func (g Grid) Node(row, col int) (lon, lat float64) {
	return g.MinLon + float64(col)*g.Spacing, g.MinLat + float64(row)*g.Spacing
}

// Lats returns the latitude of every row, south to north.
func (g Grid) Lats() []float64 {
	lats := make([]float64, g.Rows)
	for i := range lats {
		lats[i] = g.MinLat + float64(i)*g.Spacing
	}

	return lats
}

// Lons returns the longitude of every column, west to east.
func (g Grid) Lons() []float64 {
	lons := make([]float64, g.Cols)
	for i := range lons {
		lons[i] = g.MinLon + float64(i)*g.Spacing
	}

	return lons
}

// Locate returns the nearest grid node to (lon, lat).
//
// The rounded index is clamped into the grid and the Euclidean distance in
// degrees to that node must not exceed Radius.
//
// Returns:
//   - row, col: node indices
//   - error: ErrOutOfBounds if no node lies within Radius
func (g Grid) Locate(lon, lat float64) (row, col int, err error) {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return 0, 0, fmt.Errorf("%w: (%v, %v)", errs.ErrOutOfBounds, lon, lat)
	}

	row = nearest(lat, g.MinLat, g.Spacing, g.Rows)
	col = nearest(lon, g.MinLon, g.Spacing, g.Cols)

	nodeLon, nodeLat := g.Node(row, col)
	if math.Hypot(lon-nodeLon, lat-nodeLat) > g.Radius {
		return 0, 0, fmt.Errorf("%w: (%.4f, %.4f) has no node within %.4f°", errs.ErrOutOfBounds, lon, lat, g.Radius)
	}

	return row, col, nil
}

// Contains reports whether (lon, lat) resolves to a node.
func (g Grid) Contains(lon, lat float64) bool {
	_, _, err := g.Locate(lon, lat)
	return err == nil
}

// IndexBox is an inclusive row/column bounding box.
type IndexBox struct {
	MinRow, MinCol int
	MaxRow, MaxCol int
}

// Rows returns the number of rows covered.
func (b IndexBox) Rows() int {
	return b.MaxRow - b.MinRow + 1
}

// Cols returns the number of columns covered.
func (b IndexBox) Cols() int {
	return b.MaxCol - b.MinCol + 1
}

// BoundingBoxToIndices resolves the south-west and north-east corners of a
// bounding box to an inclusive index box.
func (g Grid) BoundingBoxToIndices(minLon, maxLon, minLat, maxLat float64) (IndexBox, error) {
	if minLon > maxLon || minLat > maxLat {
		return IndexBox{}, fmt.Errorf("%w: inverted bounding box lon [%v, %v] lat [%v, %v]",
			errs.ErrInvalidRange, minLon, maxLon, minLat, maxLat)
	}

	minRow, minCol, err := g.Locate(minLon, minLat)
	if err != nil {
		return IndexBox{}, err
	}
	maxRow, maxCol, err := g.Locate(maxLon, maxLat)
	if err != nil {
		return IndexBox{}, err
	}

	return IndexBox{MinRow: minRow, MinCol: minCol, MaxRow: maxRow, MaxCol: maxCol}, nil
}

func nearest(v, origin, spacing float64, n int) int {
	i := int(math.Round((v - origin) / spacing))

	return max(0, min(i, n-1))
}
