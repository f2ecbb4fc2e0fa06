package gridfile

import (
	"fmt"
	"math"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/grid"
)

// Coordinate dataset names.
const (
	CoordLat = "lat"
	CoordLon = "lon"
)

// CreateCoordinates materialises the node latitudes and longitudes of the file
// grid as (lat,lon) float64 datasets named CoordLat and CoordLon.
func (f *GridFile) CreateCoordinates() error {
	g, ok := f.Locator()
	if !ok {
		return fmt.Errorf("%w: grid file has no lat/lon grid", errs.ErrAttributeNotFound)
	}

	lats, lons := g.Lats(), g.Lons()
	latData := grid.NewArray(g.Rows, g.Cols)
	lonData := grid.NewArray(g.Rows, g.Cols)
	for r := range g.Rows {
		for c := range g.Cols {
			latData.Data[r*g.Cols+c] = lats[r]
			lonData.Data[r*g.Cols+c] = lons[c]
		}
	}

	for _, coord := range []struct {
		name string
		data grid.Array
	}{
		{CoordLat, latData},
		{CoordLon, lonData},
	} {
		ds, err := f.CreateDataset(DatasetSpec{
			Name:         coord.name,
			View:         grid.View{grid.Lat, grid.Lon},
			DType:        format.Float64,
			MissingValue: math.NaN(),
		})
		if err != nil {
			return err
		}
		if _, err := ds.Write(nil, coord.data); err != nil {
			return err
		}
	}

	return nil
}
