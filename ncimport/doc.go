// Package ncimport reads gridded variables from NetCDF files laid out as
// (time, latitude, longitude), the layout of ERA5 and NOAA analysis exports,
// and feeds them to a merge.Controller.
//
// Packed integer variables are unpacked with scale_factor and add_offset;
// samples equal to _FillValue or missing_value become NaN. Latitudes stored
// north to south are flipped so row 0 is the southern-most row, matching
// geo.Grid.
package ncimport
