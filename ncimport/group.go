package ncimport

import (
	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// Variable is the part of a NetCDF variable the importer reads.
type Variable interface {
	// Len returns the extent of the leading dimension.
	Len() int64
	// Dimensions returns the dimension names, outermost first.
	Dimensions() []string
	// Attr returns a variable attribute.
	Attr(key string) (any, bool)
	// Values returns every value as a nested slice.
	Values() (any, error)
	// GetSlice returns [begin, end) of the leading dimension as a nested slice.
	GetSlice(begin, end int64) (any, error)
}

// Group is an open NetCDF file.
type Group interface {
	Variable(name string) (Variable, error)
	Close()
}

// OpenFile opens a NetCDF file.
func OpenFile(path string) (Group, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}

	return WrapGroup(nc), nil
}

// WrapGroup adapts an api.Group.
func WrapGroup(g api.Group) Group {
	return ncGroup{g: g}
}

type ncGroup struct {
	g api.Group
}

func (n ncGroup) Variable(name string) (Variable, error) {
	vg, err := n.g.GetVarGetter(name)
	if err != nil {
		return nil, err
	}

	return ncVariable{vg: vg}, nil
}

func (n ncGroup) Close() {
	n.g.Close()
}

type ncVariable struct {
	vg api.VarGetter
}

func (v ncVariable) Len() int64                             { return v.vg.Len() }
func (v ncVariable) Dimensions() []string                   { return v.vg.Dimensions() }
func (v ncVariable) Values() (any, error)                   { return v.vg.Values() }
func (v ncVariable) GetSlice(begin, end int64) (any, error) { return v.vg.GetSlice(begin, end) }

func (v ncVariable) Attr(key string) (any, bool) {
	attrs := v.vg.Attributes()
	if attrs == nil {
		return nil, false
	}

	return attrs.Get(key)
}
