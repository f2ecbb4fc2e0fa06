// Package grid reads and writes bounded sub-arrays of datasets laid out along
// any ordering of the time, lat and lon axes.
//
// A dataset's View is the ordered tuple of axes that defines its layout, for
// example (time,lat,lon) or (lat,lon,time), with one to three axes. Callers
// select index ranges per axis kind and the Engine maps them onto the view,
// so the same Selection works against every layout.
//
// Write clamps over-long ranges at the end of an axis and truncates the input
// to fit; a range that starts outside the axis is an error. Read clamps the
// same way and collapses axes selected at a single index.
package grid
