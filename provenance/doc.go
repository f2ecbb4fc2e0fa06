// Package provenance records one fixed-width statistics record per time step
// alongside every grid write.
//
// A provenance dataset is a 1-D array of records spanning the whole time axis
// of its data dataset. It starts filled with the empty record (blank strings,
// NaN statistics) and is overwritten in place as data lands. The record layout
// is chosen by a RecordType, a closed set of variants each carrying its field
// Schema and generator:
//
//	timestats       time[14] min max mean median processed[20] source[12]
//	datestats       date[10] min max mean median processed[20] source[12]
//	timeaccumstats  time[14] obs_min obs_max obs_mean accum_min accum_max accum_mean processed[20] source[12]
//
// Statistics are float32 and ignore missing samples.
package provenance
