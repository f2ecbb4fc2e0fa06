// Package store defines the paged array store that grid files are built on.
//
// A Store holds named N-dimensional datasets of fixed-width elements plus
// string attributes on the file root and on each dataset. Datasets are split
// into fixed-shape chunks; each chunk is persisted as one page addressed by a
// dotted chunk key such as "0.3.1". Sub-array reads and writes are expressed as
// per-axis start/count pairs and are assembled from pages by ReadRegion and
// WriteRegion, which every Store implementation shares.
//
// Implementations live in the memstore (in-process maps) and boltstore (bbolt
// file with compressed, checksummed pages) sub-packages.
package store
