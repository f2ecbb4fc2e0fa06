package store

import (
	"fmt"

	"github.com/arloliu/atmogrid/errs"
)

// PageIO loads and stores the decoded chunk pages of one dataset.
//
// A page always holds ChunkLen elements, including chunks that overhang the
// edge of the dataset.
type PageIO interface {
	// LoadPage returns the decoded page, or false if it was never stored.
	LoadPage(key string) ([]byte, bool, error)
	// StorePage persists a decoded page. The callee must not retain page.
	StorePage(key string, page []byte) error
}

// CheckRegion validates a hyperslab against a dataset shape and returns its element count.
func CheckRegion(info DatasetInfo, start, count []int) (int, error) {
	if len(start) != info.Rank() || len(count) != info.Rank() {
		return 0, fmt.Errorf("%w: region rank %d/%d for dataset %q of rank %d",
			errs.ErrDimensionMismatch, len(start), len(count), info.Name, info.Rank())
	}

	for i := range start {
		if start[i] < 0 || count[i] < 0 || start[i]+count[i] > info.Shape[i] {
			return 0, fmt.Errorf("%w: dataset %q axis %d range [%d,%d) outside [0,%d)",
				errs.ErrInvalidRange, info.Name, i, start[i], start[i]+count[i], info.Shape[i])
		}
	}

	return product(count), nil
}

// FillPage returns a page with every element set to the dataset fill value.
func FillPage(info DatasetInfo) []byte {
	page := make([]byte, info.ChunkLen()*info.ItemSize)
	if len(info.Fill) == 0 {
		return page
	}

	for off := 0; off < len(page); off += info.ItemSize {
		copy(page[off:], info.Fill)
	}

	return page
}

// ReadRegion assembles the hyperslab [start, start+count) from the pages of a dataset.
// Pages that were never stored read as the fill value.
func ReadRegion(pio PageIO, info DatasetInfo, start, count []int) ([]byte, error) {
	n, err := CheckRegion(info, start, count)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n*info.ItemSize)
	if n == 0 {
		return out, nil
	}

	var fill []byte
	err = forEachChunk(info, start, count, func(key string, chunkOrigin []int) error {
		page, ok, err := pio.LoadPage(key)
		if err != nil {
			return err
		}
		if !ok {
			if fill == nil {
				fill = FillPage(info)
			}
			page = fill
		}
		if len(page) != info.ChunkLen()*info.ItemSize {
			return fmt.Errorf("%w: page %s of %q is %d bytes", errs.ErrInvalidPageHeader, key, info.Name, len(page))
		}

		copyRuns(info, start, count, chunkOrigin, func(regionOff, pageOff, size int) {
			copy(out[regionOff:regionOff+size], page[pageOff:pageOff+size])
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// WriteRegion overwrites the hyperslab [start, start+count) with data, rewriting
// every page the region touches.
func WriteRegion(pio PageIO, info DatasetInfo, start, count []int, data []byte) error {
	n, err := CheckRegion(info, start, count)
	if err != nil {
		return err
	}
	if len(data) != n*info.ItemSize {
		return fmt.Errorf("%w: %d bytes for %d elements of %d bytes", errs.ErrDimensionMismatch, len(data), n, info.ItemSize)
	}
	if n == 0 {
		return nil
	}

	return forEachChunk(info, start, count, func(key string, chunkOrigin []int) error {
		page, ok, err := pio.LoadPage(key)
		if err != nil {
			return err
		}
		if !ok {
			page = FillPage(info)
		}
		if len(page) != info.ChunkLen()*info.ItemSize {
			return fmt.Errorf("%w: page %s of %q is %d bytes", errs.ErrInvalidPageHeader, key, info.Name, len(page))
		}

		copyRuns(info, start, count, chunkOrigin, func(regionOff, pageOff, size int) {
			copy(page[pageOff:pageOff+size], data[regionOff:regionOff+size])
		})

		return pio.StorePage(key, page)
	})
}

// forEachChunk calls fn for every chunk overlapping a non-empty region, passing
// the chunk key and the element coordinates of the chunk origin.
func forEachChunk(info DatasetInfo, start, count []int, fn func(key string, origin []int) error) error {
	rank := info.Rank()
	first := make([]int, rank)
	last := make([]int, rank)
	for i := range rank {
		first[i] = start[i] / info.ChunkShape[i]
		last[i] = (start[i] + count[i] - 1) / info.ChunkShape[i]
	}

	idx := make([]int, rank)
	copy(idx, first)
	origin := make([]int, rank)
	for {
		for i := range rank {
			origin[i] = idx[i] * info.ChunkShape[i]
		}
		if err := fn(ChunkKey(idx), origin); err != nil {
			return err
		}

		// odometer increment, last axis fastest
		axis := rank - 1
		for axis >= 0 {
			idx[axis]++
			if idx[axis] <= last[axis] {
				break
			}
			idx[axis] = first[axis]
			axis--
		}
		if axis < 0 {
			return nil
		}
	}
}

// copyRuns walks the intersection of a region and one chunk, calling fn once
// per contiguous run along the last axis with byte offsets into the region
// buffer and the page buffer.
func copyRuns(info DatasetInfo, start, count, origin []int, fn func(regionOff, pageOff, size int)) {
	rank := info.Rank()
	lo := make([]int, rank)
	hi := make([]int, rank)
	for i := range rank {
		lo[i] = max(start[i], origin[i])
		hi[i] = min(start[i]+count[i], origin[i]+info.ChunkShape[i])
	}

	runLen := (hi[rank-1] - lo[rank-1]) * info.ItemSize
	pos := make([]int, rank)
	copy(pos, lo)
	for {
		regionOff, pageOff := 0, 0
		for i := range rank {
			regionOff = regionOff*count[i] + (pos[i] - start[i])
			pageOff = pageOff*info.ChunkShape[i] + (pos[i] - origin[i])
		}
		fn(regionOff*info.ItemSize, pageOff*info.ItemSize, runLen)

		axis := rank - 2
		for axis >= 0 {
			pos[axis]++
			if pos[axis] < hi[axis] {
				break
			}
			pos[axis] = lo[axis]
			axis--
		}
		if axis < 0 {
			return
		}
	}
}
