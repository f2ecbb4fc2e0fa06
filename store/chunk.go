package store

import (
	"strconv"
	"strings"
)

// GridShape returns the number of chunks along each dimension,
// ceil(shape[i] / chunks[i]).
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}

	return grid
}

// ChunkKey returns the page key of the chunk at the given grid indices,
// e.g. [1, 4, 0] -> "1.4.0".
func ChunkKey(indices []int) string {
	if len(indices) == 1 {
		return strconv.Itoa(indices[0])
	}

	var sb strings.Builder
	for i, idx := range indices {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(idx))
	}

	return sb.String()
}

// ParseChunkKey is the inverse of ChunkKey.
func ParseChunkKey(key string) ([]int, bool) {
	parts := strings.Split(key, ".")
	indices := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, false
		}
		indices[i] = n
	}

	return indices, true
}
