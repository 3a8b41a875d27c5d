// Package layout computes how source pages are packed onto output sheets.
package layout

import (
	"sort"
	"strconv"
	"strings"
)

// Grid is a columns x rows arrangement of cells on one output sheet.
type Grid struct {
	Columns int
	Rows    int
}

// Cells returns the number of cells in the grid.
func (g Grid) Cells() int {
	return g.Columns * g.Rows
}

var grids = map[int]Grid{
	1: {Columns: 1, Rows: 1},
	2: {Columns: 1, Rows: 2},
	3: {Columns: 1, Rows: 3},
	4: {Columns: 2, Rows: 2},
	6: {Columns: 2, Rows: 3},
	9: {Columns: 3, Rows: 3},
}

// Resolve maps a slides-per-page count to its grid.
// Unknown counts fall back to a single cell; callers validate with IsSupported.
func Resolve(slidesPerPage int) Grid {
	if g, ok := grids[slidesPerPage]; ok {
		return g
	}
	return Grid{Columns: 1, Rows: 1}
}

// IsSupported reports whether slidesPerPage has a dedicated grid.
func IsSupported(slidesPerPage int) bool {
	_, ok := grids[slidesPerPage]
	return ok
}

// Supported returns the accepted slides-per-page values in ascending order.
func Supported() []int {
	counts := make([]int, 0, len(grids))
	for n := range grids {
		counts = append(counts, n)
	}
	sort.Ints(counts)
	return counts
}

// SupportedList renders the accepted values for error messages, e.g. "1, 2, 3, 4, 6, 9".
func SupportedList() string {
	counts := Supported()
	parts := make([]string, len(counts))
	for i, n := range counts {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
