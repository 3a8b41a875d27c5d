package layout

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyPage      = errors.New("page has zero width or height")
	ErrCanvasTooSmall = errors.New("canvas too small for grid")
	ErrNoPages        = errors.New("document has no pages")
)

// Default canvas: US Letter portrait in points.
const (
	DefaultWidth   = 612.0
	DefaultHeight  = 792.0
	DefaultPadding = 20.0
)

// Size is a page geometry in points.
type Size struct {
	Width  float64
	Height float64
}

// Canvas describes the output sheet and the gap between cells and around the border.
type Canvas struct {
	Width   float64
	Height  float64
	Padding float64
}

// DefaultCanvas returns a letter sized canvas with the default padding.
func DefaultCanvas() Canvas {
	return Canvas{Width: DefaultWidth, Height: DefaultHeight, Padding: DefaultPadding}
}

// Rect is an axis aligned box in PDF user space (origin bottom-left).
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Contains reports whether r lies inside o, allowing for float rounding.
func (r Rect) Contains(o Rect) bool {
	const eps = 1e-9
	return o.X >= r.X-eps && o.Y >= r.Y-eps &&
		o.X+o.Width <= r.X+r.Width+eps &&
		o.Y+o.Height <= r.Y+r.Height+eps
}

// Overlaps reports whether r and o share any area.
func (r Rect) Overlaps(o Rect) bool {
	const eps = 1e-9
	return r.X < o.X+o.Width-eps && o.X < r.X+r.Width-eps &&
		r.Y < o.Y+o.Height-eps && o.Y < r.Y+r.Height-eps
}

// Placement positions one source page on a sheet.
type Placement struct {
	Source int // 0-based index into the source pages
	Column int
	Row    int
	Scale  float64
	Cell   Rect
	Frame  Rect // scaled page, centered in Cell
}

// Sheet is one output page.
type Sheet struct {
	Placements []Placement
}

// CellSize returns the size of one grid cell on the canvas.
func (c Canvas) CellSize(g Grid) (Size, error) {
	w := (c.Width - c.Padding*float64(g.Columns+1)) / float64(g.Columns)
	h := (c.Height - c.Padding*float64(g.Rows+1)) / float64(g.Rows)
	if w <= 0 || h <= 0 || math.IsNaN(w) || math.IsNaN(h) {
		return Size{}, fmt.Errorf("%w: %gx%g with padding %g cannot hold %dx%d",
			ErrCanvasTooSmall, c.Width, c.Height, c.Padding, g.Columns, g.Rows)
	}
	return Size{Width: w, Height: h}, nil
}

// Plan lays out pages in consecutive batches of slidesPerPage, row-major within
// each sheet, top row first. Every page is scaled uniformly to fit its cell and
// centered in it. Pages with a zero dimension are rejected.
func Plan(pages []Size, slidesPerPage int, c Canvas) ([]Sheet, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	if slidesPerPage < 1 {
		slidesPerPage = 1
	}

	g := Resolve(slidesPerPage)
	cell, err := c.CellSize(g)
	if err != nil {
		return nil, err
	}

	for i, p := range pages {
		if p.Width <= 0 || p.Height <= 0 {
			return nil, fmt.Errorf("%w: page %d is %gx%g", ErrEmptyPage, i+1, p.Width, p.Height)
		}
	}

	sheets := make([]Sheet, 0, (len(pages)+slidesPerPage-1)/slidesPerPage)
	for start := 0; start < len(pages); start += slidesPerPage {
		end := min(start+slidesPerPage, len(pages))

		sheet := Sheet{Placements: make([]Placement, 0, end-start)}
		for j := 0; j < end-start; j++ {
			col := j % g.Columns
			row := j / g.Columns

			top := c.Padding + float64(row)*(cell.Height+c.Padding)
			cellRect := Rect{
				X:      c.Padding + float64(col)*(cell.Width+c.Padding),
				Y:      c.Height - top - cell.Height,
				Width:  cell.Width,
				Height: cell.Height,
			}

			src := pages[start+j]
			scale := math.Min(cell.Width/src.Width, cell.Height/src.Height)
			w := src.Width * scale
			h := src.Height * scale

			sheet.Placements = append(sheet.Placements, Placement{
				Source: start + j,
				Column: col,
				Row:    row,
				Scale:  scale,
				Cell:   cellRect,
				Frame: Rect{
					X:      cellRect.X + (cell.Width-w)/2,
					Y:      cellRect.Y + (cell.Height-h)/2,
					Width:  w,
					Height: h,
				},
			})
		}
		sheets = append(sheets, sheet)
	}

	return sheets, nil
}
