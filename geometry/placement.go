package geometry

// Rect is a placement rectangle in document units.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Grid tiles the results of a batch run row-major, with a gap proportional
// to the tile size.
type Grid struct {
	Columns    int
	GapPercent float64
}

// Cell returns the column and row of batch index i.
func (g Grid) Cell(i int) (col, row int) {
	cols := max(g.Columns, 1)
	return i % cols, i / cols
}

// Place offsets base for batch index i. The stride along each axis is the
// tile dimension scaled by (1 + gap/100).
func (g Grid) Place(base Rect, i int) Rect {
	col, row := g.Cell(i)
	stride := 1 + g.GapPercent/100
	return Rect{
		Left:   base.Left + base.Width*float64(col)*stride,
		Top:    base.Top + base.Height*float64(row)*stride,
		Width:  base.Width,
		Height: base.Height,
	}
}
