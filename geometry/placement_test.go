package geometry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGridPlace(t *testing.T) {
	base := Rect{Left: 10, Top: 20, Width: 100, Height: 50}

	t.Run("no gap", func(t *testing.T) {
		g := Grid{Columns: 4}
		col, row := g.Cell(5)
		require.Equal(t, 1, col)
		require.Equal(t, 1, row)
		require.Equal(t, Rect{Left: 110, Top: 70, Width: 100, Height: 50}, g.Place(base, 5))
	})

	t.Run("first cell is base", func(t *testing.T) {
		g := Grid{Columns: 3, GapPercent: 25}
		require.Equal(t, base, g.Place(base, 0))
	})

	t.Run("proportional gap", func(t *testing.T) {
		g := Grid{Columns: 2, GapPercent: 10}
		r := g.Place(base, 3)
		require.InDelta(t, 10+100*1.1, r.Left, 1e-9)
		require.InDelta(t, 20+50*1.1, r.Top, 1e-9)
	})

	t.Run("zero columns behaves as a single column", func(t *testing.T) {
		g := Grid{}
		r := g.Place(base, 2)
		require.Equal(t, base.Left, r.Left)
		require.Equal(t, base.Top+2*base.Height, r.Top)
	})
}
