// Package geometry reconciles arbitrary rectangular selections with a
// generation server that only works on square canvases.
//
// A source raster is centered on a transparent square canvas before it is
// uploaded ([Pad]), and the generated result is cropped back to the region
// that corresponds to the original content ([Crop]). The same
// [CanvasGeometry] must be used for both directions.
package geometry

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// CanvasGeometry describes how a source raster sits on its square canvas.
type CanvasGeometry struct {
	SourceWidth  int
	SourceHeight int
	Side         int
	// OffsetX and OffsetY are the integer paste offsets (truncated halves).
	OffsetX int
	OffsetY int
	// Padded is false for geometry derived from a result image, in which
	// case no cropping takes place.
	Padded bool
}

// NewCanvasGeometry computes the square canvas for a source of size w x h.
func NewCanvasGeometry(w, h int) CanvasGeometry {
	side := max(w, h)
	return CanvasGeometry{
		SourceWidth:  w,
		SourceHeight: h,
		Side:         side,
		OffsetX:      (side - w) / 2,
		OffsetY:      (side - h) / 2,
		Padded:       true,
	}
}

// ResultGeometry is used when no image was submitted: the canvas is
// derived from the result itself and offsets are zero.
func ResultGeometry(w, h int) CanvasGeometry {
	return CanvasGeometry{
		SourceWidth:  w,
		SourceHeight: h,
		Side:         max(w, h),
	}
}

// Embed returns the geometry of a secondary raster of size w x h placed on
// the same canvas as g, centered by its own dimensions. Offsets may be
// negative when the raster exceeds the canvas, in which case it is clipped.
func (g CanvasGeometry) Embed(w, h int) CanvasGeometry {
	return CanvasGeometry{
		SourceWidth:  w,
		SourceHeight: h,
		Side:         g.Side,
		OffsetX:      (g.Side - w) / 2,
		OffsetY:      (g.Side - h) / 2,
		Padded:       true,
	}
}

// ContentRect is the rectangle occupied by the source on the padded canvas.
func (g CanvasGeometry) ContentRect() image.Rectangle {
	return image.Rect(g.OffsetX, g.OffsetY, g.OffsetX+g.SourceWidth, g.OffsetY+g.SourceHeight)
}

// ScaleRatio relates a result of the given width back to the canvas side.
func (g CanvasGeometry) ScaleRatio(resultWidth int) float64 {
	if !g.Padded || g.Side == 0 {
		return 1.0
	}
	return float64(resultWidth) / float64(g.Side)
}

// CropRect returns the region of a result image (scaled by scale relative
// to the canvas) that holds the original content. Corners are truncated to
// integers.
func (g CanvasGeometry) CropRect(scale float64) image.Rectangle {
	offX := float64(g.Side-g.SourceWidth) / 2
	offY := float64(g.Side-g.SourceHeight) / 2
	if !g.Padded {
		offX, offY = 0, 0
	}
	return image.Rect(
		int(offX*scale),
		int(offY*scale),
		int((float64(g.Side)-offX)*scale),
		int((float64(g.Side)-offY)*scale),
	)
}

// Pad centers img on a fully transparent square canvas described by g.
// Pixels are copied without resampling.
func Pad(img image.Image, g CanvasGeometry) *image.NRGBA {
	canvas := imaging.New(g.Side, g.Side, color.NRGBA{0, 0, 0, 0})
	return imaging.Paste(canvas, img, image.Pt(g.OffsetX, g.OffsetY))
}

// Crop extracts the original content region from a generated result.
// The scale ratio is derived from the result's width.
func Crop(result image.Image, g CanvasGeometry) *image.NRGBA {
	b := result.Bounds()
	rect := g.CropRect(g.ScaleRatio(b.Dx())).Add(b.Min)
	return imaging.Crop(result, rect)
}
