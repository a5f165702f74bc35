// Package document is a file based stand-in for a vector editor: a set of
// positioned PNG layers, a selection over them, and an SVG output that
// receives the generated rasters.
package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/richinsley/comfycanvas/geometry"
	"github.com/richinsley/comfycanvas/orchestrator"
)

var (
	ErrEmptySelection = errors.New("selection is empty")
	ErrUnknownObject  = errors.New("unknown object")
)

// Layer is a PNG file placed at X, Y in document units (pixels).
type Layer struct {
	ID   string
	Path string
	X    float64
	Y    float64
}

// ParseLayer parses "path", "id=path" or either of those followed by
// "@x,y". Without an explicit id the file name without extension is used.
func ParseLayer(s string) (Layer, error) {
	var l Layer
	if at := strings.LastIndex(s, "@"); at >= 0 {
		x, y, ok := strings.Cut(s[at+1:], ",")
		if !ok {
			return l, fmt.Errorf("layer %q: position must be x,y", s)
		}
		var err error
		if l.X, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
			return l, fmt.Errorf("layer %q: %w", s, err)
		}
		if l.Y, err = strconv.ParseFloat(strings.TrimSpace(y), 64); err != nil {
			return l, fmt.Errorf("layer %q: %w", s, err)
		}
		s = s[:at]
	}
	if id, path, ok := strings.Cut(s, "="); ok {
		l.ID, l.Path = id, path
	} else {
		l.Path = s
		l.ID = strings.TrimSuffix(filepath.Base(s), filepath.Ext(s))
	}
	if l.ID == "" || l.Path == "" {
		return l, fmt.Errorf("layer %q: id and path are required", s)
	}
	return l, nil
}

type object struct {
	Layer
	img image.Image
}

func (o object) rect() geometry.Rect {
	b := o.img.Bounds()
	return geometry.Rect{Left: o.X, Top: o.Y, Width: float64(b.Dx()), Height: float64(b.Dy())}
}

// Generated is a raster inserted by a run.
type Generated struct {
	PNG  []byte
	Rect geometry.Rect
	Meta orchestrator.Provenance
}

// Canvas implements orchestrator.Document.
type Canvas struct {
	objects   map[string]object
	order     []string
	selected  []string
	generated []Generated
}

var _ orchestrator.Document = (*Canvas)(nil)

// NewCanvas loads every layer. Ids must be unique.
func NewCanvas(layers []Layer) (*Canvas, error) {
	c := &Canvas{objects: make(map[string]object, len(layers))}
	for _, l := range layers {
		if _, dup := c.objects[l.ID]; dup {
			return nil, fmt.Errorf("duplicate layer id %q", l.ID)
		}
		img, err := imaging.Open(l.Path)
		if err != nil {
			return nil, fmt.Errorf("loading layer %s: %w", l.ID, err)
		}
		c.objects[l.ID] = object{Layer: l, img: img}
		c.order = append(c.order, l.ID)
	}
	return c, nil
}

// Select replaces the selection. An empty ids selects nothing.
func (c *Canvas) Select(ids ...string) error {
	for _, id := range ids {
		if _, ok := c.objects[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownObject, id)
		}
	}
	c.selected = append([]string(nil), ids...)
	return nil
}

// SelectAll selects every layer in load order.
func (c *Canvas) SelectAll() {
	c.selected = append([]string(nil), c.order...)
}

func (c *Canvas) SelectedIDs() []string {
	return append([]string(nil), c.selected...)
}

func (c *Canvas) Generated() []Generated {
	return c.generated
}

func (c *Canvas) bounds(ids []string) (geometry.Rect, error) {
	if len(ids) == 0 {
		return geometry.Rect{}, ErrEmptySelection
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, id := range ids {
		o, ok := c.objects[id]
		if !ok {
			return geometry.Rect{}, fmt.Errorf("%w: %s", ErrUnknownObject, id)
		}
		r := o.rect()
		minX, minY = math.Min(minX, r.Left), math.Min(minY, r.Top)
		maxX, maxY = math.Max(maxX, r.Left+r.Width), math.Max(maxY, r.Top+r.Height)
	}
	return geometry.Rect{Left: minX, Top: minY, Width: maxX - minX, Height: maxY - minY}, nil
}

func (c *Canvas) SelectionBoundingBox() (geometry.Rect, error) {
	return c.bounds(c.selected)
}

// ExportToRaster composites the given objects, in layer order, onto a
// transparent raster the size of their bounding box and saves it as PNG.
func (c *Canvas) ExportToRaster(ctx context.Context, ids []string, dest string) error {
	box, err := c.bounds(ids)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	out := imaging.New(int(math.Ceil(box.Width)), int(math.Ceil(box.Height)), color.NRGBA{0, 0, 0, 0})
	for _, id := range c.order {
		if !want[id] {
			continue
		}
		o := c.objects[id]
		pos := image.Pt(int(o.X-box.Left), int(o.Y-box.Top))
		out = imaging.Overlay(out, o.img, pos, 1.0)
	}
	slog.Debug("exported objects", "ids", ids, "width", out.Bounds().Dx(), "height", out.Bounds().Dy(), "dest", dest)
	return imaging.Save(out, dest)
}

// InsertRaster records a generated raster for the SVG output.
func (c *Canvas) InsertRaster(ctx context.Context, png []byte, rect geometry.Rect, meta orchestrator.Provenance) error {
	c.generated = append(c.generated, Generated{PNG: png, Rect: rect, Meta: meta})
	return nil
}
