package document

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/richinsley/comfycanvas/geometry"
	"github.com/richinsley/comfycanvas/orchestrator"
	"github.com/stretchr/testify/require"
)

func writeLayer(t *testing.T, dir, name string, w, h int, c color.NRGBA) string {
	t.Helper()
	path := filepath.Join(dir, name+".png")
	require.NoError(t, imaging.Save(imaging.New(w, h, c), path))
	return path
}

func testCanvas(t *testing.T) *Canvas {
	t.Helper()
	dir := t.TempDir()
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}
	c, err := NewCanvas([]Layer{
		{ID: "rect1", Path: writeLayer(t, dir, "rect1", 40, 20, red), X: 10, Y: 10},
		{ID: "rect2", Path: writeLayer(t, dir, "rect2", 20, 30, blue), X: 40, Y: 20},
		{ID: "blob__mask", Path: writeLayer(t, dir, "blob", 5, 5, red), X: 0, Y: 0},
	})
	require.NoError(t, err)
	return c
}

func TestParseLayer(t *testing.T) {
	for input, want := range map[string]Layer{
		"art/rect1.png":              {ID: "rect1", Path: "art/rect1.png"},
		"hero=art/rect1.png":         {ID: "hero", Path: "art/rect1.png"},
		"hero__mask=mask.png@12,4.5": {ID: "hero__mask", Path: "mask.png", X: 12, Y: 4.5},
		"sky.png@ 0 , 100":           {ID: "sky", Path: "sky.png", Y: 100},
	} {
		got, err := ParseLayer(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	for _, bad := range []string{"=x.png", "a.png@1", "a.png@x,1", "id="} {
		_, err := ParseLayer(bad)
		require.Error(t, err, bad)
	}
}

func TestSelectionBoundingBox(t *testing.T) {
	c := testCanvas(t)

	_, err := c.SelectionBoundingBox()
	require.ErrorIs(t, err, ErrEmptySelection)

	require.ErrorIs(t, c.Select("nope"), ErrUnknownObject)

	require.NoError(t, c.Select("rect1", "rect2"))
	box, err := c.SelectionBoundingBox()
	require.NoError(t, err)
	require.Equal(t, geometry.Rect{Left: 10, Top: 10, Width: 50, Height: 40}, box)

	c.SelectAll()
	require.Equal(t, []string{"rect1", "rect2", "blob__mask"}, c.SelectedIDs())
}

func TestExportToRaster(t *testing.T) {
	c := testCanvas(t)
	dest := filepath.Join(t.TempDir(), "image_input_image.png")
	require.NoError(t, c.ExportToRaster(context.Background(), []string{"rect1", "rect2"}, dest))

	img, err := imaging.Open(dest)
	require.NoError(t, err)
	require.Equal(t, image.Pt(50, 40), img.Bounds().Size())

	at := func(x, y int) color.NRGBA {
		return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	}
	require.Equal(t, color.NRGBA{255, 0, 0, 255}, at(0, 0))
	// rect2 is drawn over rect1
	require.Equal(t, color.NRGBA{0, 0, 255, 255}, at(35, 15))
	// outside both layers
	require.Equal(t, uint8(0), at(0, 39).A)
}

func TestWriteSVG(t *testing.T) {
	c := testCanvas(t)
	var png bytes.Buffer
	require.NoError(t, imaging.Encode(&png, imaging.New(8, 8, color.NRGBA{0, 255, 0, 255}), imaging.PNG))

	meta := orchestrator.Provenance{
		PositivePrompt: "a red barn",
		NegativePrompt: "text",
		CFG:            7,
		Denoise:        0.75,
		Seed:           1234,
		Steps:          20,
		WorkflowPath:   "img2img.json",
		ServerURL:      "http://127.0.0.1:8188",
		PromptID:       "p1",
	}
	rect := geometry.Rect{Left: 100, Top: 10, Width: 50, Height: 40}
	require.NoError(t, c.InsertRaster(context.Background(), png.Bytes(), rect, meta))
	require.Len(t, c.Generated(), 1)

	var out bytes.Buffer
	require.NoError(t, c.WriteSVG(&out))
	svg := out.String()
	require.True(t, strings.HasPrefix(svg, "<?xml"))
	require.Contains(t, svg, `xmlns:inkscape="http://www.inkscape.org/namespaces/inkscape"`)
	require.Contains(t, svg, `width="150" height="50"`)

	var doc struct {
		Layers []struct {
			Label  string `xml:"label,attr"`
			Images []struct {
				ID       string `xml:"id,attr"`
				X        string `xml:"x,attr"`
				Width    string `xml:"width,attr"`
				Href     string `xml:"href,attr"`
				Label    string `xml:"label,attr"`
				Metadata string `xml:"custom_metadata,attr"`
			} `xml:"image"`
		} `xml:"g"`
	}
	require.NoError(t, xml.Unmarshal(out.Bytes(), &doc))
	require.Len(t, doc.Layers, 2)
	require.Len(t, doc.Layers[0].Images, 3)

	gen := doc.Layers[1].Images[0]
	require.Equal(t, "generated1", gen.ID)
	require.Equal(t, "100", gen.X)
	require.Equal(t, "50", gen.Width)
	require.Equal(t, "Generated Image: a red barn", gen.Label)
	require.True(t, strings.HasPrefix(gen.Href, "data:image/png;base64,"))

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(gen.Metadata), &got))
	require.Equal(t, "a red barn", got["positive_prompt"])
	require.Equal(t, float64(1234), got["seed"])
	require.Equal(t, "img2img.json", got["workflow_json_path"])
	require.Equal(t, "http://127.0.0.1:8188", got["api_url"])
}
