package document

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/richinsley/comfycanvas/geometry"
)

const (
	svgNS      = "http://www.w3.org/2000/svg"
	xlinkNS    = "http://www.w3.org/1999/xlink"
	inkscapeNS = "http://www.inkscape.org/namespaces/inkscape"
)

type svgImage struct {
	XMLName  xml.Name `xml:"image"`
	ID       string   `xml:"id,attr,omitempty"`
	X        string   `xml:"x,attr"`
	Y        string   `xml:"y,attr"`
	Width    string   `xml:"width,attr"`
	Height   string   `xml:"height,attr"`
	Href     string   `xml:"xlink:href,attr"`
	Label    string   `xml:"inkscape:label,attr,omitempty"`
	Metadata string   `xml:"inkscape:custom_metadata,attr,omitempty"`
}

type svgLayer struct {
	XMLName   xml.Name   `xml:"g"`
	ID        string     `xml:"id,attr"`
	GroupMode string     `xml:"inkscape:groupmode,attr"`
	Label     string     `xml:"inkscape:label,attr"`
	Images    []svgImage `xml:"image"`
}

type svgRoot struct {
	XMLName  xml.Name   `xml:"svg"`
	NS       string     `xml:"xmlns,attr"`
	XLink    string     `xml:"xmlns:xlink,attr"`
	Inkscape string     `xml:"xmlns:inkscape,attr"`
	Width    string     `xml:"width,attr"`
	Height   string     `xml:"height,attr"`
	ViewBox  string     `xml:"viewBox,attr"`
	Layers   []svgLayer `xml:"g"`
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func dataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func imageElement(r geometry.Rect) svgImage {
	return svgImage{X: num(r.Left), Y: num(r.Top), Width: num(r.Width), Height: num(r.Height)}
}

// WriteSVG writes the source layers and every generated raster as an SVG
// document. Generated rasters carry an inkscape:label and their provenance
// as JSON in inkscape:custom_metadata.
func (c *Canvas) WriteSVG(w io.Writer) error {
	sources := svgLayer{ID: "layer1", GroupMode: "layer", Label: "Sources"}
	var extent geometry.Rect
	grow := func(r geometry.Rect) {
		extent.Width = math.Max(extent.Width, r.Left+r.Width)
		extent.Height = math.Max(extent.Height, r.Top+r.Height)
	}

	for _, id := range c.order {
		o := c.objects[id]
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, o.img, imaging.PNG); err != nil {
			return fmt.Errorf("encoding layer %s: %w", id, err)
		}
		el := imageElement(o.rect())
		el.ID = id
		el.Href = dataURI(buf.Bytes())
		sources.Images = append(sources.Images, el)
		grow(o.rect())
	}

	results := svgLayer{ID: "layer2", GroupMode: "layer", Label: "Generated"}
	for i, g := range c.generated {
		meta, err := json.Marshal(g.Meta)
		if err != nil {
			return err
		}
		el := imageElement(g.Rect)
		el.ID = "generated" + strconv.Itoa(i+1)
		el.Href = dataURI(g.PNG)
		el.Label = g.Meta.Label()
		el.Metadata = string(meta)
		results.Images = append(results.Images, el)
		grow(g.Rect)
	}

	root := svgRoot{
		NS:       svgNS,
		XLink:    xlinkNS,
		Inkscape: inkscapeNS,
		Width:    num(extent.Width),
		Height:   num(extent.Height),
		ViewBox:  fmt.Sprintf("0 0 %s %s", num(extent.Width), num(extent.Height)),
		Layers:   []svgLayer{sources, results},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return err
	}
	return enc.Close()
}

func (c *Canvas) SaveSVG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.WriteSVG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
