// Package render turns class rasters into PNG previews using a palette of
// class colors.
package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	hsluv "github.com/hsluv/hsluv-go"
	"github.com/rotisserie/eris"

	"github.com/veldscape/landcover-cli/internal/raster"
)

// Palette maps class codes to display colors. Codes without an entry get a
// deterministic generated color so unknown classes are still visible.
type Palette struct {
	colors map[uint8]color.NRGBA
}

// LoadPalette reads a TOML palette file: a [colors] table mapping class
// codes to "#rrggbb" hex strings.
//
//	[colors]
//	44 = "#0064c8"
//	41 = "#96c864"
func LoadPalette(path string) (*Palette, error) {
	var doc struct {
		Colors map[string]string `toml:"colors"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, eris.Wrapf(err, "render: parse palette %s", path)
	}
	return PaletteFromStrings(doc.Colors)
}

// PaletteFromStrings builds a palette from code-string to hex-color pairs.
func PaletteFromStrings(entries map[string]string) (*Palette, error) {
	p := &Palette{colors: make(map[uint8]color.NRGBA, len(entries))}
	for key, hex := range entries {
		code, err := strconv.ParseUint(strings.TrimSpace(key), 10, 8)
		if err != nil {
			return nil, eris.Errorf("render: palette key %q is not a class code", key)
		}
		c, err := parseHex(hex)
		if err != nil {
			return nil, eris.Wrapf(err, "render: palette entry %q", key)
		}
		p.colors[uint8(code)] = c
	}
	return p, nil
}

// Color returns the display color for a class code. Palette entries win;
// anything else gets a generated color spread around the hue circle by the
// golden angle, so neighboring codes stay distinguishable.
func (p *Palette) Color(code uint8) color.NRGBA {
	if p != nil {
		if c, ok := p.colors[code]; ok {
			return c
		}
	}
	h := math.Mod(float64(code)*137.508, 360)
	r, g, b := hsluv.HsluvToRGB(h, 70, 60)
	return color.NRGBA{
		R: uint8(r*255 + 0.5),
		G: uint8(g*255 + 0.5),
		B: uint8(b*255 + 0.5),
		A: 255,
	}
}

// Len returns the number of explicit palette entries.
func (p *Palette) Len() int {
	if p == nil {
		return 0
	}
	return len(p.colors)
}

// Image renders a class grid. No-data cells come out fully transparent.
func Image(g *raster.Grid[uint8], p *Palette) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Box.Width, g.Box.Height))

	var lookup [256]color.NRGBA
	var seen [256]bool

	for row := 0; row < g.Box.Height; row++ {
		for col := 0; col < g.Box.Width; col++ {
			v := g.At(col, row)
			if v == raster.NoData {
				continue
			}
			if !seen[v] {
				lookup[v] = p.Color(v)
				seen[v] = true
			}
			img.SetNRGBA(col, row, lookup[v])
		}
	}
	return img
}

// WritePNG renders and encodes a class grid.
func WritePNG(w io.Writer, g *raster.Grid[uint8], p *Palette) error {
	return eris.Wrap(png.Encode(w, Image(g, p)), "render: encode png")
}

// SavePNG renders a class grid to a PNG file.
func SavePNG(path string, g *raster.Grid[uint8], p *Palette) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "render: create png")
	}
	defer f.Close()

	return WritePNG(f, g, p)
}

func parseHex(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.NRGBA{}, eris.Errorf("color %q must be #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, eris.Errorf("color %q must be #rrggbb", s)
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}, nil
}
