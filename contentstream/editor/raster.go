package editor

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/layout"
)

// RasterSurface draws edits onto an image of the page rendered elsewhere,
// for previews. Scale is pixels per point.
type RasterSurface struct {
	dst   draw.Image
	scale float64
	fonts map[string]*opentype.Font
}

func NewRasterSurface(dst draw.Image, scale float64) *RasterSurface {
	if scale <= 0 {
		scale = 1
	}
	return &RasterSurface{dst: dst, scale: scale, fonts: map[string]*opentype.Font{}}
}

func rgba(c contentstream.Color) color.RGBA {
	return color.RGBA{
		R: uint8(math.Round(c.R * 255)),
		G: uint8(math.Round(c.G * 255)),
		B: uint8(math.Round(c.B * 255)),
		A: 255,
	}
}

func (s *RasterSurface) pixels(r coords.DisplayRect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X*s.scale)), int(math.Floor(r.Y*s.scale)),
		int(math.Ceil(r.Right()*s.scale)), int(math.Ceil(r.Bottom()*s.scale)),
	)
}

func (s *RasterSurface) FillRect(r coords.DisplayRect, c contentstream.Color) error {
	draw.Draw(s.dst, s.pixels(r), image.NewUniform(rgba(c)), image.Point{}, draw.Src)
	return nil
}

func (s *RasterSurface) face(t Text) (xfont.Face, error) {
	if t.Font == nil || len(t.Font.Program) == 0 {
		return nil, fmt.Errorf("draw %q: no font program", t.Text)
	}
	f, ok := s.fonts[t.Font.Name]
	if !ok {
		var err error
		if f, err = opentype.Parse(t.Font.Program); err != nil {
			return nil, fmt.Errorf("parse %s: %w", t.Font.Name, err)
		}
		s.fonts[t.Font.Name] = f
	}
	return opentype.NewFace(f, &opentype.FaceOptions{Size: t.Size * s.scale, DPI: 72, Hinting: xfont.HintingNone})
}

func fix(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }

func (s *RasterSurface) DrawText(t Text) error {
	face, err := s.face(t)
	if err != nil {
		return err
	}
	defer face.Close()
	d := &xfont.Drawer{
		Dst:  s.dst,
		Src:  image.NewUniform(rgba(t.Color)),
		Face: face,
		Dot:  fixed.Point26_6{X: fix(t.Origin.X * s.scale), Y: fix(t.Origin.Y * s.scale)},
	}
	if t.Spacing == (layout.Spacing{}) {
		d.DrawString(t.Text)
		return nil
	}
	letter, word := fix(t.Spacing.Letter*s.scale), fix(t.Spacing.Word*s.scale)
	for _, r := range t.Text {
		d.DrawString(string(r))
		d.Dot.X += letter
		if r == ' ' {
			d.Dot.X += word
		}
	}
	return nil
}

func (s *RasterSurface) DrawLine(from, to coords.DisplayPoint, width float64, c contentstream.Color) error {
	src := image.NewUniform(rgba(c))
	half := math.Max(width*s.scale, 1) / 2
	dx, dy := (to.X-from.X)*s.scale, (to.Y-from.Y)*s.scale
	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if from.Y == to.Y || from.X == to.X || steps == 0 {
		x0, x1 := math.Min(from.X, to.X)*s.scale, math.Max(from.X, to.X)*s.scale
		y0, y1 := math.Min(from.Y, to.Y)*s.scale, math.Max(from.Y, to.Y)*s.scale
		r := image.Rect(int(math.Floor(x0-half)), int(math.Floor(y0-half)), int(math.Ceil(x1+half)), int(math.Ceil(y1+half)))
		draw.Draw(s.dst, r, src, image.Point{}, draw.Src)
		return nil
	}
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		x, y := from.X*s.scale+f*dx, from.Y*s.scale+f*dy
		r := image.Rect(int(math.Floor(x-half)), int(math.Floor(y-half)), int(math.Ceil(x+half)), int(math.Ceil(y+half)))
		draw.Draw(s.dst, r, src, image.Point{}, draw.Src)
	}
	return nil
}
