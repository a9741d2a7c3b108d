package editor

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/layout"
)

func TestContentSurface(t *testing.T) {
	s, err := NewContentSurface(coords.Identity(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Empty() || s.Bytes() != nil {
		t.Fatal("new surface not empty")
	}
	eng := layout.NewEngine()
	f, _ := eng.Font(layout.Face{Family: "sans-serif"})

	s.FillRect(coords.DisplayRect{X: 10, Y: 20, Width: 30, Height: 40}, contentstream.White)
	s.DrawText(Text{Text: "Hi", Origin: coords.DisplayPoint{X: 12, Y: 50}, Font: f, Size: 12})
	s.DrawText(Text{Text: " there", Origin: coords.DisplayPoint{X: 24, Y: 50}, Font: f, Size: 12})
	s.DrawLine(coords.DisplayPoint{X: 12, Y: 52}, coords.DisplayPoint{X: 30, Y: 52}, 1, contentstream.Black)

	want := strings.Join([]string{
		"q",
		"1 1 1 rg",
		"10 40 30 40 re",
		"f",
		"0 0 0 rg",
		"BT",
		"/PdfEditF1 12 Tf",
		"1 0 0 1 12 50 Tm",
		"(Hi) Tj",
		"ET",
		"0 0 0 rg",
		"BT",
		"/PdfEditF1 12 Tf",
		"1 0 0 1 24 50 Tm",
		"( there) Tj",
		"ET",
		"0 0 0 RG",
		"1 w",
		"12 48 m",
		"30 48 l",
		"S",
		"Q",
	}, "\n")
	if diff := cmp.Diff(want, s.String()); diff != "" {
		t.Errorf("content (-want +got):\n%s", diff)
	}

	fonts := s.Fonts()
	if len(fonts) != 1 || fonts[0].Resource != "PdfEditF1" || fonts[0].Text != "Hi there" || fonts[0].Font != f {
		t.Errorf("fonts = %+v", fonts)
	}
	if s.Lossy() {
		t.Error("ASCII text reported lossy")
	}
	s.DrawText(Text{Text: "日本", Font: f, Size: 12})
	if !s.Lossy() {
		t.Error("CJK text not reported lossy")
	}
}

func TestContentSurfaceRotatedPage(t *testing.T) {
	m, w, h := coords.PageTransform(0, 0, 612, 792, 90)
	s, err := NewContentSurface(m, h)
	if err != nil {
		t.Fatal(err)
	}
	if w != 792 || h != 612 {
		t.Fatalf("displayed size %vx%v", w, h)
	}
	s.FillRect(coords.DisplayRect{X: 0, Y: 0, Width: 10, Height: 10}, contentstream.White)
	inv, _ := m.Inverse()
	if !strings.HasPrefix(s.String(), "q\n") || !strings.Contains(s.String(), formatCM(inv)) {
		t.Errorf("content missing inverse page transform:\n%s", s)
	}

	// on a page rotated 90 degrees the user space origin is displayed at
	// the top-left corner
	corner := inv.Transform(coords.Point{X: 0, Y: 612})
	if abs(corner.X) > 1e-9 || abs(corner.Y) > 1e-9 {
		t.Errorf("corner maps to %+v", corner)
	}
}

func formatCM(m coords.Matrix) string {
	var b contentstream.Builder
	b.Concat(m)
	return strings.TrimSpace(string(b.Bytes()))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestContentSurfaceSingular(t *testing.T) {
	if _, err := NewContentSurface(coords.Matrix{}, 100); err == nil {
		t.Error("singular page matrix accepted")
	}
}

func TestRecorderReplay(t *testing.T) {
	e := New(Config{})
	runs := invoiceRuns(e.Layout())
	rec := &Recorder{}
	_, err := e.Apply(context.Background(), rec, Request{Runs: runs, Mutations: []Mutation{{
		RunID: runs[0].ID, NewText: "Invoice #42", Format: Format{Underline: true},
	}}})
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var loaded Recorder
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatal(err)
	}
	if loaded.Commands[1].Text.Font != nil {
		t.Fatal("font program serialized")
	}
	if diff := cmp.Diff(rec.Commands[1].Text.Face, loaded.Commands[1].Text.Face); diff != "" {
		t.Errorf("face lost (-want +got):\n%s", diff)
	}

	direct, _ := NewContentSurface(coords.Identity(), pageHeight)
	if err := Replay(rec.Commands, direct, nil); err != nil {
		t.Fatal(err)
	}
	replayed, _ := NewContentSurface(coords.Identity(), pageHeight)
	if err := Replay(loaded.Commands, replayed, e.Layout()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(direct.String(), replayed.String()); diff != "" {
		t.Errorf("replayed content differs (-direct +replayed):\n%s", diff)
	}

	if err := Replay([]Command{{Kind: "blink"}}, replayed, nil); err == nil {
		t.Error("unknown command accepted")
	}
	if err := Replay(nil, nil, nil); err != ErrSurfaceUnavailable {
		t.Errorf("nil surface err = %v", err)
	}
}

func TestRasterSurface(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	s := NewRasterSurface(img, 2)

	s.FillRect(coords.DisplayRect{X: 10, Y: 10, Width: 20, Height: 10}, contentstream.White)
	if got := img.RGBAAt(21, 21); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("inside fill = %v", got)
	}
	if got := img.RGBAAt(19, 19); got.R != 0x80 {
		t.Errorf("outside fill = %v", got)
	}

	s.FillRect(coords.DisplayRect{X: 0, Y: 0, Width: 100, Height: 50}, contentstream.White)
	f, _ := layout.NewEngine().Font(layout.Face{Family: "sans-serif"})
	if err := s.DrawText(Text{Text: "Hello", Origin: coords.DisplayPoint{X: 5, Y: 30}, Font: f, Size: 16}); err != nil {
		t.Fatal(err)
	}
	dark := 0
	for y := 20; y < 62; y++ {
		for x := 10; x < 120; x++ {
			if img.RGBAAt(x, y).R < 128 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Error("no glyph pixels drawn")
	}

	s.DrawLine(coords.DisplayPoint{X: 5, Y: 40}, coords.DisplayPoint{X: 50, Y: 40}, 1, contentstream.Color{R: 1})
	if got := img.RGBAAt(40, 80); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("line pixel = %v", got)
	}

	if err := s.DrawText(Text{Text: "x", Size: 10}); err == nil {
		t.Error("text without font drawn")
	}
}
