package builder

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/parser"
)

func extract(t *testing.T, doc *parser.Document, n int) []contentstream.Glyph {
	t.Helper()
	ctx := context.Background()
	page, err := doc.Page(n)
	if err != nil {
		t.Fatal(err)
	}
	content, err := doc.Contents(ctx, page)
	if err != nil {
		t.Fatal(err)
	}
	in := contentstream.NewInterpreter(contentstream.Config{
		Resolver: doc,
		Load:     func(s *raw.StreamObj) ([]byte, error) { return doc.DecodeStream(ctx, s) },
	})
	glyphs, err := in.Run(ctx, content, page.Resources, coords.Identity())
	if err != nil {
		t.Fatal(err)
	}
	return glyphs
}

func text(gs []contentstream.Glyph) string {
	var b strings.Builder
	for _, g := range gs {
		b.WriteString(g.Text)
	}
	return b.String()
}

func TestBuilder_DrawTextRoundTrips(t *testing.T) {
	data, err := NewBuilder().
		SetInfo("Fixture", "Tests").
		NewPage(612, 792).
		DrawText("Hello", 72, 700, TextOptions{FontSize: 16, Color: contentstream.Color{R: 1}}).
		DrawText("Café", 72, 650, TextOptions{Font: "Times-Bold"}).
		DrawRectangle(10, 10, 50, 50, RectOptions{Fill: true, FillColor: contentstream.White}).
		DrawLine(0, 0, 100, 100, LineOptions{LineWidth: 2}).
		Finish().
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-1.7")) {
		t.Fatalf("missing header: %q", data[:10])
	}
	doc, err := parser.Open(context.Background(), data, parser.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(doc.Pages) != 1 || doc.Pages[0].MediaBox.Height() != 792 {
		t.Fatalf("pages = %+v", doc.Pages)
	}
	glyphs := extract(t, doc, 1)
	if got := text(glyphs); got != "HelloCafé" {
		t.Fatalf("text = %q", got)
	}
	if glyphs[0].Font != "Helvetica" || glyphs[0].Size != 16 || glyphs[0].Color != (contentstream.Color{R: 1}) {
		t.Errorf("first glyph = %+v", glyphs[0])
	}
	if glyphs[5].Font != "Times-Bold" || glyphs[5].Origin != (coords.Point{X: 72, Y: 650}) {
		t.Errorf("second line glyph = %+v", glyphs[5])
	}
}

func TestBuilder_EmbeddedFontAndForms(t *testing.T) {
	data, err := NewBuilder().
		RegisterTrueTypeFont("Go Regular", goregular.TTF).
		SetOptions(Options{Compression: 6, XRefStreams: true}).
		NewPage(300, 300).
		SetRotation(-90).
		DrawForm(100, 200, func(pb PageBuilder) {
			pb.DrawText("inside", 0, 0, TextOptions{Font: "Go Regular", FontSize: 10})
		}).
		DrawText("outside", 10, 10, TextOptions{Font: "Go Regular"}).
		Finish().
		NewPage(200, 100).
		Finish().
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	doc, err := parser.Open(context.Background(), data, parser.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc.XRef.Type() != "xref-stream" {
		t.Errorf("xref type = %s", doc.XRef.Type())
	}
	if len(doc.Pages) != 2 || doc.Pages[0].Rotate != 270 {
		t.Fatalf("pages = %d rotate = %d", len(doc.Pages), doc.Pages[0].Rotate)
	}
	glyphs := extract(t, doc, 1)
	if got := text(glyphs); got != "insideoutside" {
		t.Fatalf("text = %q", got)
	}
	if glyphs[0].Origin != (coords.Point{X: 100, Y: 200}) {
		t.Errorf("form origin = %v", glyphs[0].Origin)
	}
	if !strings.Contains(glyphs[0].Font, "+GoRegular") {
		t.Errorf("embedded font name = %q", glyphs[0].Font)
	}
	if glyphs[0].Advance <= 0 {
		t.Error("embedded font widths missing")
	}
	if len(extract(t, doc, 2)) != 0 {
		t.Error("empty page produced glyphs")
	}
}

func TestBuilder_Deterministic(t *testing.T) {
	build := func() []byte {
		data, err := NewBuilder().NewPage(100, 100).DrawText("same", 1, 2, TextOptions{}).Finish().Build()
		if err != nil {
			t.Fatal(err)
		}
		return data
	}
	if !bytes.Equal(build(), build()) {
		t.Error("identical input produced different files")
	}
}
