package coords

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestDisplaySpaceRoundTrip(t *testing.T) {
	tests := []struct {
		doc  DocPoint
		h    float64
		want DisplayPoint
	}{
		{DocPoint{72, 700}, 792, DisplayPoint{72, 92}},
		{DocPoint{0, 0}, 792, DisplayPoint{0, 792}},
		{DocPoint{10.5, 842}, 842, DisplayPoint{10.5, 0}},
		{DocPoint{-3, 900}, 612, DisplayPoint{-3, -288}},
	}
	for _, tt := range tests {
		got := ToDisplaySpace(tt.doc, tt.h)
		if diff := cmp.Diff(tt.want, got, approx); diff != "" {
			t.Errorf("ToDisplaySpace(%v) (-want +got):\n%s", tt.doc, diff)
		}
		if back := ToDocumentSpace(got, tt.h); back != tt.doc {
			t.Errorf("round trip %v -> %v -> %v", tt.doc, got, back)
		}
	}
}

func TestRectRoundTrip(t *testing.T) {
	r := DocRect{X: 72, Y: 690, Width: 100, Height: 12}
	d := RectToDisplaySpace(r, 792)
	if diff := cmp.Diff(DisplayRect{X: 72, Y: 90, Width: 100, Height: 12}, d, approx); diff != "" {
		t.Errorf("display rect (-want +got):\n%s", diff)
	}
	if back := RectToDocumentSpace(d, 792); back != r {
		t.Errorf("round trip got %v", back)
	}
}

func TestMultiplyOrder(t *testing.T) {
	// scale then translate
	m := Scale(2, 2).Multiply(Translate(10, 0))
	got := m.Transform(Point{1, 1})
	if diff := cmp.Diff(Point{12, 2}, got, approx); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestRotate(t *testing.T) {
	got := Rotate(math.Pi / 2).Transform(Point{1, 0})
	if diff := cmp.Diff(Point{0, 1}, got, approx); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestInverse(t *testing.T) {
	m := Scale(2, 3).Multiply(Rotate(0.3)).Multiply(Translate(5, -7))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("inverse: %v", err)
	}
	if diff := cmp.Diff(Identity(), m.Multiply(inv), approx); diff != "" {
		t.Errorf("m*inv (-want +got):\n%s", diff)
	}
	p := Point{3, 4}
	if diff := cmp.Diff(p, inv.Transform(m.Transform(p)), approx); diff != "" {
		t.Errorf("point round trip (-want +got):\n%s", diff)
	}
}

func TestInverseSingular(t *testing.T) {
	for _, m := range []Matrix{{0, 0, 0, 0, 1, 1}, {1, 2, 2, 4, 0, 0}, {1e-6, 0, 0, 1e-5, 0, 0}} {
		if _, err := m.Inverse(); !errors.Is(err, ErrSingular) {
			t.Errorf("%v: expected ErrSingular, got %v", m, err)
		}
	}
}

func TestTransformBoundingBox(t *testing.T) {
	got := TransformBoundingBox(0, 0, 10, 20, Rotate(math.Pi/2).Multiply(Translate(100, 100)))
	want := Rect{X: 80, Y: 100, Width: 20, Height: 10}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDisplayRectContains(t *testing.T) {
	r := DisplayRect{X: 100, Y: 90, Width: 50, Height: 10}
	tests := []struct {
		p    DisplayPoint
		tol  float64
		want bool
	}{
		{DisplayPoint{125, 95}, 0, true},
		{DisplayPoint{100, 90}, 0, true},
		{DisplayPoint{150, 100}, 0, true},
		{DisplayPoint{155, 100}, 5, true},
		{DisplayPoint{155.1, 100}, 5, false},
		{DisplayPoint{125, 84}, 5, false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.p, tt.tol); got != tt.want {
			t.Errorf("Contains(%v, %v) = %v, want %v", tt.p, tt.tol, got, tt.want)
		}
	}
}

func TestDisplayRectOutset(t *testing.T) {
	r := DisplayRect{X: 100, Y: 90, Width: 50, Height: 10}
	tests := []struct {
		pad  float64
		want DisplayRect
	}{
		{0, r},
		{3, DisplayRect{X: 97, Y: 87, Width: 56, Height: 16}},
		{-2, DisplayRect{X: 102, Y: 92, Width: 46, Height: 6}},
	}
	for _, tt := range tests {
		got := r.Outset(tt.pad)
		if got != tt.want {
			t.Errorf("Outset(%v) = %+v, want %+v", tt.pad, got, tt.want)
		}
		if tt.pad >= 0 && !got.ContainsRect(r, 0) {
			t.Errorf("Outset(%v) does not contain the original", tt.pad)
		}
	}
}

func TestConvertUnits(t *testing.T) {
	tests := []struct {
		v        float64
		from, to Unit
		dpi      float64
		want     float64
	}{
		{1, UnitInch, UnitPoint, 0, 72},
		{72, UnitPoint, UnitInch, 0, 1},
		{2.54, UnitCM, UnitInch, 0, 1},
		{25.4, UnitMM, UnitPoint, 0, 72},
		{300, UnitPixel, UnitInch, 300, 1},
		{144, UnitPixel, UnitPoint, 144, 72},
		{10, UnitPixel, UnitPoint, -1, 10},
	}
	for _, tt := range tests {
		got, err := ConvertUnits(tt.v, tt.from, tt.to, tt.dpi)
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ConvertUnits(%v %s -> %s @%v) = %v, want %v", tt.v, tt.from, tt.to, tt.dpi, got, tt.want)
		}
	}
	if _, err := ConvertUnits(1, "furlong", UnitPoint, 0); err == nil {
		t.Errorf("expected unknown unit error")
	}
}

func TestPageTransform(t *testing.T) {
	// 600x800 box offset by (10, 20)
	tests := []struct {
		rotate int
		in     Point
		want   Point
		w, h   float64
	}{
		{0, Point{10, 820}, Point{0, 800}, 600, 800},
		{90, Point{10, 820}, Point{800, 600}, 800, 600},
		{90, Point{10, 20}, Point{0, 600}, 800, 600},
		{180, Point{10, 20}, Point{600, 800}, 600, 800},
		{270, Point{10, 20}, Point{800, 0}, 800, 600},
		{-90, Point{10, 20}, Point{800, 0}, 800, 600},
		{45, Point{10, 20}, Point{0, 0}, 600, 800},
	}
	for _, tt := range tests {
		m, w, h := PageTransform(10, 20, 610, 820, tt.rotate)
		got := m.Transform(tt.in)
		if math.Abs(got.X-tt.want.X) > 1e-9 || math.Abs(got.Y-tt.want.Y) > 1e-9 {
			t.Errorf("rotate %d: %v -> %v, want %v", tt.rotate, tt.in, got, tt.want)
		}
		if w != tt.w || h != tt.h {
			t.Errorf("rotate %d: size %vx%v, want %vx%v", tt.rotate, w, h, tt.w, tt.h)
		}
	}
}
