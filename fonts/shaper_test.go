package fonts

import (
	"testing"

	"github.com/go-text/typesetting/language"
)

func TestDetectScript(t *testing.T) {
	tests := []struct {
		text string
		want language.Script
	}{
		{"", language.Latin},
		{"12345", language.Latin},
		{"Hello", language.Latin},
		{"Привет", language.Cyrillic},
		{"שלום world", language.Latin},
		{"שלום עולם hi", language.Hebrew},
		{"مرحبا", language.Arabic},
		{"漢字", language.Han},
	}
	for _, tt := range tests {
		if got := DetectScript([]rune(tt.text)); got != tt.want {
			t.Errorf("DetectScript(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsRightToLeft(t *testing.T) {
	if IsRightToLeft("abc") {
		t.Error("latin text reported as RTL")
	}
	if !IsRightToLeft("مرحبا بالعالم") {
		t.Error("arabic text not reported as RTL")
	}
}

func TestMeasurerAdvance(t *testing.T) {
	r := NewResolver(nil)
	f, err := r.Resolve("go", false, false)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMeasurer()

	w1, err := m.Advance(f, "Hello")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if w1 <= 0 {
		t.Fatalf("Advance(Hello) = %v", w1)
	}
	w2, _ := m.Advance(f, "Hello world")
	if w2 <= w1 {
		t.Errorf("longer text not wider: %v <= %v", w2, w1)
	}
	if cached, _ := m.Advance(f, "Hello"); cached != w1 {
		t.Errorf("cached advance %v != %v", cached, w1)
	}

	size12, _ := m.Width(f, "Hello", 12)
	size24, _ := m.Width(f, "Hello", 24)
	if size24 <= size12 || size12 != w1*12/1000 {
		t.Errorf("Width scaling wrong: 12pt=%v 24pt=%v advance=%v", size12, size24, w1)
	}

	mono, _ := r.Resolve("monospace", false, false)
	a, _ := m.Advance(mono, "iii")
	b, _ := m.Advance(mono, "WWW")
	if a != b {
		t.Errorf("monospace advances differ: %v vs %v", a, b)
	}
}

func TestMeasurerEmpty(t *testing.T) {
	m := NewMeasurer()
	if w, err := m.Advance(nil, "x"); w != 0 || err != nil {
		t.Errorf("Advance(nil) = %v, %v", w, err)
	}
	glyphs, err := m.Shape(&Font{Name: "x"}, "abc")
	if glyphs != nil || err != nil {
		t.Errorf("Shape without program = %v, %v", glyphs, err)
	}
}

func TestStandardWidths(t *testing.T) {
	widths := StandardWidths(NewResolver(nil), NewMeasurer())
	w := widths("Helvetica", "W")
	if w <= 0 || w >= 1500 {
		t.Fatalf("Helvetica W = %v", w)
	}
	if ci, cw := widths("Courier", "i"), widths("Courier", "W"); ci != cw {
		t.Errorf("Courier widths differ: i=%v W=%v", ci, cw)
	}
	if narrow := widths("Helvetica", "i"); narrow >= w {
		t.Errorf("i (%v) not narrower than W (%v)", narrow, w)
	}
}
