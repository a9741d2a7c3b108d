package fonts

import (
	"errors"
	"testing"
)

func TestResolveBuiltinFamilies(t *testing.T) {
	r := NewResolver(nil)
	tests := []struct {
		family       string
		bold, italic bool
		name         string
		standard     string
	}{
		{"", false, false, "GoRegular", "Helvetica"},
		{"Helvetica", true, false, "GoBold", "Helvetica-Bold"},
		{"serif", false, true, "GoItalic", "Times-Italic"},
		{"'Times New Roman'", true, true, "GoBoldItalic", "Times-BoldItalic"},
		{"Courier", false, false, "GoMono", "Courier"},
		{"monospace", true, true, "GoMonoBoldItalic", "Courier-BoldOblique"},
	}
	for _, tt := range tests {
		f, err := r.Resolve(tt.family, tt.bold, tt.italic)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.family, err)
		}
		if f.Name != tt.name || f.Standard != tt.standard || !f.Embedded {
			t.Errorf("Resolve(%q, %v, %v) = %s/%s embedded=%v, want %s/%s embedded",
				tt.family, tt.bold, tt.italic, f.Name, f.Standard, f.Embedded, tt.name, tt.standard)
		}
		if len(f.Program) == 0 {
			t.Errorf("Resolve(%q): empty program", tt.family)
		}
	}
}

func TestResolveUnknownFamilyFallsBack(t *testing.T) {
	r := NewResolver(nil)
	f, err := r.Resolve("Papyrus", true, false)
	var ee *EmbedError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EmbedError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("expected ErrUnknownFamily in chain, got %v", err)
	}
	if f == nil || f.Embedded || f.Standard != "Helvetica-Bold" {
		t.Fatalf("unexpected fallback font %+v", f)
	}
	if f.Family != "Papyrus" {
		t.Errorf("fallback family = %q", f.Family)
	}

	again, err2 := r.Resolve("papyrus", true, false)
	if again != f || !errors.Is(err2, ErrUnknownFamily) {
		t.Errorf("second resolve not served from cache")
	}
}

func TestRegisterCustomProgram(t *testing.T) {
	r := NewResolver(nil)
	r.Register("Broken", false, false, []byte("not a font"))
	f, err := r.Resolve("Broken", false, false)
	var ee *EmbedError
	if !errors.As(err, &ee) || ee.Family != "Broken" {
		t.Fatalf("expected EmbedError for Broken, got %v", err)
	}
	if f.Embedded {
		t.Errorf("broken program must not be embedded")
	}

	good, _ := r.Resolve("go", false, false)
	r.Register("Custom", false, false, good.Program)
	f, err = r.Resolve("custom", false, false)
	if err != nil {
		t.Fatalf("Resolve custom: %v", err)
	}
	if !f.Embedded || f.Name == "" {
		t.Errorf("custom font not embedded: %+v", f)
	}
}

func TestStandardFont(t *testing.T) {
	r := NewResolver(nil)
	f := r.Standard("courier", true, false)
	if f.Embedded || f.Standard != "Courier-Bold" || f.Family != "courier" {
		t.Errorf("Standard = %+v", f)
	}
	if f := r.Standard("unknown", false, false); f.Standard != "Helvetica" {
		t.Errorf("Standard(unknown) = %s", f.Standard)
	}
}

func TestClassifyBaseFont(t *testing.T) {
	tests := []struct {
		base         string
		family       string
		bold, italic bool
	}{
		{"Helvetica", "sans-serif", false, false},
		{"ABCDEF+Arial,BoldItalic", "sans-serif", true, true},
		{"Times-Roman", "serif", false, false},
		{"Times-BoldItalic", "serif", true, true},
		{"Courier-Oblique", "monospace", false, true},
		{"XYZABC+DejaVuSansMono-Bold", "monospace", true, false},
		{"NotoSerif-Black", "serif", true, false},
		{"NotoSans-Regular", "sans-serif", false, false},
	}
	for _, tt := range tests {
		family, bold, italic := ClassifyBaseFont(tt.base)
		if family != tt.family || bold != tt.bold || italic != tt.italic {
			t.Errorf("ClassifyBaseFont(%q) = %s %v %v, want %s %v %v",
				tt.base, family, bold, italic, tt.family, tt.bold, tt.italic)
		}
	}
}
