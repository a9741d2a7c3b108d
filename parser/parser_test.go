package parser

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfedit/recovery"
)

func samplePDF() []byte {
	return buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /MediaBox [0 0 612 792] /Rotate 90 /Resources << /Font << /F1 7 0 R >> >> >>",
		"<< /Type /Page /Parent 2 0 R /Contents [5 0 R 6 0 R] >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] /Rotate -90 /Contents 5 0 R >>",
		"<< /Length 16 >>\nstream\nBT (one) Tj ET Q\nendstream",
		"<< /Length 14 >>\nstream\nBT (two) Tj ET\nendstream",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
}

func TestOpenResolvesPageTree(t *testing.T) {
	doc, err := Open(context.Background(), samplePDF(), Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc.Header.Version != "1.7" || doc.Degraded {
		t.Errorf("header %q degraded %v", doc.Header.Version, doc.Degraded)
	}
	if len(doc.Pages) != 2 {
		t.Fatalf("pages = %d", len(doc.Pages))
	}
	first, second := doc.Pages[0], doc.Pages[1]
	if diff := cmp.Diff(Box{0, 0, 612, 792}, first.MediaBox); diff != "" {
		t.Errorf("inherited media box (-want +got):\n%s", diff)
	}
	if first.Rotate != 90 || second.Rotate != 270 {
		t.Errorf("rotation = %d, %d", first.Rotate, second.Rotate)
	}
	if second.MediaBox.Width() != 200 || second.CropBox != second.MediaBox {
		t.Errorf("second page boxes = %+v %+v", second.MediaBox, second.CropBox)
	}
	if _, ok := first.Resources.Get("Font"); !ok {
		t.Error("inherited resources missing")
	}
	if first.Number != 1 || second.Number != 2 || first.Ref.Num != 3 {
		t.Errorf("numbering = %d %d ref %v", first.Number, second.Number, first.Ref)
	}

	content, err := doc.Contents(context.Background(), first)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(content, []byte("Q\nBT (two)")) {
		t.Errorf("streams not joined: %q", content)
	}
	if _, err := doc.Page(3); err == nil {
		t.Error("page 3 should be out of range")
	}
}

func TestOpenMissingHeader(t *testing.T) {
	_, err := Open(context.Background(), []byte("not a pdf"), Config{})
	var serr *StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
	if Retryable(err) {
		t.Error("structural errors are not retryable")
	}
}

func TestOpenWithoutXRef(t *testing.T) {
	data := samplePDF()
	cut := bytes.LastIndex(data, []byte("xref"))
	cut = bytes.LastIndex(data[:cut], []byte("xref"))
	broken := append([]byte(nil), data[:cut]...)
	broken = append(broken, []byte("trailer\n<< /Size 8 /Root 1 0 R >>\n%%EOF\n")...)

	if _, err := Open(context.Background(), broken, Config{Recovery: recovery.NewStrictStrategy()}); err == nil {
		t.Fatal("strict loading should fail without an xref table")
	}

	doc, err := Open(context.Background(), broken, Config{Recovery: recovery.NewLenientStrategy()})
	if err != nil {
		t.Fatalf("lenient Open: %v", err)
	}
	if !doc.Degraded || len(doc.Warnings) == 0 {
		t.Errorf("expected degraded load, warnings %v", doc.Warnings)
	}
	if len(doc.Pages) != 2 {
		t.Errorf("pages after rebuild = %d", len(doc.Pages))
	}
}

func TestOpenEncrypted(t *testing.T) {
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
		"<< /Filter /Standard /V 2 /R 3 >>",
	)
	data = bytes.Replace(data, []byte("/Root 1 0 R"), []byte("/Root 1 0 R /Encrypt 3 0 R"), 1)
	_, err := Open(context.Background(), data, Config{})
	var eerr *EncryptedError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected EncryptedError, got %v", err)
	}
	if eerr.Filter != "Standard" || eerr.Version != 2 {
		t.Errorf("encrypt info = %+v", eerr)
	}
	if !Retryable(err) {
		t.Error("encrypted documents are retryable after decryption")
	}
}

func TestOpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Open(ctx, samplePDF(), Config{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
