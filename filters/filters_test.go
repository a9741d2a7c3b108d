package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfedit/ir/raw"
)

func TestFlateDecode(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	var comp bytes.Buffer
	w, _ := flate.NewWriter(&comp, flate.BestSpeed)
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	w.Write([]byte{1, 10, 12, 20})
	w.Close()

	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(3))

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), comp.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	input := []byte("hello hello hello")
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	dec := NewLZWDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLZWDecodeWithPredictor(t *testing.T) {
	// Single PNG row with filter None: [0,1,2,3]
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	w.Write([]byte{0, 1, 2, 3})
	w.Close()

	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(3))

	dec := NewLZWDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, []byte{1, 2, 3}) {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	dec := NewRunLengthDecoder()
	out, err := dec.Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	dec := NewASCII85Decoder()
	out, err := dec.Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	dec := NewASCIIHexDecoder()
	out, err := dec.Decode(context.Background(), []byte("68656c6c6f20776f726c64>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestUnknownFilter(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	_, err := p.Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	if !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("expected ErrUnknownFilter, got %v", err)
	}
}

func TestPipelineChainAndAbbreviations(t *testing.T) {
	packed, err := FlateEncode([]byte("BT (Hi) Tj ET"), flate.BestCompression)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hexed := []byte(hexString(packed) + ">")
	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), hexed, []string{"AHx", "Fl"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "BT (Hi) Tj ET" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineSizeLimit(t *testing.T) {
	packed, _ := FlateEncode(bytes.Repeat([]byte("a"), 4096), flate.DefaultCompression)
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 1024})
	if _, err := p.Decode(context.Background(), packed, []string{"FlateDecode"}, nil); err == nil {
		t.Fatalf("expected size limit error")
	}
}

func TestPipelineCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewDefaultPipeline(Limits{})
	if _, err := p.Decode(ctx, []byte("00>"), []string{"ASCIIHexDecode"}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDecodeStreamUsesDictionary(t *testing.T) {
	packed, _ := FlateEncode([]byte("q Q"), flate.BestSpeed)
	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.NameLiteral("FlateDecode")))
	p := NewDefaultPipeline(Limits{})
	out, err := p.DecodeStream(context.Background(), raw.Direct, raw.NewStream(dict, packed))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "q Q" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeTruncatedKeepsPrefix(t *testing.T) {
	packed, _ := FlateEncode(bytes.Repeat([]byte("0123456789"), 200), flate.BestSpeed)
	out, err := NewFlateDecoder().Decode(context.Background(), packed[:len(packed)-4], nil)
	if err != nil {
		t.Fatalf("expected truncated checksum to be tolerated, got %v", err)
	}
	if len(out) != 2000 {
		t.Fatalf("expected full payload before checksum, got %d bytes", len(out))
	}
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0x0f])
	}
	return string(out)
}
