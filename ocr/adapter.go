package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// InputOption adjusts an Input built by InputFromImage.
type InputOption func(*Input)

func WithLanguages(langs ...string) InputOption {
	return func(in *Input) {
		if len(langs) == 0 {
			in.Languages = nil
			return
		}
		in.Languages = append([]string(nil), langs...)
	}
}

func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// InputFromImage encodes a rendered page as PNG. The ID is derived from
// the page index so results can be matched back to pages.
func InputFromImage(img image.Image, pageIndex int, opts ...InputOption) (Input, error) {
	if img == nil {
		return Input{}, fmt.Errorf("page %d: no image", pageIndex)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Input{}, fmt.Errorf("encode page image: %w", err)
	}
	in := Input{
		ID:        fmt.Sprintf("page-%d", pageIndex),
		Image:     buf.Bytes(),
		PageIndex: pageIndex,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
