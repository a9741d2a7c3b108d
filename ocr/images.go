package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"

	"golang.org/x/image/draw"
)

// ErrNoImage is returned by PageImages for pages without an image.
var ErrNoImage = errors.New("ocr: no image for page")

// PageImages is a Rasterizer over pages rendered ahead of time by an
// external renderer or scanner. Files are decoded on each call and
// rescaled when the requested resolution differs from DPI.
type PageImages struct {
	// Paths maps 1-based page numbers to PNG or JPEG files.
	Paths map[int]string
	// DPI is the resolution the files were produced at. Zero means 72.
	DPI int
}

func (p PageImages) Rasterize(ctx context.Context, page, dpi int) (image.Image, error) {
	path, ok := p.Paths[page]
	if !ok {
		return nil, fmt.Errorf("page %d: %w", page, ErrNoImage)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	src := p.DPI
	if src <= 0 {
		src = 72
	}
	if dpi <= 0 || dpi == src {
		return img, nil
	}
	b := img.Bounds()
	w, h := b.Dx()*dpi/src, b.Dy()*dpi/src
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("page %d: image too small for %d dpi", page, dpi)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}
