package textlayer

import (
	"context"
	"fmt"
	"strings"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/ocr"
)

// ocrFont names the font of recognized items.
const ocrFont = "Helvetica"

func (x *Extractor) recognize(ctx context.Context, n int, pageHeight float64) ([]TextItem, error) {
	img, err := x.cfg.Rasterizer.Rasterize(ctx, n, x.cfg.OCRDPI)
	if err != nil {
		return nil, fmt.Errorf("rasterize page %d: %w", n, err)
	}
	in, err := ocr.InputFromImage(img, n-1, ocr.WithDPI(x.cfg.OCRDPI), ocr.WithLanguages(x.cfg.Languages...))
	if err != nil {
		return nil, err
	}
	res, err := x.cfg.OCR.Recognize(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("ocr page %d: %w", n, err)
	}
	items := ItemsFromOCR(res, x.cfg.OCRDPI, pageHeight)
	x.cfg.Logger.Info("page recognized",
		observability.Int("page", n),
		observability.String("engine", x.cfg.OCR.Name()),
		observability.Int("items", len(items)))
	return items, nil
}

// ItemsFromOCR converts recognized words, in pixels at dpi with the origin
// top-left, to items. Each word becomes one item resting on the bottom of
// its box.
func ItemsFromOCR(res ocr.Result, dpi int, pageHeight float64) []TextItem {
	if dpi <= 0 {
		dpi = int(coords.DefaultDPI)
	}
	scale := coords.DefaultDPI / float64(dpi)
	var items []TextItem
	for _, block := range res.Blocks {
		for _, line := range block.Lines {
			for _, w := range line.Words {
				text := strings.TrimSpace(w.Text)
				if text == "" || w.Bounds.IsEmpty() {
					continue
				}
				box := coords.DisplayRect{
					X:      w.Bounds.X * scale,
					Y:      w.Bounds.Y * scale,
					Width:  w.Bounds.Width * scale,
					Height: w.Bounds.Height * scale,
				}
				origin := coords.DisplayPoint{X: box.X, Y: box.Bottom()}
				items = append(items, TextItem{
					Text:      text,
					Origin:    origin,
					DocOrigin: coords.ToDocumentSpace(origin, pageHeight),
					Bounds:    box,
					Width:     box.Width,
					Height:    box.Height,
					Font:      ocrFont,
					FontSize:  box.Height,
					Matrix:    coords.Matrix{box.Height, 0, 0, box.Height, box.X, pageHeight - box.Bottom()},
					Mode:      contentstream.TextInvisible,
				})
			}
		}
	}
	return items
}
