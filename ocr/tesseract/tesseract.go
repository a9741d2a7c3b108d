// Package tesseract recognizes page images with the Tesseract library
// through gosseract. It needs libtesseract and trained data at run time.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/wudi/pdfedit/ocr"
)

// Config tunes recognition. The zero value keeps Tesseract's defaults.
type Config struct {
	// PageSegMode is a Tesseract page segmentation mode (--psm). Zero keeps
	// fully automatic segmentation.
	PageSegMode int
	// Whitelist restricts recognition to these characters.
	Whitelist string
	// MinConfidence drops words recognized with a lower confidence, on a
	// 0..1 scale.
	MinConfidence float64
}

// client is the part of *gosseract.Client the engine drives.
type client interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	SetPageSegMode(mode gosseract.PageSegMode) error
	SetWhitelist(whitelist string) error
	SetVariable(key gosseract.SettableVariable, value string) error
	GetBoundingBoxesVerbose() ([]gosseract.BoundingBox, error)
	Close() error
}

// Engine is an ocr.Engine backed by Tesseract. A fresh client is created
// per page so an Engine may be shared between sessions.
type Engine struct {
	cfg       Config
	newClient func() client
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, newClient: func() client { return gosseract.NewClient() }}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize returns the words of in grouped into Tesseract's blocks and
// lines, in reading order.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c := e.newClient()
	defer c.Close()
	if err := e.configure(c, in); err != nil {
		return ocr.Result{}, err
	}
	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("%s: recognize: %w", in.ID, err)
	}
	blocks := group(boxes, e.cfg.MinConfidence)
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
	}
	res := ocr.Result{
		InputID:   in.ID,
		PlainText: strings.Join(texts, "\n\n"),
		Blocks:    blocks,
	}
	if len(in.Languages) > 0 {
		res.Language = in.Languages[0]
	}
	return res, nil
}

func (e *Engine) configure(c client, in ocr.Input) error {
	if err := c.SetImageFromBytes(in.Image); err != nil {
		return fmt.Errorf("%s: set image: %w", in.ID, err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return fmt.Errorf("%s: set languages: %w", in.ID, err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable("user_defined_dpi", fmt.Sprint(in.DPI)); err != nil {
			return fmt.Errorf("%s: set dpi: %w", in.ID, err)
		}
	}
	if e.cfg.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.cfg.PageSegMode)); err != nil {
			return fmt.Errorf("%s: set page segmentation: %w", in.ID, err)
		}
	}
	if e.cfg.Whitelist != "" {
		if err := c.SetWhitelist(e.cfg.Whitelist); err != nil {
			return fmt.Errorf("%s: set whitelist: %w", in.ID, err)
		}
	}
	return nil
}

type lineKey struct{ block, par, line int }

// group folds word boxes into blocks of lines. Boxes without text are the
// block, paragraph and line rows of Tesseract's TSV output and are skipped.
func group(boxes []gosseract.BoundingBox, minConf float64) []ocr.TextBlock {
	lines := make(map[lineKey]*ocr.TextLine)
	var keys []lineKey
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		conf := b.Confidence / 100
		if text == "" || conf < minConf {
			continue
		}
		k := lineKey{b.BlockNum, b.ParNum, b.LineNum}
		l, ok := lines[k]
		if !ok {
			l = &ocr.TextLine{}
			lines[k] = l
			keys = append(keys, k)
		}
		w := ocr.TextWord{Text: text, Bounds: region(b.Box), Confidence: conf}
		l.Words = append(l.Words, w)
		l.Bounds = l.Bounds.Union(w.Bounds)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.block != b.block {
			return a.block < b.block
		}
		if a.par != b.par {
			return a.par < b.par
		}
		return a.line < b.line
	})

	var blocks []ocr.TextBlock
	for i, k := range keys {
		l := lines[k]
		l.Text, l.Confidence = summarize(l.Words)
		if i == 0 || keys[i-1].block != k.block {
			blocks = append(blocks, ocr.TextBlock{})
		}
		b := &blocks[len(blocks)-1]
		b.Lines = append(b.Lines, *l)
		b.Bounds = b.Bounds.Union(l.Bounds)
	}
	for i := range blocks {
		b := &blocks[i]
		texts := make([]string, len(b.Lines))
		var sum float64
		for j, l := range b.Lines {
			texts[j] = l.Text
			sum += l.Confidence
		}
		b.Text = strings.Join(texts, "\n")
		b.Confidence = sum / float64(len(b.Lines))
	}
	return blocks
}

func summarize(words []ocr.TextWord) (string, float64) {
	texts := make([]string, len(words))
	var sum float64
	for i, w := range words {
		texts[i] = w.Text
		sum += w.Confidence
	}
	return strings.Join(texts, " "), sum / float64(len(words))
}

func region(r image.Rectangle) ocr.Region {
	return ocr.Region{X: float64(r.Min.X), Y: float64(r.Min.Y), Width: float64(r.Dx()), Height: float64(r.Dy())}
}
