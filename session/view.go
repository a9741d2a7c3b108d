package session

import (
	"context"
	"strings"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfedit/contentstream/editor"
	"github.com/wudi/pdfedit/textlayer"
)

// TextLayerHTML renders page n's current runs as absolutely positioned
// elements over a page-sized container scaled by zoom.
func (s *Session) TextLayerHTML(ctx context.Context, n int, zoom float64) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	st, err := s.page(ctx, n)
	if err != nil {
		return "", err
	}
	pg, err := s.doc.Page(n)
	if err != nil {
		return "", err
	}
	_, w, h := pg.Geometry()
	var b strings.Builder
	if err := textlayer.RenderHTML(&b, w, h, zoom, st.runs); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Preview paints page n's edits onto dst, an image of the page rendered
// at scale pixels per point.
func (s *Session) Preview(ctx context.Context, n int, dst draw.Image, scale float64) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	st, err := s.page(ctx, n)
	if err != nil {
		return err
	}
	return editor.Replay(st.commands, editor.NewRasterSurface(dst, scale), s.layout)
}
