// Package pdfio adapts the third-party PDF libraries to the narrow accessor
// interfaces the pipeline consumes: ledongthuc/pdf on the read side (text
// layout, glyph widths, page dimensions) and pdfcpu on the write side
// (widget synthesis).
package pdfio

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/formably/pdf-fillable/internal/detect"
	"github.com/formably/pdf-fillable/internal/geometry"
	"github.com/ledongthuc/pdf"
)

// Default page dimensions (US Letter, content units) used when a page has no
// resolvable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// mergeGapFactor bounds, as a fraction of the font size, the horizontal gap
// across which adjacent text chunks are still treated as one item. Chunks
// further apart keep separate glyph tables so run measurement stays exact.
const mergeGapFactor = 0.15

// PageSource reads one document's layout. It implements detect.PageText.
type PageSource struct {
	reader *pdf.Reader
	scale  float64
	pages  []geometry.PageMeta
}

// NewPageSource parses raw PDF bytes and precomputes per-page geometry at
// the given display scale. Unreadable bytes fail the whole document.
func NewPageSource(raw []byte, scale float64) (*PageSource, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("scale must be positive, got %g", scale)
	}
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	src := &PageSource{reader: reader, scale: scale}
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		w, h := src.pageDims(pageNum)
		src.pages = append(src.pages, geometry.NewPageMeta(pageNum-1, w, h, scale))
	}
	return src, nil
}

// PageCount returns the number of pages.
func (s *PageSource) PageCount() int {
	return s.reader.NumPage()
}

// Pages returns the per-page geometry, ordered by index.
func (s *PageSource) Pages() []geometry.PageMeta {
	return append([]geometry.PageMeta(nil), s.pages...)
}

// PageMeta returns the geometry of one page (1-based).
func (s *PageSource) PageMeta(pageNum int) (geometry.PageMeta, error) {
	if pageNum < 1 || pageNum > len(s.pages) {
		return geometry.PageMeta{}, fmt.Errorf("invalid page number %d (document has %d pages)",
			pageNum, len(s.pages))
	}
	return s.pages[pageNum-1], nil
}

// pageDims resolves a page's MediaBox, walking up the page tree for
// inherited entries. Malformed boxes fall back to US Letter.
func (s *PageSource) pageDims(pageNum int) (width, height float64) {
	defer func() {
		// ledongthuc/pdf panics on some malformed documents.
		if recover() != nil {
			width, height = defaultPageWidth, defaultPageHeight
		}
	}()

	page := s.reader.Page(pageNum)
	if page.V.IsNull() {
		return defaultPageWidth, defaultPageHeight
	}

	box := page.V.Key("MediaBox")
	for node := page.V.Key("Parent"); box.IsNull() && !node.IsNull(); node = node.Key("Parent") {
		box = node.Key("MediaBox")
	}
	if box.IsNull() || box.Kind() != pdf.Array || box.Len() != 4 {
		return defaultPageWidth, defaultPageHeight
	}

	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return w, h
}

// TextItems returns the page's positioned text, with adjacent chunks that
// share a baseline and font merged into single items. ledongthuc/pdf only
// reports left-to-right text.
func (s *PageSource) TextItems(ctx context.Context, pageNum int) (items []detect.TextItem, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageNum < 1 || pageNum > s.reader.NumPage() {
		return nil, fmt.Errorf("invalid page number %d", pageNum)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read page %d text: %v", pageNum, r)
		}
	}()

	page := s.reader.Page(pageNum)
	if page.V.IsNull() {
		return nil, nil
	}

	var cur *builder
	for _, t := range page.Content().Text {
		if cur != nil && cur.accepts(t) {
			cur.add(t)
			continue
		}
		if cur != nil {
			items = append(items, cur.item())
		}
		cur = newBuilder(t)
	}
	if cur != nil {
		items = append(items, cur.item())
	}
	return items, nil
}

// builder accumulates contiguous text chunks into one TextItem.
type builder struct {
	text     []byte
	font     string
	fontSize float64
	startX   float64
	baseY    float64
	endX     float64
}

func newBuilder(t pdf.Text) *builder {
	return &builder{
		text:     []byte(t.S),
		font:     t.Font,
		fontSize: t.FontSize,
		startX:   t.X,
		baseY:    t.Y,
		endX:     t.X + t.W,
	}
}

// accepts reports whether chunk t continues this item: same font, same
// baseline, and horizontally contiguous within the merge gap.
func (b *builder) accepts(t pdf.Text) bool {
	if t.Font != b.font || math.Abs(t.FontSize-b.fontSize) > 0.01 {
		return false
	}
	if math.Abs(t.Y-b.baseY) > 0.5 {
		return false
	}
	maxGap := b.fontSize * mergeGapFactor
	if maxGap <= 0 {
		maxGap = 1
	}
	return math.Abs(t.X-b.endX) <= maxGap
}

func (b *builder) add(t pdf.Text) {
	b.text = append(b.text, t.S...)
	b.endX = t.X + t.W
}

func (b *builder) item() detect.TextItem {
	size := b.fontSize
	if size <= 0 {
		size = 10
	}
	return detect.TextItem{
		Text:      string(b.text),
		Transform: [6]float64{size, 0, 0, size, b.startX, b.baseY},
		Direction: detect.DirectionLTR,
		Width:     b.endX - b.startX,
		Font:      b.font,
	}
}

// GlyphAdvances resolves the item's font and maps each character to a glyph
// advance in font units. It reports ok=false when the font or any width is
// unavailable, leaving the caller to fall back to uniform estimation; it
// never fails detection outright.
func (s *PageSource) GlyphAdvances(pageNum int, item detect.TextItem) (metrics detect.GlyphMetrics, ok bool) {
	if item.Font == "" || pageNum < 1 || pageNum > s.reader.NumPage() {
		return detect.GlyphMetrics{}, false
	}

	defer func() {
		if recover() != nil {
			metrics, ok = detect.GlyphMetrics{}, false
		}
	}()

	font := s.reader.Page(pageNum).Font(item.Font)
	if font.V.IsNull() {
		return detect.GlyphMetrics{}, false
	}

	for _, r := range item.Text {
		w := font.Width(int(r))
		if w <= 0 {
			return detect.GlyphMetrics{}, false
		}
		metrics.Glyphs = append(metrics.Glyphs, detect.Glyph{Advance: w, CharCount: 1})
		metrics.TotalAdvance += w
		metrics.TotalChars++
	}
	if metrics.TotalAdvance <= 0 {
		return detect.GlyphMetrics{}, false
	}
	return metrics, true
}
