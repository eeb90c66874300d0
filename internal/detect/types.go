// Package detect locates underscore "blank" runs in a page's text layout and
// turns them into display-space field rectangles.
package detect

import (
	"context"

	"github.com/formably/pdf-fillable/internal/geometry"
)

// Direction values for a text item's rendering direction.
const (
	DirectionLTR = "ltr"
	DirectionRTL = "rtl"
)

// TextItem is one positioned text chunk of a page, as reported by the read
// accessor. Transform is the 6-value affine matrix mapping glyph space to
// content space ([a b c d e f], with e/f the baseline origin); Width is the
// item's aggregate advance width in content units.
type TextItem struct {
	Text      string
	Transform [6]float64
	Direction string
	Width     float64
	Font      string
}

// Glyph is one glyph's advance width in font units together with the number
// of source characters it consumes (ligatures consume more than one).
type Glyph struct {
	Advance   float64
	CharCount int
}

// GlyphMetrics is the per-glyph width table for one text item.
type GlyphMetrics struct {
	Glyphs       []Glyph
	TotalAdvance float64
	TotalChars   int
}

// PageText is the read-side accessor the detector consumes. Page numbers are
// 1-based. GlyphAdvances reports ok=false when font or glyph data is
// unavailable for the item; the detector then degrades to a uniform
// per-character estimate instead of failing.
type PageText interface {
	PageCount() int
	PageMeta(pageNum int) (geometry.PageMeta, error)
	TextItems(ctx context.Context, pageNum int) ([]TextItem, error)
	GlyphAdvances(pageNum int, item TextItem) (GlyphMetrics, bool)
}
