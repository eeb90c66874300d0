package detect

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/formably/pdf-fillable/internal/geometry"
)

// runPattern matches maximal runs of 3+ consecutive underscores. Shorter
// runs never even qualify as candidates; MinRunLength filters further.
var runPattern = regexp.MustCompile(`_{3,}`)

// Options tunes the detector.
type Options struct {
	// MinRunLength is the shortest underscore run treated as a blank;
	// shorter runs are decorative.
	MinRunLength int

	// VerticalOffset is a fixed display-space correction applied to every
	// candidate's y. Its value is a calibration artifact, not derived
	// geometry; keep it configurable.
	VerticalOffset float64

	// Confidence assigned to every produced candidate.
	Confidence float64

	// HeightSlack caps candidate height at MinFieldHeight + HeightSlack.
	HeightSlack float64
}

// DefaultOptions returns the calibrated defaults.
func DefaultOptions() Options {
	return Options{
		MinRunLength:   8,
		VerticalOffset: -4,
		Confidence:     0.6,
		HeightSlack:    16,
	}
}

// Detector scans text items for underscore runs and measures them into
// display-space field rectangles.
type Detector struct {
	opts Options
}

// New creates a Detector. Zero-valued options are replaced by defaults.
func New(opts Options) *Detector {
	def := DefaultOptions()
	if opts.MinRunLength <= 0 {
		opts.MinRunLength = def.MinRunLength
	}
	if opts.Confidence <= 0 {
		opts.Confidence = def.Confidence
	}
	if opts.HeightSlack <= 0 {
		opts.HeightSlack = def.HeightSlack
	}
	return &Detector{opts: opts}
}

// DetectDocument runs detection over every page of src in page order and
// aggregates the candidates. A failing page fails the whole document; a
// missing font only degrades the affected items.
func (d *Detector) DetectDocument(ctx context.Context, src PageText) ([]geometry.Field, error) {
	var fields []geometry.Field
	for pageNum := 1; pageNum <= src.PageCount(); pageNum++ {
		pageFields, err := d.DetectPage(ctx, src, pageNum)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNum, err)
		}
		fields = append(fields, pageFields...)
	}
	return fields, nil
}

// DetectPage produces the candidate fields for one page. Candidates carry
// sequential per-page names (page{N}_field_{K}) and the configured
// confidence; IDs are assigned later by the store.
func (d *Detector) DetectPage(ctx context.Context, src PageText, pageNum int) ([]geometry.Field, error) {
	page, err := src.PageMeta(pageNum)
	if err != nil {
		return nil, err
	}
	items, err := src.TextItems(ctx, pageNum)
	if err != nil {
		return nil, err
	}

	var fields []geometry.Field
	seq := 0
	for _, item := range items {
		for _, rect := range d.itemRects(src, pageNum, page, item) {
			seq++
			conf := d.opts.Confidence
			f := geometry.Field{
				PageIndex:  page.Index,
				Name:       fmt.Sprintf("page%d_field_%d", pageNum, seq),
				Confidence: &conf,
			}
			f.SetRect(rect)
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// itemRects measures every qualifying underscore run of one text item into a
// clamped display-space rectangle.
func (d *Detector) itemRects(src PageText, pageNum int, page geometry.PageMeta, item TextItem) []geometry.Rect {
	if !strings.Contains(item.Text, "_") {
		return nil
	}

	charCount := utf8.RuneCountInString(item.Text)
	if charCount == 0 {
		return nil
	}
	uniform := item.Width / float64(charCount)

	metrics, glyphsOK := src.GlyphAdvances(pageNum, item)
	unitRatio := 0.0
	if glyphsOK {
		unitRatio = item.Width / metrics.TotalAdvance
		if math.IsNaN(unitRatio) || math.IsInf(unitRatio, 0) || unitRatio <= 0 {
			glyphsOK = false
		}
	}

	var rects []geometry.Rect
	for _, loc := range runPattern.FindAllStringIndex(item.Text, -1) {
		start := utf8.RuneCountInString(item.Text[:loc[0]])
		length := loc[1] - loc[0] // underscores are single-byte
		if length < d.opts.MinRunLength {
			continue
		}

		var prefixWidth, runWidth float64
		if glyphsOK {
			prefixWidth = widthBetween(metrics, 0, start) * unitRatio
			runWidth = widthBetween(metrics, start, start+length) * unitRatio
		} else {
			prefixWidth = uniform * float64(start)
			runWidth = uniform * float64(length)
		}
		if runWidth <= 0 {
			continue
		}

		rects = append(rects, d.placeRun(page, item, prefixWidth, runWidth))
	}
	return rects
}

// placeRun converts a measured run to a clamped display-space rectangle.
func (d *Detector) placeRun(page geometry.PageMeta, item TextItem, prefixWidth, runWidth float64) geometry.Rect {
	baseX := item.Transform[4]
	baseY := item.Transform[5]

	var contentX float64
	if item.Direction == DirectionRTL {
		contentX = baseX - (prefixWidth + runWidth)
	} else {
		contentX = baseX + prefixWidth
	}

	fontHeight := math.Hypot(item.Transform[2], item.Transform[3])
	if fontHeight <= 0 || math.IsNaN(fontHeight) || math.IsInf(fontHeight, 0) {
		fontHeight = 10
	}

	// Content-space band [baseY-0.6h, baseY+0.2h]; content y grows upward,
	// so the band's top edge is baseY+0.2h.
	contentTop := baseY + 0.2*fontHeight

	x := contentX * page.Scale
	y := (page.OriginalHeight - contentTop) * page.Scale
	w := runWidth * page.Scale
	h := 0.8 * fontHeight * page.Scale

	w = math.Max(geometry.MinFieldWidth, w)
	w = math.Min(w, page.Width-x)
	w = math.Max(w, 0)

	h = math.Max(geometry.MinFieldHeight, h)
	h = math.Min(h, geometry.MinFieldHeight+d.opts.HeightSlack)

	y += d.opts.VerticalOffset
	y = clampf(y, 0, page.Height-h)
	x = clampf(x, 0, page.Width-w)

	return geometry.Rect{X: x, Y: y, Width: w, Height: h}
}

// widthBetween sums glyph advances over the character interval [from, to).
// A glyph split by an interval boundary contributes proportionally to how
// much of its character span lies inside the interval.
func widthBetween(m GlyphMetrics, from, to int) float64 {
	lo := float64(from)
	hi := float64(to)
	pos := 0.0
	total := 0.0
	for _, g := range m.Glyphs {
		span := float64(g.CharCount)
		if span <= 0 {
			span = 1
		}
		overlap := math.Min(hi, pos+span) - math.Max(lo, pos)
		if overlap > 0 {
			total += g.Advance * overlap / span
		}
		pos += span
		if pos >= hi {
			break
		}
	}
	return total
}

func clampf(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
