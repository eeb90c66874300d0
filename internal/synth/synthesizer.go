// Package synth maps stored display-space field rectangles back into PDF
// content space and drives the write accessor to add one text form widget
// per field.
package synth

import (
	"errors"
	"fmt"

	"github.com/formably/pdf-fillable/internal/pdfio"
	"github.com/formably/pdf-fillable/internal/store"
)

// ErrNoFields is returned when a document has nothing to synthesize.
var ErrNoFields = errors.New("document has no fields")

// WidgetWriter is the write-side accessor contract. pdfio.WidgetWriter is
// the production implementation.
type WidgetWriter interface {
	AddTextWidgets(src []byte, widgets []pdfio.TextWidget) ([]byte, error)
}

// Synthesizer turns a document's fields into form widgets.
type Synthesizer struct {
	writer WidgetWriter
}

// New creates a Synthesizer over the given writer.
func New(writer WidgetWriter) *Synthesizer {
	return &Synthesizer{writer: writer}
}

// Synthesize returns a new byte buffer: the document's original bytes with
// one text widget per field. Widget names are made unique by suffixing
// repeat occurrences _2, _3, … in field order.
func (s *Synthesizer) Synthesize(doc store.Document) ([]byte, error) {
	if len(doc.Fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFields, doc.FileName)
	}

	widgets, err := s.Widgets(doc)
	if err != nil {
		return nil, err
	}
	out, err := s.writer.AddTextWidgets(doc.Raw, widgets)
	if err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", doc.FileName, err)
	}
	return out, nil
}

// Widgets computes the content-space widget placements for every field,
// without touching the PDF bytes.
func (s *Synthesizer) Widgets(doc store.Document) ([]pdfio.TextWidget, error) {
	seen := map[string]int{}
	widgets := make([]pdfio.TextWidget, 0, len(doc.Fields))

	for _, f := range doc.Fields {
		if f.PageIndex < 0 || f.PageIndex >= len(doc.Pages) {
			return nil, fmt.Errorf("field %s references page %d of %d-page document %s",
				f.ID, f.PageIndex, len(doc.Pages), doc.FileName)
		}
		page := doc.Pages[f.PageIndex]
		if page.Scale <= 0 {
			return nil, fmt.Errorf("page %d of %s has non-positive scale", f.PageIndex, doc.FileName)
		}

		name := f.Name
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}

		// Display space is top-left origin and scaled; PDF content space is
		// bottom-left origin, so the vertical axis flips.
		pdfW := f.Width / page.Scale
		pdfH := f.Height / page.Scale
		widgets = append(widgets, pdfio.TextWidget{
			Name:      name,
			Value:     f.Placeholder,
			Page:      f.PageIndex + 1,
			X:         f.X / page.Scale,
			Y:         page.OriginalHeight - f.Y/page.Scale - pdfH,
			Width:     pdfW,
			Height:    pdfH,
			Multiline: f.Multiline,
		})
	}
	return widgets, nil
}
