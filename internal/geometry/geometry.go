// Package geometry defines the page and field model shared by the detector,
// the store and the synthesizer. All field rectangles live in display space:
// top-left origin, y growing downward, scaled by PageMeta.Scale.
package geometry

import (
	"fmt"
	"math"
)

const (
	// MinFieldWidth is the smallest usable field width in display units.
	MinFieldWidth = 80.0

	// MinFieldHeight is the smallest usable field height in display units.
	MinFieldHeight = 22.0
)

// dimTolerance absorbs floating-point drift when checking the
// width == originalWidth * scale invariant.
const dimTolerance = 1e-6

// PageMeta describes one page's geometry in both coordinate spaces.
type PageMeta struct {
	Index          int     `json:"index"` // 0-based, unique per document
	Width          float64 `json:"width"` // display units
	Height         float64 `json:"height"`
	OriginalWidth  float64 `json:"originalWidth"` // PDF content units
	OriginalHeight float64 `json:"originalHeight"`
	Scale          float64 `json:"scale"` // display units per content unit
}

// NewPageMeta derives display dimensions from content dimensions and a scale.
func NewPageMeta(index int, originalWidth, originalHeight, scale float64) PageMeta {
	return PageMeta{
		Index:          index,
		Width:          originalWidth * scale,
		Height:         originalHeight * scale,
		OriginalWidth:  originalWidth,
		OriginalHeight: originalHeight,
		Scale:          scale,
	}
}

// Validate checks the PageMeta invariants.
func (p PageMeta) Validate() error {
	if p.Index < 0 {
		return fmt.Errorf("page index must not be negative, got %d", p.Index)
	}
	if p.Scale <= 0 {
		return fmt.Errorf("page scale must be positive, got %g", p.Scale)
	}
	if math.Abs(p.Width-p.OriginalWidth*p.Scale) > dimTolerance ||
		math.Abs(p.Height-p.OriginalHeight*p.Scale) > dimTolerance {
		return fmt.Errorf("page %d display size %gx%g does not match %gx%g at scale %g",
			p.Index, p.Width, p.Height, p.OriginalWidth, p.OriginalHeight, p.Scale)
	}
	return nil
}

// Field is a named rectangle on one page, destined to become a text form
// widget. Confidence is set only on detector-produced fields.
type Field struct {
	ID          string   `json:"id"`
	PageIndex   int      `json:"pageIndex"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
	Multiline   bool     `json:"multiline"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Name        string   `json:"name"`
	Placeholder string   `json:"placeholder,omitempty"`
}

// Rect returns the field's rectangle.
func (f Field) Rect() Rect {
	return Rect{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
}

// SetRect replaces the field's rectangle.
func (f *Field) SetRect(r Rect) {
	f.X, f.Y, f.Width, f.Height = r.X, r.Y, r.Width, r.Height
}

// Validate checks the field invariants against its owning page.
func (f Field) Validate(page PageMeta) error {
	if f.PageIndex != page.Index {
		return fmt.Errorf("field %s references page %d, validated against page %d",
			f.ID, f.PageIndex, page.Index)
	}
	if f.X < 0 || f.Y < 0 {
		return fmt.Errorf("field %s origin (%g,%g) outside page", f.ID, f.X, f.Y)
	}
	if f.Width < MinFieldWidth || f.Height < MinFieldHeight {
		return fmt.Errorf("field %s size %gx%g below minimum %gx%g",
			f.ID, f.Width, f.Height, MinFieldWidth, MinFieldHeight)
	}
	if f.X+f.Width > page.Width+dimTolerance || f.Y+f.Height > page.Height+dimTolerance {
		return fmt.Errorf("field %s extends beyond page %d bounds", f.ID, page.Index)
	}
	if f.Confidence != nil && (*f.Confidence < 0 || *f.Confidence > 1) {
		return fmt.Errorf("field %s confidence %g outside [0,1]", f.ID, *f.Confidence)
	}
	return nil
}

// FieldPatch is a partial update to a Field. Nil members leave the
// corresponding field untouched; unknown keys cannot be expressed.
type FieldPatch struct {
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	Multiline   *bool    `json:"multiline,omitempty"`
	Name        *string  `json:"name,omitempty"`
	Placeholder *string  `json:"placeholder,omitempty"`
}

// Apply merges the patch into f, member by member.
func (p FieldPatch) Apply(f *Field) {
	if p.X != nil {
		f.X = *p.X
	}
	if p.Y != nil {
		f.Y = *p.Y
	}
	if p.Width != nil {
		f.Width = *p.Width
	}
	if p.Height != nil {
		f.Height = *p.Height
	}
	if p.Multiline != nil {
		f.Multiline = *p.Multiline
	}
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.Placeholder != nil {
		f.Placeholder = *p.Placeholder
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p FieldPatch) IsEmpty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil &&
		p.Multiline == nil && p.Name == nil && p.Placeholder == nil
}
