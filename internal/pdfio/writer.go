package pdfio

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const (
	widgetFontSize = 10.0
	widgetFontName = "Helv"

	// Text field flag bit 13: multiline.
	fieldMultiline = 1 << 12

	// Annotation flag bit 3: print.
	annotPrint = 4

	// Neutral text color, light gray background, per the editor's rendering.
	defaultAppearanceDA = "/Helv 10 Tf 0.2 0.2 0.2 rg"
)

// TextWidget describes one text form widget in PDF content space
// (bottom-left origin, content units).
type TextWidget struct {
	Name      string
	Value     string
	Page      int // 1-based
	X         float64
	Y         float64
	Width     float64
	Height    float64
	Multiline bool
}

// WidgetWriter adds text form widgets to PDF byte buffers using pdfcpu.
type WidgetWriter struct {
	conf *model.Configuration
}

// NewWidgetWriter creates a writer with relaxed validation, matching how the
// read side tolerates real-world documents.
func NewWidgetWriter() *WidgetWriter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &WidgetWriter{conf: conf}
}

// AddTextWidgets returns a copy of src with one text form widget added per
// entry, the AcroForm dictionary wired up, and widget appearances generated
// so viewers need not rebuild them. src itself is never modified. Failure to
// parse src is fatal for this document only.
func (w *WidgetWriter) AddTextWidgets(src []byte, widgets []TextWidget) ([]byte, error) {
	ctx, err := api.ReadContext(bytes.NewReader(src), w.conf)
	if err != nil {
		return nil, fmt.Errorf("load pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("resolve page count: %w", err)
	}

	fontRef, err := ctx.IndRefForNewObject(types.Dict(map[string]types.Object{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("Helvetica"),
		"Encoding": types.Name("WinAnsiEncoding"),
	}))
	if err != nil {
		return nil, fmt.Errorf("register widget font: %w", err)
	}

	fieldRefs := types.Array{}
	for _, widget := range widgets {
		ref, err := w.addWidget(ctx, fontRef, widget)
		if err != nil {
			return nil, fmt.Errorf("widget %q: %w", widget.Name, err)
		}
		fieldRefs = append(fieldRefs, *ref)
	}

	if err := w.wireAcroForm(ctx, fontRef, fieldRefs); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("serialize pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// addWidget appends one Tx widget annotation to its page and returns the
// indirect reference for the AcroForm Fields array.
func (w *WidgetWriter) addWidget(ctx *model.Context, fontRef *types.IndirectRef, widget TextWidget) (*types.IndirectRef, error) {
	if widget.Page < 1 || widget.Page > ctx.PageCount {
		return nil, fmt.Errorf("invalid page number %d (document has %d pages)", widget.Page, ctx.PageCount)
	}

	pageDict, pageRef, _, err := ctx.PageDict(widget.Page, false)
	if err != nil {
		return nil, fmt.Errorf("resolve page dict: %w", err)
	}

	d := types.Dict(map[string]types.Object{
		"Type":    types.Name("Annot"),
		"Subtype": types.Name("Widget"),
		"FT":      types.Name("Tx"),
		"Rect":    types.NewNumberArray(widget.X, widget.Y, widget.X+widget.Width, widget.Y+widget.Height),
		"T":       types.StringLiteral(escapeString(widget.Name)),
		"F":       types.Integer(annotPrint),
		"DA":      types.StringLiteral(defaultAppearanceDA),
		"Q":       types.Integer(0),
		"P":       *pageRef,
		"MK": types.Dict(map[string]types.Object{
			"BG": types.NewNumberArray(0.92, 0.92, 0.92),
		}),
		"BS": types.Dict(map[string]types.Object{
			"W": types.Integer(0),
		}),
	})
	if widget.Multiline {
		d["Ff"] = types.Integer(fieldMultiline)
	}
	if widget.Value != "" {
		d["V"] = types.StringLiteral(escapeString(widget.Value))
		d["DV"] = types.StringLiteral(escapeString(widget.Value))
	}

	apRef, err := w.appearanceStream(ctx, fontRef, widget)
	if err != nil {
		return nil, fmt.Errorf("build appearance: %w", err)
	}
	d["AP"] = types.Dict(map[string]types.Object{"N": *apRef})

	ref, err := ctx.IndRefForNewObject(d)
	if err != nil {
		return nil, fmt.Errorf("register widget: %w", err)
	}

	annots := types.Array{}
	if obj, found := pageDict.Find("Annots"); found {
		if existing, err := ctx.DereferenceArray(obj); err == nil {
			annots = existing
		}
	}
	pageDict.Update("Annots", append(annots, *ref))

	return ref, nil
}

// appearanceStream builds the widget's normal appearance: gray background
// plus the value text inside a marked /Tx content block.
func (w *WidgetWriter) appearanceStream(ctx *model.Context, fontRef *types.IndirectRef, widget TextWidget) (*types.IndirectRef, error) {
	baseline := (widget.Height-widgetFontSize)/2 + 2
	if baseline < 2 {
		baseline = 2
	}

	var b strings.Builder
	fmt.Fprintf(&b, "/Tx BMC q 0.92 0.92 0.92 rg 0 0 %.2f %.2f re f ", widget.Width, widget.Height)
	if widget.Value != "" {
		fmt.Fprintf(&b, "BT /%s %.1f Tf 0.2 0.2 0.2 rg 2 %.2f Td (%s) Tj ET ",
			widgetFontName, widgetFontSize, baseline, escapeString(widget.Value))
	}
	b.WriteString("Q EMC")

	sd, err := ctx.XRefTable.NewStreamDictForBuf([]byte(b.String()))
	if err != nil {
		return nil, err
	}
	sd.InsertName("Type", "XObject")
	sd.InsertName("Subtype", "Form")
	sd.Insert("BBox", types.NewNumberArray(0, 0, widget.Width, widget.Height))
	sd.Insert("Resources", types.Dict(map[string]types.Object{
		"Font": types.Dict(map[string]types.Object{widgetFontName: *fontRef}),
	}))
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.IndRefForNewObject(*sd)
}

// wireAcroForm attaches the new field references to the document's AcroForm
// dictionary, creating it when absent and preserving any existing fields.
func (w *WidgetWriter) wireAcroForm(ctx *model.Context, fontRef *types.IndirectRef, fieldRefs types.Array) error {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return fmt.Errorf("resolve catalog: %w", err)
	}

	fields := types.Array{}
	if obj, found := rootDict.Find("AcroForm"); found {
		if acro, err := ctx.DereferenceDict(obj); err == nil && acro != nil {
			if fObj, found := acro.Find("Fields"); found {
				if existing, err := ctx.DereferenceArray(fObj); err == nil {
					fields = existing
				}
			}
		}
	}
	fields = append(fields, fieldRefs...)

	rootDict.Update("AcroForm", types.Dict(map[string]types.Object{
		"Fields": fields,
		"DA":     types.StringLiteral(defaultAppearanceDA),
		"DR": types.Dict(map[string]types.Object{
			"Font": types.Dict(map[string]types.Object{widgetFontName: *fontRef}),
		}),
		"NeedAppearances": types.Boolean(false),
	}))
	return nil
}

// escapeString escapes the characters with meaning inside PDF string
// literals.
func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
