package geometry

import "testing"

func TestNewPageMeta(t *testing.T) {
	p := NewPageMeta(0, 612, 792, 1.25)

	if p.Width != 612*1.25 || p.Height != 792*1.25 {
		t.Errorf("unexpected display size %gx%g", p.Width, p.Height)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPageMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		page    PageMeta
		wantErr bool
	}{
		{
			name: "valid",
			page: NewPageMeta(2, 595, 842, 1.5),
		},
		{
			name:    "zero scale",
			page:    PageMeta{Index: 0, Width: 612, Height: 792, OriginalWidth: 612, OriginalHeight: 792},
			wantErr: true,
		},
		{
			name:    "negative scale",
			page:    PageMeta{Index: 0, Width: 612, Height: 792, OriginalWidth: 612, OriginalHeight: 792, Scale: -1},
			wantErr: true,
		},
		{
			name:    "mismatched display size",
			page:    PageMeta{Index: 0, Width: 700, Height: 792, OriginalWidth: 612, OriginalHeight: 792, Scale: 1},
			wantErr: true,
		},
		{
			name:    "negative index",
			page:    NewPageMeta(-1, 612, 792, 1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.page.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestField_Validate(t *testing.T) {
	page := NewPageMeta(0, 612, 792, 1)
	conf := 0.6
	badConf := 1.5

	tests := []struct {
		name    string
		field   Field
		wantErr bool
	}{
		{
			name:  "valid manual field",
			field: Field{ID: "f1", PageIndex: 0, X: 10, Y: 10, Width: 150, Height: 24, Name: "a"},
		},
		{
			name:  "valid detected field",
			field: Field{ID: "f2", PageIndex: 0, X: 0, Y: 0, Width: MinFieldWidth, Height: MinFieldHeight, Name: "b", Confidence: &conf},
		},
		{
			name:    "negative origin",
			field:   Field{ID: "f3", PageIndex: 0, X: -1, Y: 10, Width: 150, Height: 24, Name: "c"},
			wantErr: true,
		},
		{
			name:    "too narrow",
			field:   Field{ID: "f4", PageIndex: 0, X: 10, Y: 10, Width: MinFieldWidth - 1, Height: 24, Name: "d"},
			wantErr: true,
		},
		{
			name:    "too short",
			field:   Field{ID: "f5", PageIndex: 0, X: 10, Y: 10, Width: 150, Height: MinFieldHeight - 1, Name: "e"},
			wantErr: true,
		},
		{
			name:    "overflows right edge",
			field:   Field{ID: "f6", PageIndex: 0, X: 600, Y: 10, Width: 150, Height: 24, Name: "f"},
			wantErr: true,
		},
		{
			name:    "overflows bottom edge",
			field:   Field{ID: "f7", PageIndex: 0, X: 10, Y: 780, Width: 150, Height: 24, Name: "g"},
			wantErr: true,
		},
		{
			name:    "wrong page",
			field:   Field{ID: "f8", PageIndex: 1, X: 10, Y: 10, Width: 150, Height: 24, Name: "h"},
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			field:   Field{ID: "f9", PageIndex: 0, X: 10, Y: 10, Width: 150, Height: 24, Name: "i", Confidence: &badConf},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.field.Validate(page)
			if tt.wantErr && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFieldPatch_Apply(t *testing.T) {
	f := Field{ID: "f1", PageIndex: 0, X: 10, Y: 20, Width: 150, Height: 24, Name: "orig", Placeholder: "keep"}

	x := 33.0
	name := "renamed"
	multiline := true
	patch := FieldPatch{X: &x, Name: &name, Multiline: &multiline}
	patch.Apply(&f)

	if f.X != 33 || f.Name != "renamed" || !f.Multiline {
		t.Errorf("patch not applied: %+v", f)
	}
	if f.Y != 20 || f.Width != 150 || f.Height != 24 || f.Placeholder != "keep" {
		t.Errorf("patch touched unpatched members: %+v", f)
	}

	if !(FieldPatch{}).IsEmpty() {
		t.Errorf("zero patch should be empty")
	}
	if (FieldPatch{X: &x}).IsEmpty() {
		t.Errorf("patch with members should not be empty")
	}
}
