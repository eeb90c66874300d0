package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/formably/pdf-fillable/internal/geometry"
)

func testDoc() Document {
	return Document{
		FileName: "contract.pdf",
		Raw:      []byte("%PDF-1.4 fake"),
		Pages: []geometry.PageMeta{
			geometry.NewPageMeta(0, 612, 792, 1),
			geometry.NewPageMeta(1, 612, 792, 1),
		},
	}
}

func mustAdd(t *testing.T, s *Store) string {
	t.Helper()
	state, err := s.AddDocument(testDoc())
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	return state.ActiveID
}

func field(page int, x, y, w, h float64) geometry.Field {
	return geometry.Field{PageIndex: page, X: x, Y: y, Width: w, Height: h}
}

func TestStore_AddDocument(t *testing.T) {
	s := New()
	id := mustAdd(t, s)

	if id == "" {
		t.Fatalf("expected generated document ID")
	}
	state := s.Snapshot()
	if len(state.Documents) != 1 || state.ActiveID != id {
		t.Errorf("unexpected state: %+v", state)
	}
	if state.Version == 0 {
		t.Errorf("version should advance on mutation")
	}
}

func TestStore_RemoveDocument(t *testing.T) {
	s := New()
	id := mustAdd(t, s)

	if _, err := s.RemoveDocument("missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}

	state, err := s.RemoveDocument(id)
	if err != nil {
		t.Fatalf("RemoveDocument failed: %v", err)
	}
	if len(state.Documents) != 0 || state.ActiveID != "" {
		t.Errorf("document not destroyed: %+v", state)
	}
}

func TestStore_AddField(t *testing.T) {
	s := New()
	id := mustAdd(t, s)

	state, added, err := s.AddField(id, field(0, 100, 100, 150, 24))
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}
	if added.ID == "" {
		t.Errorf("expected generated field ID")
	}
	if added.Name == "" {
		t.Errorf("expected normalized fallback name")
	}
	if state.Documents[0].SelectedFieldID != added.ID {
		t.Errorf("new field should be selected")
	}

	// Invalid geometry is rejected.
	if _, _, err := s.AddField(id, field(0, 600, 100, 150, 24)); err == nil {
		t.Errorf("expected out-of-bounds rejection")
	}
	if _, _, err := s.AddField(id, field(5, 0, 0, 150, 24)); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("expected ErrPageOutOfRange, got %v", err)
	}
}

func TestStore_UpdateField(t *testing.T) {
	s := New()
	id := mustAdd(t, s)
	_, added, err := s.AddField(id, field(0, 100, 100, 150, 24))
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}

	x := 42.0
	state, err := s.UpdateField(id, added.ID, geometry.FieldPatch{X: &x})
	if err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}
	if got := state.Documents[0].Fields[0].X; got != 42 {
		t.Errorf("patch not applied, X=%g", got)
	}

	// Unknown field IDs are a no-op, not an error.
	before := s.Snapshot()
	state, err = s.UpdateField(id, "missing", geometry.FieldPatch{X: &x})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.Documents[0].Fields) != len(before.Documents[0].Fields) {
		t.Errorf("no-op update changed fields")
	}
}

func TestStore_NameNormalization(t *testing.T) {
	s := New()
	id := mustAdd(t, s)
	_, added, err := s.AddField(id, field(1, 10, 10, 150, 24))
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}

	blank := "   "
	state, err := s.UpdateField(id, added.ID, geometry.FieldPatch{Name: &blank})
	if err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}

	got := state.Documents[0].Fields[0].Name
	wantPrefix := "page2_field_"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("normalized name %q should start with %q", got, wantPrefix)
	}
	tail := strings.TrimPrefix(got, wantPrefix)
	if tail != added.ID[len(added.ID)-4:] {
		t.Errorf("fallback tail %q should be the last 4 chars of the field ID %q", tail, added.ID)
	}
}

func TestStore_MergeDetected_DropsNearDuplicates(t *testing.T) {
	s := New()
	id := mustAdd(t, s)

	// Manual field, then a detected candidate within the 10/10/15 box.
	if _, _, err := s.AddField(id, field(0, 100, 100, 150, 24)); err != nil {
		t.Fatalf("AddField failed: %v", err)
	}

	conf := 0.6
	candidate := field(0, 105, 103, 150, 24)
	candidate.Confidence = &conf
	candidate.Name = "page1_field_1"

	state, merged, err := s.MergeDetected(id, []geometry.Field{candidate})
	if err != nil {
		t.Fatalf("MergeDetected failed: %v", err)
	}
	if merged != 0 {
		t.Errorf("expected duplicate to be dropped, merged=%d", merged)
	}
	if len(state.Documents[0].Fields) != 1 {
		t.Errorf("expected 1 field, got %d", len(state.Documents[0].Fields))
	}
}

func TestStore_MergeDetected_AcceptsDistinctAndSelectsLast(t *testing.T) {
	s := New()
	id := mustAdd(t, s)

	conf := 0.6
	a := field(0, 50, 50, 150, 24)
	a.Confidence = &conf
	a.Name = "page1_field_1"
	b := field(0, 300, 400, 150, 24)
	b.Confidence = &conf
	b.Name = "page1_field_2"
	// Same page, near-identical to a: suppressed by the in-pass comparison.
	c := field(0, 53, 58, 152, 24)
	c.Confidence = &conf
	c.Name = "page1_field_3"
	// Same coordinates as a but on another page: kept.
	d := field(1, 50, 50, 150, 24)
	d.Confidence = &conf
	d.Name = "page2_field_1"

	state, merged, err := s.MergeDetected(id, []geometry.Field{a, b, c, d})
	if err != nil {
		t.Fatalf("MergeDetected failed: %v", err)
	}
	if merged != 3 {
		t.Fatalf("expected 3 accepted candidates, got %d", merged)
	}
	doc := state.Documents[0]
	if len(doc.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(doc.Fields))
	}
	if doc.SelectedFieldID != doc.Fields[2].ID {
		t.Errorf("most recently accepted field should be selected")
	}
}

func TestStore_MergeDetected_Idempotent(t *testing.T) {
	s := New()
	id := mustAdd(t, s)

	conf := 0.6
	candidates := []geometry.Field{
		field(0, 50, 50, 150, 24),
		field(0, 300, 400, 150, 24),
	}
	for i := range candidates {
		candidates[i].Confidence = &conf
		candidates[i].Name = "n"
	}

	_, merged, err := s.MergeDetected(id, candidates)
	if err != nil || merged != 2 {
		t.Fatalf("first merge: merged=%d err=%v", merged, err)
	}
	state, merged, err := s.MergeDetected(id, candidates)
	if err != nil {
		t.Fatalf("second merge failed: %v", err)
	}
	if merged != 0 {
		t.Errorf("second merge accepted %d duplicates", merged)
	}
	if len(state.Documents[0].Fields) != 2 {
		t.Errorf("field set changed on re-merge: %d fields", len(state.Documents[0].Fields))
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := New()
	id := mustAdd(t, s)
	if _, _, err := s.AddField(id, field(0, 10, 10, 150, 24)); err != nil {
		t.Fatalf("AddField failed: %v", err)
	}

	snap := s.Snapshot()
	snap.Documents[0].Fields[0].X = 999
	snap.Documents[0].FileName = "mutated.pdf"

	fresh := s.Snapshot()
	if fresh.Documents[0].Fields[0].X == 999 {
		t.Errorf("snapshot mutation leaked into the store")
	}
	if fresh.Documents[0].FileName != "contract.pdf" {
		t.Errorf("snapshot mutation leaked into the store")
	}
}

func TestStore_RemoveAndSelectField(t *testing.T) {
	s := New()
	id := mustAdd(t, s)
	_, f1, _ := s.AddField(id, field(0, 10, 10, 150, 24))
	_, f2, _ := s.AddField(id, field(0, 10, 100, 150, 24))

	state, err := s.SelectField(id, f1.ID)
	if err != nil {
		t.Fatalf("SelectField failed: %v", err)
	}
	if state.Documents[0].SelectedFieldID != f1.ID {
		t.Errorf("field not selected")
	}

	state, err = s.RemoveField(id, f1.ID)
	if err != nil {
		t.Fatalf("RemoveField failed: %v", err)
	}
	doc := state.Documents[0]
	if len(doc.Fields) != 1 || doc.Fields[0].ID != f2.ID {
		t.Errorf("wrong field removed: %+v", doc.Fields)
	}
	if doc.SelectedFieldID != "" {
		t.Errorf("selection should clear when the selected field is removed")
	}

	if _, err := s.RemoveField(id, "missing"); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
}
