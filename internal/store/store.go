// Package store owns the authoritative in-memory set of documents, pages and
// fields. All mutations go through one entry point guarded by a mutex and
// replace state copy-on-write, so snapshots handed to readers never observe
// a partial update.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/formably/pdf-fillable/internal/geometry"
	"github.com/google/uuid"
)

// Duplicate-merge thresholds in display-space units, independent of page
// scale.
const (
	DupMaxDX     = 10.0
	DupMaxDY     = 10.0
	DupMaxDWidth = 15.0
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrFieldNotFound    = errors.New("field not found")
	ErrPageOutOfRange   = errors.New("field references a page the document does not have")
)

// Document is one ingested PDF. Raw is an immutable snapshot of the source
// bytes taken at ingest; only Fields and SelectedFieldID mutate afterwards.
type Document struct {
	ID              string
	FileName        string
	Raw             []byte
	Pages           []geometry.PageMeta
	Fields          []geometry.Field
	SelectedFieldID string
}

// clone copies the document with its own fields slice. Raw and Pages are
// shared; both are immutable after ingest.
func (d Document) clone() Document {
	d.Fields = append([]geometry.Field(nil), d.Fields...)
	return d
}

// State is an immutable snapshot of the whole store.
type State struct {
	Documents []Document
	ActiveID  string
	Version   uint64
}

// Store is the single shared mutable resource of the pipeline.
type Store struct {
	mu    sync.RWMutex
	state State
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Snapshot returns a copy of the current state. Mutating the snapshot does
// not affect the store.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.copy()
}

func (st State) copy() State {
	docs := make([]Document, len(st.Documents))
	for i, d := range st.Documents {
		docs[i] = d.clone()
	}
	st.Documents = docs
	return st
}

// Document returns a copy of one document by ID.
func (s *Store) Document(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.state.Documents {
		if d.ID == id {
			return d.clone(), true
		}
	}
	return Document{}, false
}

// AddDocument ingests a document record. A missing ID is assigned; the new
// document becomes active.
func (s *Store) AddDocument(doc Document) (State, error) {
	for i, p := range doc.Pages {
		if p.Index != i {
			return State{}, fmt.Errorf("page %d carries index %d", i, p.Index)
		}
		if err := p.Validate(); err != nil {
			return State{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	next := s.state.copy()
	next.Documents = append(next.Documents, doc.clone())
	next.ActiveID = doc.ID
	return s.commit(next), nil
}

// RemoveDocument destroys a document together with all of its fields.
func (s *Store) RemoveDocument(id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.copy()
	idx := docIndex(next.Documents, id)
	if idx < 0 {
		return State{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	next.Documents = append(next.Documents[:idx], next.Documents[idx+1:]...)
	if next.ActiveID == id {
		next.ActiveID = ""
		if len(next.Documents) > 0 {
			next.ActiveID = next.Documents[0].ID
		}
	}
	return s.commit(next), nil
}

// SelectDocument marks a document as active.
func (s *Store) SelectDocument(id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.copy()
	if docIndex(next.Documents, id) < 0 {
		return State{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	next.ActiveID = id
	return s.commit(next), nil
}

// AddField appends a field to a document and selects it. A missing ID is
// assigned; an empty name gets the normalized fallback.
func (s *Store) AddField(docID string, f geometry.Field) (State, geometry.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.copy()
	idx := docIndex(next.Documents, docID)
	if idx < 0 {
		return State{}, geometry.Field{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	doc := &next.Documents[idx]
	if f.PageIndex < 0 || f.PageIndex >= len(doc.Pages) {
		return State{}, geometry.Field{}, fmt.Errorf("%w: page %d", ErrPageOutOfRange, f.PageIndex)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Name = normalizeName(f.Name, f)
	if err := f.Validate(doc.Pages[f.PageIndex]); err != nil {
		return State{}, geometry.Field{}, err
	}
	doc.Fields = append(doc.Fields, f)
	doc.SelectedFieldID = f.ID
	return s.commit(next), f, nil
}

// UpdateField merges a partial patch into an existing field. An unknown
// field ID is a no-op, not an error.
func (s *Store) UpdateField(docID, fieldID string, patch geometry.FieldPatch) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.copy()
	idx := docIndex(next.Documents, docID)
	if idx < 0 {
		return State{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	doc := &next.Documents[idx]
	for i := range doc.Fields {
		if doc.Fields[i].ID != fieldID {
			continue
		}
		patch.Apply(&doc.Fields[i])
		doc.Fields[i].Name = normalizeName(doc.Fields[i].Name, doc.Fields[i])
		return s.commit(next), nil
	}
	return s.commit(next), nil
}

// RemoveField deletes one field.
func (s *Store) RemoveField(docID, fieldID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.copy()
	idx := docIndex(next.Documents, docID)
	if idx < 0 {
		return State{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	doc := &next.Documents[idx]
	for i := range doc.Fields {
		if doc.Fields[i].ID != fieldID {
			continue
		}
		doc.Fields = append(doc.Fields[:i], doc.Fields[i+1:]...)
		if doc.SelectedFieldID == fieldID {
			doc.SelectedFieldID = ""
		}
		return s.commit(next), nil
	}
	return State{}, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldID)
}

// ReplaceFields swaps a document's whole field set.
func (s *Store) ReplaceFields(docID string, fields []geometry.Field) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.copy()
	idx := docIndex(next.Documents, docID)
	if idx < 0 {
		return State{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	doc := &next.Documents[idx]
	doc.Fields = append([]geometry.Field(nil), fields...)
	doc.SelectedFieldID = ""
	return s.commit(next), nil
}

// SelectField marks one field as selected.
func (s *Store) SelectField(docID, fieldID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.copy()
	idx := docIndex(next.Documents, docID)
	if idx < 0 {
		return State{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	doc := &next.Documents[idx]
	for _, f := range doc.Fields {
		if f.ID == fieldID {
			doc.SelectedFieldID = fieldID
			return s.commit(next), nil
		}
	}
	return State{}, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldID)
}

// MergeDetected merges detector candidates into a document. A candidate is
// dropped as a duplicate when a field on the same page already sits within
// the DupMax thresholds; the comparison covers pre-existing fields plus the
// candidates accepted earlier in this same pass, so candidate order decides
// which near-duplicates survive. The most recently accepted field becomes
// selected. Returns the number of accepted candidates.
func (s *Store) MergeDetected(docID string, candidates []geometry.Field) (State, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.copy()
	idx := docIndex(next.Documents, docID)
	if idx < 0 {
		return State{}, 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	doc := &next.Documents[idx]

	accepted := 0
	for _, c := range candidates {
		if c.PageIndex < 0 || c.PageIndex >= len(doc.Pages) {
			continue
		}
		if isDuplicate(doc.Fields, c) {
			continue
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.Name = normalizeName(c.Name, c)
		doc.Fields = append(doc.Fields, c)
		doc.SelectedFieldID = c.ID
		accepted++
	}
	return s.commit(next), accepted, nil
}

func isDuplicate(existing []geometry.Field, c geometry.Field) bool {
	for _, f := range existing {
		if f.PageIndex != c.PageIndex {
			continue
		}
		if abs(f.X-c.X) < DupMaxDX && abs(f.Y-c.Y) < DupMaxDY && abs(f.Width-c.Width) < DupMaxDWidth {
			return true
		}
	}
	return false
}

// normalizeName replaces an empty or whitespace-only name with a fallback
// derived from the field's page and the tail of its ID.
func normalizeName(name string, f geometry.Field) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	tail := f.ID
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return fmt.Sprintf("page%d_field_%s", f.PageIndex+1, tail)
}

// commit installs next as the current state. Callers hold s.mu.
func (s *Store) commit(next State) State {
	next.Version = s.state.Version + 1
	s.state = next
	return next.copy()
}

func docIndex(docs []Document, id string) int {
	for i, d := range docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
