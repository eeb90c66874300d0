// Package fillable is the service facade over the pipeline: document
// ingest, field CRUD, blank detection and export.
package fillable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/formably/pdf-fillable/internal/detect"
	"github.com/formably/pdf-fillable/internal/export"
	"github.com/formably/pdf-fillable/internal/geometry"
	"github.com/formably/pdf-fillable/internal/pdfio"
	"github.com/formably/pdf-fillable/internal/store"
	"github.com/formably/pdf-fillable/internal/synth"
)

// Service orchestrates the pipeline components. All PDF state lives in the
// store; the service itself is stateless apart from configuration.
type Service struct {
	maxFileSize int64
	scale       float64
	store       *store.Store
	detector    *detect.Detector
	exporter    *export.Exporter
	log         *slog.Logger
}

// NewService creates a service with the production accessors wired in.
func NewService(maxFileSize int64, scale float64, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		maxFileSize: maxFileSize,
		scale:       scale,
		store:       store.New(),
		detector:    detect.New(detect.DefaultOptions()),
		exporter:    export.New(synth.New(pdfio.NewWidgetWriter()), log),
		log:         log,
	}
}

// AddDocumentRequest names one PDF file to ingest.
type AddDocumentRequest struct {
	Path string
}

// AddDocumentResult reports the ingested document.
type AddDocumentResult struct {
	DocumentID string
	FileName   string
	PageCount  int
	Size       int64
}

// AddDocument ingests one PDF file. The raw bytes are snapshotted; the file
// is not touched again afterwards.
func (s *Service) AddDocument(req AddDocumentRequest) (*AddDocumentResult, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", req.Path)
	}
	if !strings.HasSuffix(strings.ToLower(req.Path), ".pdf") {
		return nil, fmt.Errorf("file is not a PDF: %s", req.Path)
	}
	if info.Size() > s.maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), s.maxFileSize)
	}

	raw, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return s.AddDocumentBytes(filepath.Base(req.Path), raw)
}

// AddDocumentBytes ingests an in-memory PDF.
func (s *Service) AddDocumentBytes(fileName string, raw []byte) (*AddDocumentResult, error) {
	src, err := pdfio.NewPageSource(raw, s.scale)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", fileName, err)
	}

	doc := store.Document{
		FileName: fileName,
		Raw:      raw,
		Pages:    src.Pages(),
	}
	state, err := s.store.AddDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", fileName, err)
	}

	s.log.Info("ingested document", "file", fileName, "pages", len(doc.Pages), "bytes", len(raw))
	return &AddDocumentResult{
		DocumentID: state.ActiveID,
		FileName:   fileName,
		PageCount:  len(doc.Pages),
		Size:       int64(len(raw)),
	}, nil
}

// AddDocumentsResult reports a batch ingest. Failed files do not abort the
// batch; they are collected per file.
type AddDocumentsResult struct {
	Added  []AddDocumentResult
	Failed map[string]error
}

// AddDocuments ingests many files, isolating per-file failures.
func (s *Service) AddDocuments(paths []string) *AddDocumentsResult {
	res := &AddDocumentsResult{Failed: map[string]error{}}
	for _, p := range paths {
		r, err := s.AddDocument(AddDocumentRequest{Path: p})
		if err != nil {
			s.log.Warn("ingest failed", "file", p, "error", err)
			res.Failed[p] = err
			continue
		}
		res.Added = append(res.Added, *r)
	}
	return res
}

// RemoveDocument destroys a document and all of its fields.
func (s *Service) RemoveDocument(documentID string) error {
	_, err := s.store.RemoveDocument(documentID)
	return err
}

// DocumentInfo summarizes one stored document.
type DocumentInfo struct {
	DocumentID string
	FileName   string
	PageCount  int
	FieldCount int
	Active     bool
}

// ListDocuments returns a summary of the store contents.
func (s *Service) ListDocuments() []DocumentInfo {
	state := s.store.Snapshot()
	infos := make([]DocumentInfo, 0, len(state.Documents))
	for _, d := range state.Documents {
		infos = append(infos, DocumentInfo{
			DocumentID: d.ID,
			FileName:   d.FileName,
			PageCount:  len(d.Pages),
			FieldCount: len(d.Fields),
			Active:     d.ID == state.ActiveID,
		})
	}
	return infos
}

// Document returns a copy of one stored document.
func (s *Service) Document(documentID string) (store.Document, error) {
	doc, ok := s.store.Document(documentID)
	if !ok {
		return store.Document{}, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, documentID)
	}
	return doc, nil
}

// DetectFieldsRequest asks for blank detection over one document.
type DetectFieldsRequest struct {
	DocumentID string
}

// DetectFieldsResult reports detection over one document.
type DetectFieldsResult struct {
	DocumentID string
	Detected   []geometry.Field
	Merged     int
}

// DetectFields runs the text-run detector over every page of a document and
// merges the candidates into the store. Merging happens only after the whole
// document's detection resolves, so a failure never leaves partial fields.
func (s *Service) DetectFields(ctx context.Context, req DetectFieldsRequest) (*DetectFieldsResult, error) {
	doc, ok := s.store.Document(req.DocumentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, req.DocumentID)
	}

	src, err := pdfio.NewPageSource(doc.Raw, s.scale)
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", doc.FileName, err)
	}
	candidates, err := s.detector.DetectDocument(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", doc.FileName, err)
	}

	_, merged, err := s.store.MergeDetected(doc.ID, candidates)
	if err != nil {
		return nil, err
	}
	s.log.Info("detected fields", "file", doc.FileName, "candidates", len(candidates), "merged", merged)
	return &DetectFieldsResult{DocumentID: doc.ID, Detected: candidates, Merged: merged}, nil
}

// DetectAllResult aggregates detection across documents.
type DetectAllResult struct {
	Results  []DetectFieldsResult
	Warnings []string
}

// DetectAll runs detection over every stored document. A failing document is
// reported as a warning; the others still run. Cancellation is honored
// between documents only.
func (s *Service) DetectAll(ctx context.Context) (*DetectAllResult, error) {
	state := s.store.Snapshot()
	res := &DetectAllResult{}
	for _, doc := range state.Documents {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r, err := s.DetectFields(ctx, DetectFieldsRequest{DocumentID: doc.ID})
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
			continue
		}
		res.Results = append(res.Results, *r)
	}
	return res, nil
}

// AddField places a manual field (no confidence) on a page.
func (s *Service) AddField(documentID string, f geometry.Field) (geometry.Field, error) {
	f.Confidence = nil
	_, added, err := s.store.AddField(documentID, f)
	return added, err
}

// UpdateField merges a partial patch into an existing field; unknown field
// IDs are a no-op.
func (s *Service) UpdateField(documentID, fieldID string, patch geometry.FieldPatch) error {
	_, err := s.store.UpdateField(documentID, fieldID, patch)
	return err
}

// RemoveField deletes one field.
func (s *Service) RemoveField(documentID, fieldID string) error {
	_, err := s.store.RemoveField(documentID, fieldID)
	return err
}

// SelectField marks one field as selected.
func (s *Service) SelectField(documentID, fieldID string) error {
	_, err := s.store.SelectField(documentID, fieldID)
	return err
}

// ExportDocumentResult carries one exported PDF.
type ExportDocumentResult struct {
	FileName string
	Data     []byte
}

// ExportDocument synthesizes one document's widgets and returns the bytes
// together with the derived file name.
func (s *Service) ExportDocument(ctx context.Context, documentID string) (*ExportDocumentResult, error) {
	doc, ok := s.store.Document(documentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, documentID)
	}
	data, err := s.exporter.ExportOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &ExportDocumentResult{
		FileName: export.DerivedFileName(doc.FileName),
		Data:     data,
	}, nil
}

// ExportAll synthesizes every document with fields and returns the archive
// bytes. Documents without fields are skipped; no document with fields at
// all is a recoverable error.
func (s *Service) ExportAll(ctx context.Context) ([]byte, error) {
	state := s.store.Snapshot()
	return s.exporter.ExportAll(ctx, state.Documents)
}

// IsNoFields reports whether err is the empty-export rejection.
func IsNoFields(err error) bool {
	return errors.Is(err, export.ErrNoFields)
}
