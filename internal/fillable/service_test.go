package fillable

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formably/pdf-fillable/internal/detect"
	"github.com/formably/pdf-fillable/internal/export"
	"github.com/formably/pdf-fillable/internal/geometry"
	"github.com/formably/pdf-fillable/internal/pdfio"
	"github.com/formably/pdf-fillable/internal/store"
	"github.com/formably/pdf-fillable/internal/synth"
)

type passthroughWriter struct{}

func (passthroughWriter) AddTextWidgets(src []byte, _ []pdfio.TextWidget) ([]byte, error) {
	return append(append([]byte(nil), src...), []byte(" widgets")...), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return &Service{
		maxFileSize: 1024,
		scale:       1.5,
		store:       store.New(),
		detector:    detect.New(detect.DefaultOptions()),
		exporter:    export.New(synth.New(passthroughWriter{}), nil),
		log:         slog.New(slog.DiscardHandler),
	}
}

func seedDocument(t *testing.T, s *Service, name string) string {
	t.Helper()
	state, err := s.store.AddDocument(store.Document{
		FileName: name,
		Raw:      []byte("%PDF " + name),
		Pages: []geometry.PageMeta{
			geometry.NewPageMeta(0, 612, 792, 1.5),
		},
	})
	require.NoError(t, err)
	return state.ActiveID
}

func TestAddDocument_Rejections(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()

	_, err := s.AddDocument(AddDocumentRequest{})
	assert.ErrorContains(t, err, "path cannot be empty")

	_, err = s.AddDocument(AddDocumentRequest{Path: filepath.Join(dir, "missing.pdf")})
	assert.ErrorContains(t, err, "cannot access file")

	_, err = s.AddDocument(AddDocumentRequest{Path: dir})
	assert.ErrorContains(t, err, "directory, not a file")

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = s.AddDocument(AddDocumentRequest{Path: txt})
	assert.ErrorContains(t, err, "not a PDF")

	big := filepath.Join(dir, "big.pdf")
	require.NoError(t, os.WriteFile(big, bytes.Repeat([]byte("x"), 2048), 0o644))
	_, err = s.AddDocument(AddDocumentRequest{Path: big})
	assert.ErrorContains(t, err, "file too large")
}

func TestAddDocumentBytes_RejectsUnparseable(t *testing.T) {
	s := newTestService(t)

	_, err := s.AddDocumentBytes("junk.pdf", []byte("this is not a pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "junk.pdf")
}

func TestAddDocuments_IsolatesFailures(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.pdf")

	res := s.AddDocuments([]string{missing})
	assert.Empty(t, res.Added)
	require.Len(t, res.Failed, 1)
	assert.Error(t, res.Failed[missing])
}

func TestListDocuments(t *testing.T) {
	s := newTestService(t)
	assert.Empty(t, s.ListDocuments())

	id1 := seedDocument(t, s, "a.pdf")
	id2 := seedDocument(t, s, "b.pdf")

	infos := s.ListDocuments()
	require.Len(t, infos, 2)
	assert.Equal(t, id1, infos[0].DocumentID)
	assert.False(t, infos[0].Active)
	assert.Equal(t, id2, infos[1].DocumentID)
	assert.True(t, infos[1].Active)
	assert.Equal(t, 1, infos[0].PageCount)
	assert.Equal(t, 0, infos[0].FieldCount)
}

func TestFieldCRUD(t *testing.T) {
	s := newTestService(t)
	id := seedDocument(t, s, "form.pdf")

	conf := 0.9
	added, err := s.AddField(id, geometry.Field{
		PageIndex: 0, X: 30, Y: 40, Width: 120, Height: 24,
		Name: "tenant", Confidence: &conf,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Nil(t, added.Confidence, "manual fields carry no confidence")

	newX := 55.0
	require.NoError(t, s.UpdateField(id, added.ID, geometry.FieldPatch{X: &newX}))
	doc, err := s.Document(id)
	require.NoError(t, err)
	require.Len(t, doc.Fields, 1)
	assert.Equal(t, 55.0, doc.Fields[0].X)

	require.NoError(t, s.SelectField(id, added.ID))

	require.NoError(t, s.RemoveField(id, added.ID))
	doc, err = s.Document(id)
	require.NoError(t, err)
	assert.Empty(t, doc.Fields)

	err = s.RemoveField(id, added.ID)
	assert.True(t, errors.Is(err, store.ErrFieldNotFound))
}

func TestRemoveDocument(t *testing.T) {
	s := newTestService(t)
	id := seedDocument(t, s, "form.pdf")

	require.NoError(t, s.RemoveDocument(id))
	_, err := s.Document(id)
	assert.True(t, errors.Is(err, store.ErrDocumentNotFound))

	err = s.RemoveDocument(id)
	assert.True(t, errors.Is(err, store.ErrDocumentNotFound))
}

func TestDetectFields_UnknownDocument(t *testing.T) {
	s := newTestService(t)
	_, err := s.DetectFields(context.Background(), DetectFieldsRequest{DocumentID: "missing"})
	assert.True(t, errors.Is(err, store.ErrDocumentNotFound))
}

func TestExportDocument(t *testing.T) {
	s := newTestService(t)
	id := seedDocument(t, s, "lease.pdf")
	_, err := s.AddField(id, geometry.Field{PageIndex: 0, X: 10, Y: 10, Width: 80, Height: 22, Name: "n"})
	require.NoError(t, err)

	res, err := s.ExportDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "lease-fillable.pdf", res.FileName)
	assert.Equal(t, []byte("%PDF lease.pdf widgets"), res.Data)
}

func TestExportDocument_NoFields(t *testing.T) {
	s := newTestService(t)
	id := seedDocument(t, s, "lease.pdf")

	_, err := s.ExportDocument(context.Background(), id)
	require.Error(t, err)
	assert.True(t, IsNoFields(err))
}

func TestExportAll(t *testing.T) {
	s := newTestService(t)

	_, err := s.ExportAll(context.Background())
	assert.True(t, IsNoFields(err), "empty store")

	withFields := seedDocument(t, s, "a.pdf")
	seedDocument(t, s, "empty.pdf")
	_, err = s.AddField(withFields, geometry.Field{PageIndex: 0, X: 10, Y: 10, Width: 80, Height: 22, Name: "n"})
	require.NoError(t, err)

	blob, err := s.ExportAll(context.Background())
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "a-fillable.pdf", zr.File[0].Name)
}
