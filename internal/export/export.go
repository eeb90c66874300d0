// Package export sequences form synthesis across one or many documents and
// packages multi-document results as an archive.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/formably/pdf-fillable/internal/archive"
	"github.com/formably/pdf-fillable/internal/store"
	"github.com/formably/pdf-fillable/internal/synth"
	"golang.org/x/sync/errgroup"
)

// ErrNoFields is reported when nothing in the requested export carries any
// fields. It is recoverable: the caller keeps its state.
var ErrNoFields = synth.ErrNoFields

// maxConcurrent bounds concurrent per-document synthesis. Documents operate
// on independent byte buffers, so they are safe to run in parallel.
const maxConcurrent = 4

// Exporter produces the exported byte streams.
type Exporter struct {
	synth *synth.Synthesizer
	log   *slog.Logger
	now   func() time.Time
}

// New creates an Exporter. A nil logger discards output.
func New(s *synth.Synthesizer, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Exporter{synth: s, log: log, now: time.Now}
}

// ExportOne synthesizes a single document and returns the resulting PDF
// bytes. A document without fields is rejected, not exported empty.
func (e *Exporter) ExportOne(ctx context.Context, doc store.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := e.synth.Synthesize(doc)
	if err != nil {
		return nil, err
	}
	e.log.Info("exported document", "file", doc.FileName, "fields", len(doc.Fields), "bytes", len(out))
	return out, nil
}

// ExportAll synthesizes every document that has fields and packages the
// results, in input order, as a store-only archive. Documents without
// fields are skipped; a document whose synthesis fails is dropped from the
// archive without aborting the others. If nothing can be exported,
// ErrNoFields (or the aggregated failures) is returned.
func (e *Exporter) ExportAll(ctx context.Context, docs []store.Document) ([]byte, error) {
	var kept []store.Document
	for _, d := range docs {
		if len(d.Fields) > 0 {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: nothing to export", ErrNoFields)
	}

	results := make([][]byte, len(kept))
	failures := make([]error, len(kept))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, doc := range kept {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				failures[i] = err
				return nil
			}
			out, err := e.synth.Synthesize(doc)
			if err != nil {
				// Isolated per-document failure; the rest still export.
				e.log.Warn("document export failed", "file", doc.FileName, "error", err)
				failures[i] = err
				return nil
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var entries []archive.Entry
	var failed []error
	for i, doc := range kept {
		if failures[i] != nil {
			failed = append(failed, failures[i])
			continue
		}
		entries = append(entries, archive.Entry{
			Name: DerivedFileName(doc.FileName),
			Data: results[i],
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("all exports failed: %w", errors.Join(failed...))
	}

	blob, err := archive.Build(entries, e.now())
	if err != nil {
		return nil, fmt.Errorf("build archive: %w", err)
	}
	e.log.Info("exported archive", "documents", len(entries), "skipped", len(docs)-len(entries), "bytes", len(blob))
	return blob, nil
}

// DerivedFileName turns a source file name into the exported one: a
// trailing ".pdf" (case-insensitive) becomes "-fillable.pdf".
func DerivedFileName(fileName string) string {
	if strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		return fileName[:len(fileName)-4] + "-fillable.pdf"
	}
	return fileName + "-fillable.pdf"
}
