// Package writer persists a RecordSet to every configured sink.
//
// Steps run in a fixed order (document, tabular, store, cache, then the
// optional mirror). Each step is attempted even when an earlier one failed;
// there is no rollback. Failures surface as *scraper.PersistenceError values
// in the returned Report and joined into the returned error.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/realtime-chart-scraper/internal/codec"
	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

var errNoDocument = errors.New("document serialization unavailable")

// Config names the fixed artifact paths.
type Config struct {
	DocumentPath string
	TabularPath  string
}

// Report lists per-sink outcomes for one write.
type Report struct {
	Sinks    []scraper.SinkResult
	Appended int
	Digest   string
}

// Failed returns the number of failed sinks.
func (r Report) Failed() int {
	n := 0
	for _, s := range r.Sinks {
		if !s.OK() {
			n++
		}
	}
	return n
}

// Writer fans a RecordSet out to the file, store, and cache sinks.
type Writer struct {
	cfg    Config
	files  scraper.BlobStore
	store  scraper.RecordStore
	cache  scraper.EncodedCache
	mirror scraper.BlobStore
	hasher scraper.Hasher
}

// Option customizes a Writer.
type Option func(*Writer)

// WithMirror copies the document and tabular bytes to an extra blob store.
func WithMirror(mirror scraper.BlobStore) Option {
	return func(w *Writer) { w.mirror = mirror }
}

// WithHasher records a digest of the document bytes in the report.
func WithHasher(h scraper.Hasher) Option {
	return func(w *Writer) { w.hasher = h }
}

// New wires a Writer.
func New(cfg Config, files scraper.BlobStore, store scraper.RecordStore, cache scraper.EncodedCache, opts ...Option) (*Writer, error) {
	switch {
	case files == nil:
		return nil, fmt.Errorf("file blob store is required")
	case store == nil:
		return nil, fmt.Errorf("record store is required")
	case cache == nil:
		return nil, fmt.Errorf("encoded cache is required")
	case cfg.DocumentPath == "":
		return nil, fmt.Errorf("document path is required")
	case cfg.TabularPath == "":
		return nil, fmt.Errorf("tabular path is required")
	}
	w := &Writer{cfg: cfg, files: files, store: store, cache: cache}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write runs every sink step and reports each outcome.
func (w *Writer) Write(ctx context.Context, records scraper.RecordSet) (Report, error) {
	var (
		report Report
		errs   []error
	)
	record := func(sink scraper.SinkName, location string, err error) {
		res := scraper.SinkResult{Sink: sink, Location: location}
		if err != nil {
			perr := &scraper.PersistenceError{Sink: sink, Err: err}
			res.Error = err.Error()
			errs = append(errs, perr)
		}
		report.Sinks = append(report.Sinks, res)
	}

	document, docErr := codec.EncodeDocument(records)
	if docErr != nil {
		record(scraper.SinkDocument, "", docErr)
	} else {
		uri, err := w.files.PutObject(ctx, w.cfg.DocumentPath, codec.DocumentContentType, bytes.NewReader(document))
		record(scraper.SinkDocument, uri, err)
		if w.hasher != nil {
			if digest, err := w.hasher.Hash(document); err == nil {
				report.Digest = digest
			}
		}
	}

	tabular, tabErr := codec.EncodeTabular(records)
	if tabErr != nil {
		record(scraper.SinkTabular, "", tabErr)
	} else {
		uri, err := w.files.PutObject(ctx, w.cfg.TabularPath, codec.TabularContentType, bytes.NewReader(tabular))
		record(scraper.SinkTabular, uri, err)
	}

	appended, err := w.store.Append(ctx, records)
	report.Appended = appended
	record(scraper.SinkStore, "", err)

	// The cached value is derived from the serialized bytes, not the file,
	// so it is refreshed even when the document write failed.
	if docErr != nil {
		record(scraper.SinkCache, "", errNoDocument)
	} else {
		record(scraper.SinkCache, "", w.cache.Store(ctx, codec.Encode(document)))
	}

	if w.mirror != nil {
		uri, err := w.mirrorArtifacts(ctx, document, docErr, tabular, tabErr)
		record(scraper.SinkMirror, uri, err)
	}

	return report, errors.Join(errs...)
}

func (w *Writer) mirrorArtifacts(ctx context.Context, document []byte, docErr error, tabular []byte, tabErr error) (string, error) {
	var (
		uri  string
		errs []error
	)
	if docErr == nil {
		u, err := w.mirror.PutObject(ctx, w.cfg.DocumentPath, codec.DocumentContentType, bytes.NewReader(document))
		if err != nil {
			errs = append(errs, fmt.Errorf("mirror document: %w", err))
		}
		uri = u
	}
	if tabErr == nil {
		if _, err := w.mirror.PutObject(ctx, w.cfg.TabularPath, codec.TabularContentType, bytes.NewReader(tabular)); err != nil {
			errs = append(errs, fmt.Errorf("mirror tabular: %w", err))
		}
	}
	return uri, errors.Join(errs...)
}
