// Package pipeline executes one scrape run: fetch the source page, extract
// records, persist them to every sink, then capture a page snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-chart-scraper/internal/clock/system"
	"github.com/JakeFAU/realtime-chart-scraper/internal/id/uuid"
	"github.com/JakeFAU/realtime-chart-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
	"github.com/JakeFAU/realtime-chart-scraper/internal/telemetry"
	"github.com/JakeFAU/realtime-chart-scraper/internal/writer"
)

const previewRows = 5

// WarnNoRecords is recorded in the run report when the selector matched nothing.
const WarnNoRecords = "no titles found"

// Config controls a Runner.
type Config struct {
	SourceURL      string
	Selector       string
	Headers        http.Header
	ScreenshotPath string
	Topic          string
}

// Writer persists an extracted RecordSet.
type Writer interface {
	Write(ctx context.Context, records scraper.RecordSet) (writer.Report, error)
}

// Runner executes pipeline runs.
type Runner struct {
	cfg       Config
	fetcher   scraper.Fetcher
	extractor scraper.Extractor
	writer    Writer
	capturer  scraper.Capturer
	publisher scraper.Publisher
	clock     scraper.Clock
	ids       scraper.IDGenerator
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithCapturer enables the page snapshot step.
func WithCapturer(c scraper.Capturer) Option {
	return func(r *Runner) { r.capturer = c }
}

// WithPublisher announces each finished run on cfg.Topic.
func WithPublisher(p scraper.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithClock overrides the time source.
func WithClock(c scraper.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithIDGenerator overrides how run IDs are minted.
func WithIDGenerator(g scraper.IDGenerator) Option {
	return func(r *Runner) { r.ids = g }
}

// WithTracer overrides the tracer used for pipeline spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// New constructs a Runner.
func New(cfg Config, fetcher scraper.Fetcher, extractor scraper.Extractor, w Writer, logger *zap.Logger, opts ...Option) (*Runner, error) {
	switch {
	case fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case w == nil:
		return nil, fmt.Errorf("writer is required")
	case cfg.SourceURL == "":
		return nil, fmt.Errorf("source url is required")
	case cfg.Selector == "":
		return nil, fmt.Errorf("selector is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	r := &Runner{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		writer:    w,
		clock:     system.New(),
		ids:       uuid.New(),
		tracer:    telemetry.Tracer(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes one pipeline run and returns its report. The returned error is
// the fetch, extraction, or persistence failure; snapshot failures are only
// recorded in the report.
func (r *Runner) Run(ctx context.Context) (scraper.RunReport, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return scraper.RunReport{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("source.url", r.cfg.SourceURL),
	))
	defer span.End()

	logger := r.logger.With(zap.String("run_id", runID), zap.String("url", r.cfg.SourceURL))
	report := scraper.RunReport{
		RunID:     runID,
		SourceURL: r.cfg.SourceURL,
		StartedAt: r.clock.Now(),
	}
	logger.Info("run started")

	runErr := r.scrape(ctx, logger, &report)
	r.snapshot(ctx, logger, &report)

	report.FinishedAt = r.clock.Now()
	report.Status = deriveStatus(runErr, report)
	if runErr != nil {
		report.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(report.Status))
	}
	span.SetAttributes(attribute.String("run.status", string(report.Status)), attribute.Int("run.records", report.Records))
	metrics.ObserveRun(string(report.Status), report.Duration())

	fields := []zap.Field{
		zap.String("status", string(report.Status)),
		zap.Int("records", report.Records),
		zap.Duration("duration", report.Duration()),
	}
	if runErr != nil {
		logger.Error("run finished", append(fields, zap.Error(runErr))...)
	} else {
		logger.Info("run finished", fields...)
	}

	r.publish(ctx, logger, report)
	return report, runErr
}

func (r *Runner) scrape(ctx context.Context, logger *zap.Logger, report *scraper.RunReport) error {
	resp, err := r.fetch(ctx, report.RunID)
	if err != nil {
		return err
	}
	metrics.ObserveFetch(resp.URL, len(resp.Body))
	logger.Info("page fetched", zap.Int("status_code", resp.StatusCode), zap.Int("bytes", len(resp.Body)), zap.Duration("fetch_duration", resp.Duration))

	records, err := r.extract(ctx, resp.Body)
	if err != nil {
		return err
	}
	report.Records = len(records)
	metrics.ObserveExtraction(len(records))
	if len(records) == 0 {
		logger.Warn(WarnNoRecords, zap.String("selector", r.cfg.Selector))
		report.Warnings = append(report.Warnings, WarnNoRecords)
	} else {
		for i, rec := range records {
			logger.Info("title extracted", zap.Int("rank", i+1), zap.String("title", rec.Title))
		}
		logger.Debug("records preview", zap.Strings("head", records[:min(previewRows, len(records))].Titles()), zap.Int("rows", len(records)))
	}

	return r.write(ctx, logger, records, report)
}

func (r *Runner) fetch(ctx context.Context, runID string) (scraper.FetchResponse, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.fetch")
	defer span.End()

	resp, err := r.fetcher.Fetch(ctx, scraper.FetchRequest{
		RunID:   runID,
		URL:     r.cfg.SourceURL,
		Headers: r.cfg.Headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return scraper.FetchResponse{}, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode), attribute.Int("body.bytes", len(resp.Body)))
	return resp, nil
}

func (r *Runner) extract(ctx context.Context, body []byte) (scraper.RecordSet, error) {
	_, span := r.tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	records, err := r.extractor.Extract(body, r.cfg.Selector)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract failed")
		return nil, fmt.Errorf("extract records: %w", err)
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

func (r *Runner) write(ctx context.Context, logger *zap.Logger, records scraper.RecordSet, report *scraper.RunReport) error {
	ctx, span := r.tracer.Start(ctx, "pipeline.write")
	defer span.End()

	wr, err := r.writer.Write(ctx, records)
	report.Sinks = wr.Sinks
	report.DocumentDigest = wr.Digest
	for _, s := range wr.Sinks {
		if s.OK() {
			logger.Debug("sink written", zap.String("sink", string(s.Sink)), zap.String("location", s.Location))
			continue
		}
		metrics.ObserveSinkFailure(string(s.Sink))
		logger.Error("sink failed", zap.String("sink", string(s.Sink)), zap.String("error", s.Error))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return err
	}
	logger.Info("records persisted", zap.Int("appended", wr.Appended), zap.String("digest", wr.Digest))
	return nil
}

func (r *Runner) snapshot(ctx context.Context, logger *zap.Logger, report *scraper.RunReport) {
	if r.capturer == nil {
		return
	}
	ctx, span := r.tracer.Start(ctx, "pipeline.snapshot")
	defer span.End()

	uri, err := r.capturer.Capture(ctx, r.cfg.SourceURL, r.cfg.ScreenshotPath)
	if err != nil {
		metrics.ObserveSnapshot("failed")
		report.SnapshotError = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		logger.Warn("snapshot capture failed", zap.Error(err))
		return
	}
	metrics.ObserveSnapshot("succeeded")
	logger.Info("snapshot captured", zap.String("location", uri))
}

func (r *Runner) publish(ctx context.Context, logger *zap.Logger, report scraper.RunReport) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	id, err := r.publisher.Publish(ctx, r.cfg.Topic, RunCompleted{Report: report})
	if err != nil {
		logger.Warn("run notification failed", zap.String("topic", r.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("run notification published", zap.String("topic", r.cfg.Topic), zap.String("message_id", id))
}

// A persistence error with at least one sink written is partial; anything
// else that failed before persistence is a failed run.
func deriveStatus(runErr error, report scraper.RunReport) scraper.RunStatus {
	if runErr == nil {
		return scraper.RunStatusSucceeded
	}
	var perr *scraper.PersistenceError
	if errors.As(runErr, &perr) {
		for _, s := range report.Sinks {
			if s.OK() {
				return scraper.RunStatusPartial
			}
		}
	}
	return scraper.RunStatusFailed
}

// RunCompleted is the notification payload published after every run.
type RunCompleted struct {
	Report scraper.RunReport `json:"report"`
}

// Attributes returns message attributes for subscription filtering.
func (e RunCompleted) Attributes() map[string]string {
	return map[string]string{
		"event":  "run.completed",
		"status": string(e.Report.Status),
		"run_id": e.Report.RunID,
	}
}
