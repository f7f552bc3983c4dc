package scraper

import (
	"net/http"
	"time"
)

// Record is one ranked item scraped from the source page.
type Record struct {
	Title string `json:"filme"`
}

// RecordSet is an ordered collection of records. Order is the source ranking
// order and is preserved by every serialization.
type RecordSet []Record

// Titles returns the record titles in order.
func (rs RecordSet) Titles() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Title
	}
	return out
}

// FetchRequest captures everything needed to fetch the source document.
type FetchRequest struct {
	RunID   string
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StoredRecord is a row read back from the queryable store.
type StoredRecord struct {
	ID    int64  `json:"-"`
	Title string `json:"filme"`
}

// RunStatus represents the outcome of a pipeline run.
type RunStatus string

// Run status values recorded in reports, metrics, and notifications.
const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// SinkName identifies one persistence target of the multi-sink writer.
type SinkName string

// Sinks written by the multi-sink writer, in execution order.
const (
	SinkDocument SinkName = "document"
	SinkTabular  SinkName = "tabular"
	SinkStore    SinkName = "store"
	SinkCache    SinkName = "cache"
	SinkMirror   SinkName = "mirror"
)

// SinkResult is the outcome of one writer step.
type SinkResult struct {
	Sink     SinkName `json:"sink"`
	Location string   `json:"location,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// OK reports whether the step succeeded.
func (r SinkResult) OK() bool {
	return r.Error == ""
}

// RunReport summarizes a single pipeline run.
type RunReport struct {
	RunID          string       `json:"run_id"`
	SourceURL      string       `json:"source_url"`
	Status         RunStatus    `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	Records        int          `json:"records"`
	DocumentDigest string       `json:"document_digest,omitempty"`
	Sinks          []SinkResult `json:"sinks,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
	Error          string       `json:"error,omitempty"`
	SnapshotError  string       `json:"snapshot_error,omitempty"`
}

// Duration returns the wall-clock time the run took.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
