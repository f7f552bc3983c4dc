package scraper

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the raw source document.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns raw document content into an ordered RecordSet.
type Extractor interface {
	Extract(body []byte, selector string) (RecordSet, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordStore is the append-only queryable store.
type RecordStore interface {
	Append(ctx context.Context, records RecordSet) (int, error)
	List(ctx context.Context) ([]StoredRecord, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// EncodedCache holds the encoded representation of the latest RecordSet.
type EncodedCache interface {
	Store(ctx context.Context, encoded string) error
	Load(ctx context.Context) (string, error)
}

// Capturer renders the source page and saves a visual snapshot.
type Capturer interface {
	Capture(ctx context.Context, url string, path string) (string, error)
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
