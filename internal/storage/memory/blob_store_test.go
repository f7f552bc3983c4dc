package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/filmes.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/filmes.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	got, ok := store.Get("path/filmes.json")
	if !ok || string(got) != "content" {
		t.Fatalf("expected stored copy to be unchanged, got %q", got)
	}
	if store.ContentType("path/filmes.json") != "application/json" {
		t.Fatalf("unexpected content type %q", store.ContentType("path/filmes.json"))
	}
}

func TestBlobStoreOverwrite(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, body := range []string{"first", "second"} {
		if _, err := store.PutObject(context.Background(), "f", "", bytes.NewBufferString(body)); err != nil {
			t.Fatalf("PutObject() error = %v", err)
		}
	}
	got, _ := store.Get("f")
	if string(got) != "second" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if store.Writes() != 2 {
		t.Fatalf("expected 2 writes, got %d", store.Writes())
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected missing object")
	}
}
