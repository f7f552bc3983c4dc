// Package cache holds the encoded representation of the latest record set.
package cache

import (
	"context"
	"sync/atomic"

	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

// Slot is an in-process single-value cache. Stores swap the value atomically,
// so concurrent readers observe either the previous or the new value.
type Slot struct {
	value atomic.Pointer[string]
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Store replaces the cached value.
func (s *Slot) Store(_ context.Context, encoded string) error {
	s.value.Store(&encoded)
	return nil
}

// Load returns the cached value or scraper.ErrNotReady when nothing has been stored.
func (s *Slot) Load(_ context.Context) (string, error) {
	v := s.value.Load()
	if v == nil {
		return "", scraper.ErrNotReady
	}
	return *v, nil
}
