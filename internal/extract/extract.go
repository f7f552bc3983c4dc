// Package extract parses raw HTML into an ordered scraper.RecordSet.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

// ErrEmptySelector is returned when no selection rule is supplied.
var ErrEmptySelector = errors.New("selector is required")

// Extractor selects title elements with a CSS selector.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns one record per element matching selector, in document
// order. Zero matches yields an empty, non-nil RecordSet and no error.
func (Extractor) Extract(body []byte, selector string) (scraper.RecordSet, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, ErrEmptySelector
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	records := scraper.RecordSet{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		records = append(records, scraper.Record{Title: s.Text()})
	})
	return records, nil
}
