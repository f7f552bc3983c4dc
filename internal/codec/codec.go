// Package codec holds the serializations of a scraper.RecordSet: the
// structured document (JSON), the tabular document (CSV), and the text-safe
// encoded form (base64) kept in the cache.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

// Content types for the persisted artifacts.
const (
	DocumentContentType = "application/json; charset=utf-8"
	TabularContentType  = "text/csv; charset=utf-8"
)

// TabularHeader is the single column header of the tabular document.
const TabularHeader = "filme"

// EncodeDocument returns the compact JSON array form of records. Non-ASCII
// text and HTML characters are written verbatim; an empty set encodes to [].
func EncodeDocument(records scraper.RecordSet) ([]byte, error) {
	if records == nil {
		records = scraper.RecordSet{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeDocument parses a document produced by EncodeDocument.
func DecodeDocument(data []byte) (scraper.RecordSet, error) {
	records := scraper.RecordSet{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return records, nil
}

// emptyField is the quoted form of an empty title. csv.Writer leaves a lone
// empty field unquoted, which readers skip as a blank line.
const emptyField = "\"\"\n"

// EncodeTabular writes records as CSV with a single header row. Every record
// yields exactly one row, including records with an empty title.
func EncodeTabular(records scraper.RecordSet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{TabularHeader}); err != nil {
		return nil, fmt.Errorf("write tabular header: %w", err)
	}
	for _, r := range records {
		if r.Title == "" {
			w.Flush()
			if err := w.Error(); err != nil {
				return nil, fmt.Errorf("flush tabular: %w", err)
			}
			buf.WriteString(emptyField)
			continue
		}
		if err := w.Write([]string{r.Title}); err != nil {
			return nil, fmt.Errorf("write tabular row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush tabular: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTabular reads every row, header included.
func DecodeTabular(r io.Reader) ([][]string, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode tabular: %w", err)
	}
	return rows, nil
}

// Encode returns the text-safe form of a serialized document.
func Encode(document []byte) string {
	return base64.StdEncoding.EncodeToString(document)
}

// Decode reverses Encode.
func Decode(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode encoded document: %w", err)
	}
	return data, nil
}
