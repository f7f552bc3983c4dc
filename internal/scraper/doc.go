// Package scraper defines the core types shared across the chart scraping
// subsystems: the record model, the collaborator interfaces used by the
// pipeline, and the error kinds surfaced by fetch, render, and persistence.
package scraper
