// Package api hosts the read-only HTTP server for the latest chart snapshot.
// Routes:
//   - GET / returns a plain-text banner.
//   - GET /movies lists every stored row in insertion order.
//   - GET /movies/base64 returns the decoded cached document of the last run.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//
// Handlers never trigger a pipeline run.
package api
