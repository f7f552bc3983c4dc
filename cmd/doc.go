// Package cmd defines and implements the CLI commands for the chartscraper
// executable.
//
// Architecture overview:
//   - Scheduler: internal/scheduler fires the pipeline once at a configured instant (the default), on a fixed
//     interval, or on a cron expression. Overlapping firings are skipped, never queued.
//   - Pipeline: internal/pipeline fetches the chart page with the Colly-based fetcher, extracts titles with goquery,
//     and hands the RecordSet to the writer. A headless Chromedp screenshot is attempted after every run; its failure
//     is recorded in the run report and never fails the run.
//   - Persistence: internal/writer writes the JSON document and CSV file to the output directory, appends rows to the
//     queryable store (SQLite by default, Postgres when configured), and replaces the base64 cache (optionally
//     mirrored to Redis). Artifacts can be copied to a GCS bucket, and a run notification is published to Pub/Sub
//     when a topic is configured.
//   - HTTP API: internal/api serves the banner, every stored row, the latest cached snapshot, health, and metrics.
//   - Configuration & plumbing: Viper populates config from a YAML file and SCRAPER_* env vars; zap provides
//     structured logging to stderr and a log file; Prometheus metrics cover runs, sinks, and requests; OpenTelemetry
//     spans wrap each pipeline stage.
//
// Quick checklist:
//   - Run once: chartscraper run --config config.yaml
//   - Serve: chartscraper serve --config config.yaml (SCRAPER_SERVER_PORT, SCRAPER_SCHEDULE_MODE,
//     SCRAPER_SCHEDULE_AT, SCRAPER_STORE_DRIVER, SCRAPER_CACHE_REDIS_ADDR, SCRAPER_NOTIFY_TOPIC override the file).
//   - SIGINT/SIGTERM stops the scheduler, waits for the in-flight run, and drains the HTTP server.
package cmd
