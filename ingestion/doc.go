// Package ingestion provides the scheduled write path for raw documents.
//
// The Scheduler type manages the ingestion workflow, including:
//   - Fetching due sources from their watermarks on a per-type cadence
//   - Normalizing, validating, and deduplicating fetched items
//   - Storing documents and embedding their chunks
//   - Appending one run record per tick to the run ledger
//
// Fetches run concurrently on a worker pool, with at most one in-flight
// fetch per source. A source failure is retried with exponential backoff
// and, once exhausted, recorded in the run ledger without touching that
// source's watermark or affecting other sources.
package ingestion
