// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/hegemon/ai"
	"github.com/poiesic/hegemon/chunk"
	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/sources"
	"github.com/poiesic/hegemon/storage"
)

// Clock supplies the current time. Injected so tests control cadence.
type Clock func() time.Time

// Default fetch cadence per document type.
var defaultIntervals = map[core.DocType]time.Duration{
	core.DocTypeDisclosure: 6 * time.Hour,
	core.DocTypeNews:       30 * time.Minute,
	core.DocTypeMarket:     time.Hour,
}

const (
	defaultRetryAttempts = 3
	defaultRetryBase     = 500 * time.Millisecond
)

// Scheduler drives the ingestion write path. Each Tick it fetches every
// due source from its watermark, normalizes and deduplicates the items,
// stores them, embeds their chunks, and appends one run record.
//
// All durable progress lives in the run ledger; the scheduler keeps only
// cadence bookkeeping in memory, so a crash mid-tick loses at most the
// uncommitted tail of a fetch, which the watermark refetches next time.
type Scheduler struct {
	docs       storage.DocumentRepository
	chunks     storage.ChunkRepository
	ledger     storage.LedgerRepository
	registry   *core.Registry
	connectors []sources.Connector
	proc       *documentProcessor

	pool          *ants.Pool
	clock         Clock
	intervals     map[core.DocType]time.Duration
	retryAttempts int
	retryBase     time.Duration
	splitter      *chunk.Splitter

	mu       sync.Mutex
	inFlight map[string]bool
	lastTick map[string]time.Time

	logger *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithPoolSize sets the worker pool size for concurrent source fetches.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Scheduler) error {
		if size < 1 {
			size = 1
		}
		if s.pool != nil {
			s.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		s.pool = pool
		return nil
	}
}

// WithClock sets the time source. Default is time.Now.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) error {
		if clock != nil {
			s.clock = clock
		}
		return nil
	}
}

// WithInterval overrides the fetch cadence for a document type.
func WithInterval(docType core.DocType, interval time.Duration) Option {
	return func(s *Scheduler) error {
		if interval > 0 {
			s.intervals[docType] = interval
		}
		return nil
	}
}

// WithRetryPolicy sets the attempt cap and base delay for fetch and
// embedding retries.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Scheduler) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		s.retryAttempts = maxAttempts
		s.retryBase = baseDelay
		return nil
	}
}

// WithSplitter sets a custom chunk splitter.
func WithSplitter(splitter *chunk.Splitter) Option {
	return func(s *Scheduler) error {
		if splitter != nil {
			s.splitter = splitter
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewScheduler creates an ingestion scheduler over the given connectors.
func NewScheduler(
	docs storage.DocumentRepository,
	chunks storage.ChunkRepository,
	ledger storage.LedgerRepository,
	registry *core.Registry,
	embedder ai.Embedder,
	connectors []sources.Connector,
	opts ...Option,
) (*Scheduler, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if ledger == nil {
		return nil, ErrLedgerRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	intervals := make(map[core.DocType]time.Duration, len(defaultIntervals))
	for t, d := range defaultIntervals {
		intervals[t] = d
	}

	s := &Scheduler{
		docs:          docs,
		chunks:        chunks,
		ledger:        ledger,
		registry:      registry,
		connectors:    connectors,
		pool:          pool,
		clock:         time.Now,
		intervals:     intervals,
		retryAttempts: defaultRetryAttempts,
		retryBase:     defaultRetryBase,
		inFlight:      make(map[string]bool),
		lastTick:      make(map[string]time.Time),
		logger:        slog.Default().With("component", "scheduler"),
	}

	for _, opt := range opts {
		if optErr := opt(s); optErr != nil {
			s.Release()
			return nil, optErr
		}
	}

	proc, err := newDocumentProcessor(chunks, embedder, s.splitter, s.logger)
	if err != nil {
		s.Release()
		return nil, err
	}
	s.proc = proc

	return s, nil
}

// Tick runs one scheduling round: every due source is fetched and
// processed, then a single run record is appended. Returns the record,
// or nil when no source was due.
func (s *Scheduler) Tick(ctx context.Context) (*core.RunRecord, error) {
	now := s.clock().UTC()
	due := s.claimDue(now)
	if len(due) == 0 {
		return nil, nil
	}

	stats := make(map[string]core.SourceRunStats, len(due))
	var statsMu sync.Mutex
	var wg sync.WaitGroup

	for _, connector := range due {
		connector := connector
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			defer s.release(connector.ID())

			st := s.runSource(ctx, connector)
			statsMu.Lock()
			stats[connector.ID()] = st
			statsMu.Unlock()
		})
		if err != nil {
			wg.Done()
			s.release(connector.ID())
			statsMu.Lock()
			stats[connector.ID()] = core.SourceRunStats{Err: err.Error()}
			statsMu.Unlock()
		}
	}
	wg.Wait()

	finished := s.clock().UTC()
	record := &core.RunRecord{
		RunId:      core.IDFromContent(now.Format(time.RFC3339Nano)),
		StartedAt:  now,
		FinishedAt: finished,
		Sources:    stats,
		Status:     runStatus(stats),
	}

	if err := s.ledger.AppendRun(ctx, record); err != nil {
		s.logger.Error("failed to append run record", "run", record.RunId, "err", err)
		return record, err
	}

	s.logger.Info("tick complete",
		"run", record.RunId,
		"sources", len(stats),
		"status", record.Status.String(),
		"elapsed", finished.Sub(now))
	return record, nil
}

// Run ticks on the given interval until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error("tick failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release releases the worker pool.
// The scheduler should not be used after calling Release.
func (s *Scheduler) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// claimDue returns the connectors whose cadence has elapsed and marks
// them in flight. A source with a fetch still running is never claimed
// again, whatever its cadence says.
func (s *Scheduler) claimDue(now time.Time) []sources.Connector {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []sources.Connector
	for _, connector := range s.connectors {
		id := connector.ID()
		if s.inFlight[id] {
			continue
		}
		interval, ok := s.intervals[connector.Type()]
		if !ok {
			interval = time.Hour
		}
		last := s.lastTick[id]
		if !last.IsZero() && now.Before(last.Add(interval)) {
			continue
		}
		s.inFlight[id] = true
		s.lastTick[id] = now
		due = append(due, connector)
	}
	return due
}

func (s *Scheduler) release(sourceId string) {
	s.mu.Lock()
	delete(s.inFlight, sourceId)
	s.mu.Unlock()
}

// runSource fetches one source from its watermark and processes the
// items in order. The watermark advances only past fully committed
// items; a failure mid-batch leaves the tail for the next fetch.
func (s *Scheduler) runSource(ctx context.Context, connector sources.Connector) core.SourceRunStats {
	var stats core.SourceRunStats
	logger := s.logger.With("source", connector.ID())

	watermark, err := s.ledger.GetWatermark(ctx, connector.ID())
	if err != nil {
		logger.Error("failed to read watermark", "err", err)
		stats.Err = err.Error()
		return stats
	}

	var items []sources.Item
	var next string
	err = RetryWithBackoff(ctx, func() error {
		var fetchErr error
		items, next, fetchErr = connector.FetchSince(ctx, watermark.Cursor)
		return fetchErr
	}, s.retryAttempts, s.retryBase)
	if err != nil {
		logger.Error("fetch failed after retries", "err", err)
		stats.Err = err.Error()
		return stats
	}

	stats.Fetched = len(items)

	// Cursor of the last item whose document, chunks, and dedup entry
	// are all durably committed.
	committed := ""
	for _, item := range items {
		doc := s.normalize(connector, item)

		if err := core.ValidateRawDocument(doc, s.registry); err != nil {
			logger.Warn("skipping invalid item", "ref", item.ProviderRef, "err", err)
			stats.Skipped++
			committed = itemCursor(item)
			continue
		}

		seen, err := s.ledger.HasSeen(ctx, doc.Id)
		if err != nil {
			stats.Failed++
			stats.Err = err.Error()
			break
		}
		if seen {
			stats.Skipped++
			committed = itemCursor(item)
			continue
		}

		if err := s.commitItem(ctx, doc); err != nil {
			logger.Error("failed to commit item", "ref", item.ProviderRef, "err", err)
			stats.Failed++
			stats.Err = err.Error()
			break
		}

		stats.New++
		committed = itemCursor(item)
	}

	// On a clean pass take the connector's cursor, which also covers
	// fetches that returned nothing new.
	cursor := committed
	if stats.Err == "" {
		cursor = next
	}
	if cursor != "" && cursor != watermark.Cursor {
		if err := s.ledger.AdvanceWatermark(ctx, connector.ID(), cursor); err != nil {
			logger.Error("failed to advance watermark", "cursor", cursor, "err", err)
			if stats.Err == "" {
				stats.Err = err.Error()
			}
		}
	}

	logger.Debug("source processed",
		"fetched", stats.Fetched, "new", stats.New, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats
}

// commitItem stores the document, embeds its chunks, and marks it seen.
// Embedding is retried since the embedding service may be transiently down.
func (s *Scheduler) commitItem(ctx context.Context, doc *core.RawDocument) error {
	if err := s.docs.AddDocuments(ctx, doc); err != nil {
		return err
	}

	err := RetryWithBackoff(ctx, func() error {
		_, procErr := s.proc.process(ctx, doc)
		return procErr
	}, s.retryAttempts, s.retryBase)
	if err != nil {
		return err
	}

	return s.ledger.MarkSeen(ctx, doc.Id)
}

func (s *Scheduler) normalize(connector sources.Connector, item sources.Item) *core.RawDocument {
	content := strings.TrimSpace(item.Content)
	return &core.RawDocument{
		Id:          core.HashContent(content),
		SourceId:    connector.ID(),
		ProviderRef: item.ProviderRef,
		CompanyCode: item.CompanyCode,
		Type:        connector.Type(),
		Timestamp:   item.Timestamp.UTC(),
		Content:     content,
	}
}

func itemCursor(item sources.Item) string {
	return item.Timestamp.UTC().Format(time.RFC3339Nano)
}

func runStatus(stats map[string]core.SourceRunStats) core.RunStatus {
	failed := 0
	for _, st := range stats {
		if st.Err != "" {
			failed++
		}
	}
	switch {
	case failed == 0:
		return core.RunStatusSuccess
	case failed == len(stats):
		return core.RunStatusFailed
	default:
		return core.RunStatusPartial
	}
}
