package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/storage"
)

// LedgerRepository implements storage.LedgerRepository for BadgerDB.
//
// The dedup index and watermarks live in badger, so every restart resumes
// from the last committed state. Badger transactions give the consistency
// the dedup index needs under concurrent source fetches: when two sources
// race on the same hash, the second MarkSeen commits over an identical key
// and the next HasSeen observes it.
type LedgerRepository struct {
	backend *Backend
}

var _ storage.LedgerRepository = (*LedgerRepository)(nil)

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(backend *Backend) *LedgerRepository {
	return &LedgerRepository{backend: backend}
}

// Close releases repository resources.
func (r *LedgerRepository) Close() error {
	return nil
}

// HasSeen reports whether a content hash has been ingested before.
func (r *LedgerRepository) HasSeen(ctx context.Context, hash core.ID) (bool, error) {
	var seen bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeSeenKey(hash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		seen = true
		return nil
	}, false)
	return seen, err
}

// MarkSeen records a content hash in the dedup index.
func (r *LedgerRepository) MarkSeen(ctx context.Context, hash core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeSeenKey(hash), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetWatermark returns the cursor for a source.
// An unknown source yields a watermark with an empty cursor.
func (r *LedgerRepository) GetWatermark(ctx context.Context, sourceId string) (*core.Watermark, error) {
	wm := &core.Watermark{SourceId: sourceId}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeWatermarkKey(sourceId))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			wm, unmarshalErr = storage.UnmarshalWatermark(val)
			return unmarshalErr
		})
	}, false)
	return wm, err
}

// AdvanceWatermark moves a source's cursor forward.
// Cursors are RFC3339Nano timestamps, so lexicographic comparison matches
// chronological order. A regression signals a scheduler bug and is rejected.
func (r *LedgerRepository) AdvanceWatermark(ctx context.Context, sourceId, cursor string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeWatermarkKey(sourceId)

		item, err := tx.Get(key)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			var current *core.Watermark
			err = item.Value(func(val []byte) error {
				var unmarshalErr error
				current, unmarshalErr = storage.UnmarshalWatermark(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if cursor < current.Cursor {
				return fmt.Errorf("%w: source %s: %q < %q",
					storage.ErrWatermarkRegression, sourceId, cursor, current.Cursor)
			}
		}

		wm := &core.Watermark{
			SourceId:  sourceId,
			Cursor:    cursor,
			UpdatedAt: time.Now().UTC(),
		}
		if err := tx.Set(key, storage.MarshalWatermark(wm)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// AppendRun appends a completed run record to the run log.
func (r *LedgerRepository) AppendRun(ctx context.Context, record *core.RunRecord) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeRunKey(record.StartedAt, record.RunId)
		if err := tx.Set(key, storage.MarshalRunRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetRuns returns the most recent run records, newest first.
func (r *LedgerRepository) GetRuns(ctx context.Context, limit int) ([]*core.RunRecord, error) {
	var results []*core.RunRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runLogPrefix + ":")
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the last possible run key to start at the newest entry.
		seek := append([]byte(runLogPrefix+":"), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)

		for iter.Seek(seek); iter.Valid() && (limit <= 0 || len(results) < limit); iter.Next() {
			var record *core.RunRecord
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				record, unmarshalErr = storage.UnmarshalRunRecord(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			results = append(results, record)
		}
		return nil
	}, false)
	return results, err
}
