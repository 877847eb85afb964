package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
// It doubles as the vector store: chunks carry their embedding and
// similarity queries scan the chunk keyspace.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{backend: backend}
}

// Close releases repository resources.
func (r *ChunkRepository) Close() error {
	return nil
}

// UpsertChunks stores chunks, skipping any whose ID already exists.
// Chunk IDs are content-derived, so an existing ID means identical text
// has already been embedded and stored.
func (r *ChunkRepository) UpsertChunks(ctx context.Context, chunks ...*core.Chunk) (int, error) {
	written := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.Id)

			_, err := tx.Get(key)
			if err == nil {
				continue // embed-once: already stored
			}
			if err != badger.ErrKeyNotFound {
				return err
			}

			if chunk.InsertedAt.IsZero() {
				chunk.InsertedAt = time.Now().UTC()
			}

			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
			indexKey := makeCompanyTimeKey(chunkCompanyTimeIndex, chunk.CompanyCode, chunk.Timestamp, chunk.Id)
			if err := tx.Set(indexKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
			written++
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return written, nil
}

// HasChunk reports whether a chunk with the given ID exists.
func (r *ChunkRepository) HasChunk(ctx context.Context, id core.ID) (bool, error) {
	var found bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeChunkKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// GetChunks retrieves chunks by ID. Missing IDs are silently skipped.
func (r *ChunkRepository) GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error) {
	results := make([]*core.Chunk, 0, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := tx.Get(makeChunkKey(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var chunk *core.Chunk
			err = item.Value(func(val []byte) error {
				var unmarshalErr error
				chunk, unmarshalErr = storage.UnmarshalChunk(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			results = append(results, chunk)
		}
		return nil
	}, false)
	return results, err
}

// GetChunksByCompany retrieves chunks for a company within [from, to),
// optionally filtered by type, ordered by timestamp.
func (r *ChunkRepository) GetChunksByCompany(ctx context.Context, code string, types []core.DocType, from, to time.Time) ([]*core.Chunk, error) {
	typeSet := make(map[core.DocType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkCompanyTimeIndex + ":" + code + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := makePartialCompanyTimeKey(chunkCompanyTimeIndex, code, from)
		end := makePartialCompanyTimeKey(chunkCompanyTimeIndex, code, to)

		for iter.Seek(start); iter.Valid(); iter.Next() {
			item := iter.Item()
			if string(item.Key()[:len(end)]) >= string(end) {
				break
			}

			var id core.ID
			err := item.Value(func(val []byte) error {
				var unmarshalErr error
				id, unmarshalErr = storage.UnmarshalID(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}

			chunkItem, err := tx.Get(makeChunkKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					continue
				}
				return err
			}
			var chunk *core.Chunk
			err = chunkItem.Value(func(val []byte) error {
				var unmarshalErr error
				chunk, unmarshalErr = storage.UnmarshalChunk(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}

			if len(typeSet) > 0 && !typeSet[chunk.Type] {
				continue
			}
			results = append(results, chunk)
		}
		return nil
	}, false)
	return results, err
}

// FindSimilar returns up to limit chunks matching the filter, ordered by
// similarity to the query vector. Score is the dot product, a cosine
// similarity for normalized embeddings. Ties order by chunk ID ascending
// so a fixed store and query always produce the same ordering.
func (r *ChunkRepository) FindSimilar(ctx context.Context, vector []float32, filter storage.Filter, limit int) ([]*core.Evidence, error) {
	codeSet := make(map[string]bool, len(filter.CompanyCodes))
	for _, c := range filter.CompanyCodes {
		codeSet[c] = true
	}
	typeSet := make(map[core.DocType]bool, len(filter.Types))
	for _, t := range filter.Types {
		typeSet[t] = true
	}

	var results []*core.Evidence
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				chunk, unmarshalErr = storage.UnmarshalChunk(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if chunk == nil || len(chunk.Vector) == 0 {
				continue
			}

			if len(codeSet) > 0 && !codeSet[chunk.CompanyCode] {
				continue
			}
			if len(typeSet) > 0 && !typeSet[chunk.Type] {
				continue
			}
			if !filter.Since.IsZero() && chunk.Timestamp.Before(filter.Since) {
				continue
			}

			results = append(results, &core.Evidence{
				Chunk: chunk,
				Score: float64(dotProduct(vector, chunk.Vector)),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.Evidence) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.Chunk.Id < b.Chunk.Id {
			return -1
		}
		if a.Chunk.Id > b.Chunk.Id {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
