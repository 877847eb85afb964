package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close releases repository resources.
func (r *DocumentRepository) Close() error {
	return nil
}

// AddDocuments stores one or more raw documents.
func (r *DocumentRepository) AddDocuments(ctx context.Context, docs ...*core.RawDocument) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, doc := range docs {
			if doc.InsertedAt.IsZero() {
				doc.InsertedAt = time.Now().UTC()
			}

			key := makeDocKey(doc.Id)
			if err := tx.Set(key, storage.MarshalRawDocument(doc)); err != nil {
				return err
			}

			// Company+time index for range queries and export
			indexKey := makeCompanyTimeKey(docCompanyTimePrefix, doc.CompanyCode, doc.Timestamp, doc.Id)
			if err := tx.Set(indexKey, storage.MarshalID(doc.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.RawDocument, error) {
	var result *core.RawDocument
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			result, unmarshalErr = storage.UnmarshalRawDocument(val)
			return unmarshalErr
		})
	}, false)
	return result, err
}

// GetDocumentsByCompany retrieves documents for a company within [from, to),
// optionally filtered by type, ordered by timestamp.
func (r *DocumentRepository) GetDocumentsByCompany(ctx context.Context, code string, types []core.DocType, from, to time.Time) ([]*core.RawDocument, error) {
	typeSet := make(map[core.DocType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var results []*core.RawDocument
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docCompanyTimePrefix + ":" + code + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := makePartialCompanyTimeKey(docCompanyTimePrefix, code, from)
		end := makePartialCompanyTimeKey(docCompanyTimePrefix, code, to)

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

			docItem, err := tx.Get(makeDocKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					continue // dangling index entry
				}
				return err
			}
			var doc *core.RawDocument
			err = docItem.Value(func(val []byte) error {
				var unmarshalErr error
				doc, unmarshalErr = storage.UnmarshalRawDocument(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}

			if len(typeSet) > 0 && !typeSet[doc.Type] {
				continue
			}
			results = append(results, doc)
		}
		return nil
	}, false)

	return results, err
}

// CountDocuments returns the total number of stored documents.
func (r *DocumentRepository) CountDocuments(ctx context.Context) (int, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docRecordPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}
