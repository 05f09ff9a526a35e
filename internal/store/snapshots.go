package store

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
	apperrors "github.com/pilltrack/pilltrack/internal/errors"
	"github.com/pilltrack/pilltrack/internal/metrics"
)

// Snapshot documents are whole-collection JSON blobs keyed by logical name
// ("medications", "preferences", "behavior:<id>", ...). Reads are tolerant:
// an absent or unparseable document behaves like an empty one so a bad write
// never locks the user out of their data.

// SaveDocument marshals v and writes it under the given logical name
func (s *Store) SaveDocument(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrSnapshotWrite.Code, "failed to encode snapshot "+name)
	}

	err = s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("doc:"+name), data)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrSnapshotWrite.Code, "failed to write snapshot "+name)
	}

	metrics.RecordSnapshotSave()
	return nil
}

// LoadDocument reads a snapshot into v. Returns false when the document is
// absent or corrupt; v is left untouched so callers keep their zero value.
func (s *Store) LoadDocument(name string, v interface{}) (bool, error) {
	var data []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("doc:" + name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		metrics.RecordSnapshotLoadError()
		return false, nil
	}

	return true, nil
}

// DeleteDocument removes a snapshot document
func (s *Store) DeleteDocument(name string) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte("doc:" + name))
	})
}

// ListDocuments returns the logical names of stored documents with the prefix
func (s *Store) ListDocuments(prefix string) ([]string, error) {
	var names []string
	fullPrefix := []byte("doc:" + prefix)

	err := s.badger.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
			names = append(names, string(it.Item().Key())[len("doc:"):])
		}
		return nil
	})

	return names, err
}
