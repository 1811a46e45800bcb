package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/hyperjump/mihari/internal/apperr"
	"github.com/hyperjump/mihari/internal/codec"
	"github.com/hyperjump/mihari/internal/ident"
	"github.com/hyperjump/mihari/internal/models"
)

var (
	bucketQueries = []byte("queries")
	bucketResults = []byte("results")
)

// BoltStore is a MatchStore backed by a bbolt file. Records live in the
// results bucket under key queryID(8B BE) ++ recordID(8B BE), so all
// records of one query form a contiguous key range and retrieval is a
// prefix cursor scan. An in-memory per-query index, rebuilt on open,
// serves reads without touching disk.
type BoltStore struct {
	db *bolt.DB

	mu      sync.RWMutex
	byQuery map[ident.QueryID][]*models.IndexData
	count   int64
}

// OpenBolt opens (or creates) the store file at path, creating parent
// directories as needed, and rebuilds the in-memory index from the
// persisted records. Undecodable values abort the open with a parsing
// error rather than being skipped.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ErrStorage, "create store dir: %v", err)
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStorage, "open %s: %v", path, err)
	}
	s := &BoltStore{
		db:      db,
		byQuery: make(map[ident.QueryID][]*models.IndexData),
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) load() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketQueries); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketResults); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.ErrStorage, "create buckets: %v", err)
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResults).ForEach(func(k, v []byte) error {
			rec, err := codec.DecodeRecord(v)
			if err != nil {
				return fmt.Errorf("key %x: %w", k, err)
			}
			s.byQuery[rec.SourceQuery] = append(s.byQuery[rec.SourceQuery], rec)
			s.count++
			return nil
		})
	})
}

// PutQuery writes q to the queries bucket, keyed by its id.
func (s *BoltStore) PutQuery(ctx context.Context, q *models.PersistentQuery) error {
	value, err := codec.EncodeQuery(q)
	if err != nil {
		return apperr.Wrap(apperr.ErrStorage, "encode query %d: %v", q.ID, err)
	}
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(q.ID))
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueries).Put(key[:], value)
	})
	if err != nil {
		return apperr.Wrap(apperr.ErrStorage, "put query %d: %v", q.ID, err)
	}
	return nil
}

// Queries decodes every persisted query, in key order. The persisted
// result count can lag behind records written after the query was saved,
// so it is recomputed from the rebuilt record index.
func (s *BoltStore) Queries(ctx context.Context) ([]*models.PersistentQuery, error) {
	var out []*models.PersistentQuery
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueries).ForEach(func(k, v []byte) error {
			q, err := codec.DecodeQuery(v)
			if err != nil {
				return err
			}
			s.mu.RLock()
			q.ResultCount = uint32(len(s.byQuery[q.ID]))
			s.mu.RUnlock()
			out = append(out, q)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Store persists rec and publishes it to the in-memory index. The write
// hits disk first; only after the transaction commits does the record
// become visible to Results and the owner's result count move.
func (s *BoltStore) Store(ctx context.Context, owner *models.PersistentQuery, rec *models.IndexData) error {
	value, err := codec.EncodeRecord(rec)
	if err != nil {
		return apperr.Wrap(apperr.ErrStorage, "encode record %d: %v", rec.Key, err)
	}
	key := recordKey(rec.SourceQuery, rec.Key)
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResults).Put(key[:], value)
	})
	if err != nil {
		return apperr.Wrap(apperr.ErrStorage, "put record %d/%d: %v", rec.SourceQuery, rec.Key, err)
	}

	s.mu.Lock()
	s.byQuery[rec.SourceQuery] = append(s.byQuery[rec.SourceQuery], rec)
	s.count++
	s.mu.Unlock()

	if owner != nil {
		owner.AddResult()
	}
	return nil
}

// Results returns the records accumulated for id. The slice is a copy;
// callers may keep it.
func (s *BoltStore) Results(id ident.QueryID) []*models.IndexData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.byQuery[id]
	out := make([]*models.IndexData, len(records))
	copy(out, records)
	return out
}

// CountRecords reports the total stored record count.
func (s *BoltStore) CountRecords() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func recordKey(q ident.QueryID, r ident.RecordID) [16]byte {
	var key [16]byte
	binary.BigEndian.PutUint64(key[:8], uint64(q))
	binary.BigEndian.PutUint64(key[8:], uint64(r))
	return key
}
