// Package sourcestate persists per-URL download state in a bbolt database so
// conditional requests and failure counts survive restarts.
package sourcestate

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/simplefilter/internal/filter/domain"
)

var (
	bucketSources = []byte("sources")
	bucketMeta    = []byte("meta")

	keySchema = []byte("schema")
)

const schemaVersion uint64 = 1

// ErrURLRequired is returned when a state without URL is written.
var ErrURLRequired = errors.New("sourcestate: url required")

// Store is a bbolt-backed fetch state store. It is safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) a Bolt database at path and ensures buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db %q: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSources); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if v := meta.Get(keySchema); len(v) == 8 {
			if got := binary.BigEndian.Uint64(v); got != schemaVersion {
				return fmt.Errorf("unsupported schema version %d", got)
			}
			return nil
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, schemaVersion)
		return meta.Put(keySchema, buf)
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the state recorded for url. ok is false when nothing is stored.
func (s *Store) Get(url string) (st domain.FetchState, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSources).Get([]byte(url))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &st); err != nil {
			return fmt.Errorf("decode state for %q: %w", url, err)
		}
		ok = true
		return nil
	})
	return st, ok, err
}

// Put stores st under st.URL, replacing any previous value.
func (s *Store) Put(st domain.FetchState) error {
	if st.URL == "" {
		return ErrURLRequired
	}
	v, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSources).Put([]byte(st.URL), v)
	})
}

// Delete removes the state of url. Deleting a missing key is not an error.
func (s *Store) Delete(url string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSources).Delete([]byte(url))
	})
}
