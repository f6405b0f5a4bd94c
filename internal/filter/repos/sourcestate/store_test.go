package sourcestate

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/simplefilter/internal/filter/domain"
)

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.db")
}

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStore_PutGetDelete(t *testing.T) {
	st := openStore(t, tempDB(t))

	_, ok, err := st.Get("https://lists.example/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	want := domain.FetchState{
		URL:          "https://lists.example/a.txt",
		ETag:         `"abc"`,
		LastModified: "Mon, 02 Jan 2006 15:04:05 GMT",
		LastSuccess:  time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
		Failures:     0,
		Size:         1234,
	}
	require.NoError(t, st.Put(want))

	got, ok, err := st.Get(want.URL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.ETag, got.ETag)
	assert.Equal(t, want.LastModified, got.LastModified)
	assert.True(t, want.LastSuccess.Equal(got.LastSuccess))
	assert.Equal(t, want.Size, got.Size)

	require.NoError(t, st.Delete(want.URL))
	_, ok, err = st.Get(want.URL)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, st.Delete("https://never.stored/x.txt"))
}

func TestStore_PutRequiresURL(t *testing.T) {
	st := openStore(t, tempDB(t))
	assert.True(t, errors.Is(st.Put(domain.FetchState{ETag: "x"}), ErrURLRequired))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := tempDB(t)
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Put(domain.FetchState{URL: "https://a.example/l.txt", Failures: 3}))
	require.NoError(t, st.Close())

	st2 := openStore(t, path)
	got, ok, err := st2.Get("https://a.example/l.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.Failures)
}

func TestOpen_RejectsUnknownSchema(t *testing.T) {
	path := tempDB(t)
	db, err := bbolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, 99)
		return b.Put(keySchema, buf)
	}))
	require.NoError(t, db.Close())

	_, err = Open(path)
	assert.Error(t, err)
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "state.db"))
	assert.Error(t, err)
}

func TestStore_CorruptValue(t *testing.T) {
	st := openStore(t, tempDB(t))
	require.NoError(t, st.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSources).Put([]byte("https://x.example/l.txt"), []byte("{not json"))
	}))
	_, _, err := st.Get("https://x.example/l.txt")
	assert.Error(t, err)
}
