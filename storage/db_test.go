package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("alpha"), []byte("one")))

	value, err := db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), value)

	require.NoError(t, db.Put([]byte("alpha"), []byte("two")))
	value, err = db.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), value)

	require.NoError(t, db.Delete([]byte("alpha")))
	_, err = db.Get([]byte("alpha"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemDBMissingKey(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("absent"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("original")
	require.NoError(t, db.Put([]byte("key"), value))
	value[0] = 'X'

	stored, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), stored)

	stored[0] = 'Y'
	again, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again)
}

func TestLevelDBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("beta"), []byte("persisted")))

	value, err := db.Get([]byte("beta"))
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), value)

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, db.Delete([]byte("beta")))
	_, err = db.Get([]byte("beta"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}
