package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct {
	getErr error
	setErr error
}

func (f failingStorage) Get(string) (string, bool, error) { return "", false, f.getErr }
func (f failingStorage) Set(string, string) error        { return f.setErr }

func TestStoreID(t *testing.T) {
	storage := NewMemoryStorage()
	store := New(storage)

	id, err := store.ID()
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "id should be a uuid")

	again, err := store.ID()
	require.NoError(t, err)
	assert.Equal(t, id, again)

	stored, ok, err := storage.Get(DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, stored)

	// A second store over the same storage sees the same id.
	other, err := New(storage).ID()
	require.NoError(t, err)
	assert.Equal(t, id, other)
}

func TestStoreUsesExistingID(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set("custom", "existing-id"))

	id, err := New(storage, WithKey("custom")).ID()
	require.NoError(t, err)
	assert.Equal(t, "existing-id", id)
}

func TestStoreNewSession(t *testing.T) {
	storage := NewMemoryStorage()
	store := New(storage)

	first, err := store.ID()
	require.NoError(t, err)

	var seen []string
	store.OnReset(func(id string) { seen = append(seen, "a:"+id) })
	store.OnReset(func(id string) { seen = append(seen, "b:"+id) })

	second, err := store.NewSession()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{"a:" + second, "b:" + second}, seen)

	current, err := store.ID()
	require.NoError(t, err)
	assert.Equal(t, second, current)

	stored, _, _ := storage.Get(DefaultKey)
	assert.Equal(t, second, stored)
}

func TestStoreErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := New(failingStorage{getErr: boom}).ID()
	assert.ErrorIs(t, err, boom)

	_, err = New(failingStorage{setErr: boom}).ID()
	assert.ErrorIs(t, err, boom)

	called := false
	store := New(failingStorage{setErr: boom})
	store.OnReset(func(string) { called = true })
	_, err = store.NewSession()
	assert.ErrorIs(t, err, boom)
	assert.False(t, called, "hooks must not run when the id was not stored")
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	storage := NewFileStorage(path)

	_, ok, err := storage.Get(DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.Set(DefaultKey, "abc"))
	require.NoError(t, storage.Set("other", "xyz"))

	reopened := NewFileStorage(path)
	v, ok, err := reopened.Get(DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	v, _, _ = reopened.Get("other")
	assert.Equal(t, "xyz", v)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestFileStorageCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := NewFileStorage(path).Get(DefaultKey)
	assert.Error(t, err)
}
