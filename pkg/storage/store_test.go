package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportStoreSaveAndPath(t *testing.T) {
	store, err := NewExportStore(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("tasks/board.csv", []byte("Title,Status\n"))
	require.NoError(t, err)
	assert.Equal(t, "tasks/board.csv", name)

	data, err := os.ReadFile(store.Path(name))
	require.NoError(t, err)
	assert.Equal(t, "Title,Status\n", string(data))
}

func TestExportStoreSweep(t *testing.T) {
	store, err := NewExportStore(t.TempDir())
	require.NoError(t, err)

	stale, err := store.Save("tasks/stale.csv", []byte("old"))
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path(stale), past, past))

	fresh, err := store.Save("tasks/fresh.csv", []byte("new"))
	require.NoError(t, err)

	deleted, err := store.Sweep(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, deleted)

	_, err = os.Stat(store.Path(fresh))
	assert.NoError(t, err)
	_, err = os.Stat(store.Path(stale))
	assert.True(t, os.IsNotExist(err))
}
