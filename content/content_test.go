package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmscore.evalgo.org/rmserrors"
)

func TestDirStoreRoundTrip(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	assert.False(t, store.Exists("r1"))

	require.NoError(t, store.Store("r1", []byte("hello")))
	assert.True(t, store.Exists("r1"))

	b, err := store.Load("r1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)
}

func TestDirStoreLoadMissingReturnsContentMissing(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("absent")
	var cm *rmserrors.ContentMissing
	assert.ErrorAs(t, err, &cm)
}

func TestDirStoreOverwrite(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Store("r1", []byte("first")))
	require.NoError(t, store.Store("r1", []byte("second")))

	b, err := store.Load("r1")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), b)
}

func TestNewDirStoreCreatesDirectory(t *testing.T) {
	root := t.TempDir() + "/nested/content"
	store, err := NewDirStore(root)
	require.NoError(t, err)
	require.NoError(t, store.Store("r1", []byte("x")))
	assert.True(t, store.Exists("r1"))
}
