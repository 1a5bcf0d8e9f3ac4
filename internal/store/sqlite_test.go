package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_LoadWithoutSaveReturnsNilNotError(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()

	blob, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestSQLiteStore_SaveThenLoadRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveSnapshot(context.Background(), []byte(`{"orders":[]}`)))
	blob, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"orders":[]}`, string(blob))
}

func TestSQLiteStore_SaveOverwritesPreviousSnapshot(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveSnapshot(context.Background(), []byte(`{"v":1}`)))
	require.NoError(t, s.SaveSnapshot(context.Background(), []byte(`{"v":2}`)))

	blob, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(blob))
}
