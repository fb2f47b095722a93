package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_PositionsPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "tabtune.db")
	ctx := context.Background()

	s, err := openSQLiteStore(path)
	require.NoError(t, err)

	_, ok, err := s.GetPosition(ctx, prefKeySpeed)
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should have no speed position")

	require.NoError(t, s.SetPosition(ctx, prefKeySpeed, 62.5))
	require.NoError(t, s.SetPosition(ctx, prefKeyBoost, 15))
	require.NoError(t, s.SetPosition(ctx, prefKeySpeed, 70.25))
	require.NoError(t, s.Close())

	s, err = openSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	pos, ok, err := s.GetPosition(ctx, prefKeySpeed)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 70.25, pos)

	pos, ok, err = s.GetPosition(ctx, prefKeyBoost)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 15.0, pos)
}

func TestSQLiteStore_CorruptValue(t *testing.T) {
	s, err := openSQLiteStore(filepath.Join(t.TempDir(), "tabtune.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.Exec(`INSERT INTO persistent_state (key, value) VALUES ('speed', 'fast')`)
	require.NoError(t, err)

	_, _, err = s.GetPosition(context.Background(), prefKeySpeed)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore()

	_, ok, err := s.GetPosition(ctx, prefKeyBoost)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPosition(ctx, prefKeyBoost, 40))
	pos, ok, err := s.GetPosition(ctx, prefKeyBoost)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 40.0, pos)
}

func TestOpenStore_EmptyPathIsMemory(t *testing.T) {
	s, err := openStore("")
	require.NoError(t, err)
	_, isMem := s.(*memoryStore)
	assert.True(t, isMem)
}
