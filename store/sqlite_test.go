package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fxsociety/go-session-client/session"
	"github.com/fxsociety/go-session-client/store"
)

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")

	s, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	t.Run("absent key reads empty", func(t *testing.T) {
		value, err := s.Get(session.TokenKey)
		require.NoError(t, err)
		require.Empty(t, value)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(session.TokenKey, "token-1"))

		value, err := s.Get(session.TokenKey)
		require.NoError(t, err)
		require.Equal(t, "token-1", value)
	})

	t.Run("set replaces", func(t *testing.T) {
		require.NoError(t, s.Set(session.TokenKey, "token-2"))

		value, err := s.Get(session.TokenKey)
		require.NoError(t, err)
		require.Equal(t, "token-2", value)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Delete(session.TokenKey))
		require.NoError(t, s.Delete(session.TokenKey))

		value, err := s.Get(session.TokenKey)
		require.NoError(t, err)
		require.Empty(t, value)
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")

	s, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Set(session.TokenKey, "persisted-token"))
	require.NoError(t, s.Set(session.EmailHintKey, "john.doe@example.com"))
	require.NoError(t, s.Close())

	reopened, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	value, err := reopened.Get(session.TokenKey)
	require.NoError(t, err)
	require.Equal(t, "persisted-token", value)

	hint, err := reopened.Get(session.EmailHintKey)
	require.NoError(t, err)
	require.Equal(t, "john.doe@example.com", hint)
}
