package portalclient

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobbygour30/admitcard/internal/adminauth"
	"github.com/bobbygour30/admitcard/internal/domain"
)

func openMemoryStore(t *testing.T, now time.Time) *TokenStore {
	t.Helper()
	store, err := OpenTokenStore(":memory:")
	require.NoError(t, err)
	store.now = func() time.Time { return now }
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTokenStoreSessions(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := openMemoryStore(t, now)
	ctx := context.Background()
	base := "http://localhost:8080"

	_, ok, err := store.LoadSession(ctx, base)
	require.NoError(t, err)
	require.False(t, ok)

	err = store.SaveSession(ctx, base, adminauth.Session{Username: "admin"})
	require.ErrorIs(t, err, ErrNoToken)

	session := adminauth.Session{
		Username:    "admin",
		Token:       "tok",
		ExpiresAt:   now.Add(time.Hour),
		Credentials: adminauth.Credentials{Username: "admin", Password: "s3cret"},
	}
	require.NoError(t, store.SaveSession(ctx, base, session))

	loaded, ok, err := store.LoadSession(ctx, base)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok", loaded.Token)
	require.True(t, loaded.ExpiresAt.Equal(session.ExpiresAt))
	require.Empty(t, loaded.Credentials.Password)

	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, ok, err = store.LoadSession(ctx, base)
	require.NoError(t, err)
	require.False(t, ok)

	store.now = func() time.Time { return now }
	_, ok, err = store.LoadSession(ctx, base)
	require.NoError(t, err)
	require.False(t, ok, "expired session should have been deleted")
}

func TestTokenStoreFlows(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := openMemoryStore(t, now)
	ctx := context.Background()

	require.Error(t, store.SaveFlow(ctx, FlowRecord{Name: "current"}))
	require.NoError(t, store.SaveFlow(ctx, FlowRecord{Name: "current", ApplicationNumber: "cbt123456", Union: domain.UnionTirhut}))
	require.NoError(t, store.SaveFlow(ctx, FlowRecord{Name: "current", ApplicationNumber: "CBT654321", Union: domain.UnionHarit}))

	record, ok, err := store.LoadFlow(ctx, "current")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "CBT654321", record.ApplicationNumber)
	require.Equal(t, domain.UnionHarit, record.Union)
	require.True(t, record.UpdatedAt.Equal(now))

	_, ok, err = store.LoadFlow(ctx, "other")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTokenStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "portalctl.db")
	store, err := OpenTokenStore(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.SaveFlow(ctx, FlowRecord{Name: "current", ApplicationNumber: "CBT123456"}))
	require.NoError(t, store.Close())

	reopened, err := OpenTokenStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	record, ok, err := reopened.LoadFlow(ctx, "current")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "CBT123456", record.ApplicationNumber)
}
