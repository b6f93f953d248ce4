package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandkasten/broker/internal/session"
)

func TestSQLiteStoreRoundTrips(t *testing.T) {
	s, err := OpenSQLiteFallback(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	sess := &session.Session{ID: "s1", Type: session.KindExecution, Status: session.StatusRunning, CreatedAt: time.Now()}
	require.NoError(t, s.Put(ctx, sess))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.Status, got.Status)
}

func TestSQLiteStoreGetMissingReturnsNilNoError(t *testing.T) {
	s, err := OpenSQLiteFallback(":memory:")
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStoreDeleteThenAbsent(t *testing.T) {
	s, err := OpenSQLiteFallback(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &session.Session{ID: "s2"}))
	require.NoError(t, s.Delete(ctx, "s2"))

	got, err := s.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStoreListOrdersByUpdatedAtDesc(t *testing.T) {
	s, err := OpenSQLiteFallback(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &session.Session{ID: "a"}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Put(ctx, &session.Session{ID: "b"}))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
}

func TestSQLiteStorePutUpserts(t *testing.T) {
	s, err := OpenSQLiteFallback(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &session.Session{ID: "s3", Status: session.StatusCreating}))
	require.NoError(t, s.Put(ctx, &session.Session{ID: "s3", Status: session.StatusRunning}))

	got, err := s.Get(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, got.Status)
}
