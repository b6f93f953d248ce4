package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandkasten/broker/internal/admission"
	"github.com/sandkasten/broker/internal/session"
)

type fakeDurableTier struct {
	mu      sync.Mutex
	data    map[string]*session.Session
	failAll bool
}

func newFakeDurableTier() *fakeDurableTier {
	return &fakeDurableTier{data: make(map[string]*session.Session)}
}

func (f *fakeDurableTier) Put(_ context.Context, s *session.Session) error {
	if f.failAll {
		return errors.New("durable tier unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[s.ID] = s
	return nil
}

func (f *fakeDurableTier) Get(_ context.Context, id string) (*session.Session, error) {
	if f.failAll {
		return nil, errors.New("durable tier unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[id], nil
}

func (f *fakeDurableTier) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, id)
	return nil
}

func (f *fakeDurableTier) List(_ context.Context) ([]*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*session.Session
	for _, s := range f.data {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeDurableTier) Close() error { return nil }

func testStoreLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBreakers() *admission.Controller {
	return admission.NewController(
		admission.RateLimitConfig{PointsPerWindow: 1000, Window: time.Minute, BlockDuration: time.Second},
		admission.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute, RecoverSuccesses: 1},
	)
}

func TestStorePutGetRoundTripsAllTiers(t *testing.T) {
	fallback, err := OpenSQLiteFallback(":memory:")
	require.NoError(t, err)
	durable := newFakeDurableTier()

	s := New(Config{NearCacheTTL: time.Minute, NearCacheMaxSize: 10}, durable, fallback, testBreakers(), nil, testStoreLogger())
	ctx := context.Background()

	sess := &session.Session{ID: "sess-1", Status: session.StatusRunning}
	require.NoError(t, s.Put(ctx, sess))

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)

	_, err = durable.Get(ctx, "sess-1")
	require.NoError(t, err)
}

func TestStoreFallsBackWhenDurableTierFails(t *testing.T) {
	fallback, err := OpenSQLiteFallback(":memory:")
	require.NoError(t, err)
	durable := newFakeDurableTier()
	durable.failAll = true

	s := New(Config{NearCacheTTL: time.Millisecond, NearCacheMaxSize: 10}, durable, fallback, testBreakers(), nil, testStoreLogger())
	ctx := context.Background()

	sess := &session.Session{ID: "sess-2", Status: session.StatusRunning}
	require.NoError(t, s.Put(ctx, sess))
	time.Sleep(5 * time.Millisecond) // let the near cache entry expire

	got, err := s.Get(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "sess-2", got.ID)
}

func TestStoreDestroyIsAbsentAcrossTiers(t *testing.T) {
	fallback, err := OpenSQLiteFallback(":memory:")
	require.NoError(t, err)
	durable := newFakeDurableTier()

	s := New(Config{NearCacheTTL: time.Minute, NearCacheMaxSize: 10}, durable, fallback, testBreakers(), nil, testStoreLogger())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &session.Session{ID: "sess-3"}))
	require.NoError(t, s.Delete(ctx, "sess-3"))

	_, err = s.Get(ctx, "sess-3")
	assert.ErrorIs(t, err, ErrNotFound)

	durableGot, _ := durable.Get(ctx, "sess-3")
	assert.Nil(t, durableGot)
}

func TestStoreWorksWithNilDurableTier(t *testing.T) {
	fallback, err := OpenSQLiteFallback(":memory:")
	require.NoError(t, err)

	s := New(Config{NearCacheTTL: time.Minute, NearCacheMaxSize: 10}, nil, fallback, testBreakers(), nil, testStoreLogger())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &session.Session{ID: "sess-4"}))
	got, err := s.Get(ctx, "sess-4")
	require.NoError(t, err)
	assert.Equal(t, "sess-4", got.ID)
}
