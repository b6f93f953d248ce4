// Package store implements the three-tier metadata store: a bounded
// in-process near cache in front of a durable PostgreSQL tier, with a
// SQLite fallback tier (in-memory or file-backed) used when no durable backend is
// configured or the durable tier's circuit breaker is open.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sandkasten/broker/internal/admission"
	"github.com/sandkasten/broker/internal/health"
	"github.com/sandkasten/broker/internal/session"
)

// ErrNotFound is returned when a session id is absent from every tier.
var ErrNotFound = errors.New("session not found")

// durableTier and fallbackTier are the two backends the facade fans
// writes out to and cascades reads through.
type durableTier interface {
	Put(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, id string) (*session.Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*session.Session, error)
	Close() error
}

// Store is the C5 façade: near cache -> durable tier -> fallback tier.
type Store struct {
	logger   *slog.Logger
	breakers *admission.Controller
	metrics  *health.Metrics

	cache    *nearCache
	durable  durableTier // nil when no PostgreSQL DSN is configured
	fallback durableTier
}

// Config configures the three tiers.
type Config struct {
	NearCacheTTL     time.Duration
	NearCacheMaxSize int
}

// New returns a Store. durable may be nil, in which case every read
// and write goes directly to the fallback tier. metrics may be nil,
// in which case per-operation counters and histograms are skipped.
func New(cfg Config, durable durableTier, fallback durableTier, breakers *admission.Controller, metrics *health.Metrics, logger *slog.Logger) *Store {
	return &Store{
		logger:   logger,
		breakers: breakers,
		metrics:  metrics,
		cache:    newNearCache(cfg.NearCacheTTL, cfg.NearCacheMaxSize),
		durable:  durable,
		fallback: fallback,
	}
}

// recordOp increments database_operations_total and observes
// database_duration_ms for one tier call.
func (s *Store) recordOp(tier, op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.DatabaseOperationsTotal.WithLabelValues(tier, op, status).Inc()
	s.metrics.DatabaseDurationMs.WithLabelValues(tier, op).Observe(float64(time.Since(start).Milliseconds()))
}

// Put writes s to the near cache and fans the write out to the durable
// tier (guarded by the "metadata-store" breaker) and the fallback tier.
// A durable-tier failure does not fail the call: the fallback tier and
// the near cache still hold the record.
func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	s.cache.set(sess)

	fallbackStart := time.Now()
	err := s.fallback.Put(ctx, sess)
	s.recordOp("fallback", "put", fallbackStart, err)
	if err != nil {
		return err
	}

	if s.durable != nil {
		durableStart := time.Now()
		err := s.breakers.Guard("metadata-store", func() error {
			return s.durable.Put(ctx, sess)
		})
		s.recordOp("durable", "put", durableStart, err)
		if err != nil {
			s.logger.Warn("durable tier write failed, record kept in fallback tier",
				"session_id", sess.ID, "error", err)
		}
	}
	return nil
}

// Get cascades through the near cache, the durable tier, then the
// fallback tier, populating the near cache on any tier hit below it.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	if sess, ok := s.cache.get(id); ok {
		return sess, nil
	}

	if s.durable != nil {
		durableStart := time.Now()
		var sess *session.Session
		err := s.breakers.Guard("metadata-store", func() error {
			var gerr error
			sess, gerr = s.durable.Get(ctx, id)
			return gerr
		})
		s.recordOp("durable", "get", durableStart, err)
		if err == nil && sess != nil {
			s.cache.set(sess)
			return sess, nil
		}
		if err != nil {
			s.logger.Warn("durable tier read failed, falling back", "session_id", id, "error", err)
		}
	}

	fallbackStart := time.Now()
	sess, err := s.fallback.Get(ctx, id)
	s.recordOp("fallback", "get", fallbackStart, err)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	s.cache.set(sess)
	return sess, nil
}

// Delete removes id from every tier. Errors from the durable tier are
// logged, not surfaced, so that session destruction is never blocked
// on the durable backend being reachable.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.cache.delete(id)

	if s.durable != nil {
		durableStart := time.Now()
		err := s.breakers.Guard("metadata-store", func() error {
			return s.durable.Delete(ctx, id)
		})
		s.recordOp("durable", "delete", durableStart, err)
		if err != nil {
			s.logger.Warn("durable tier delete failed", "session_id", id, "error", err)
		}
	}

	fallbackStart := time.Now()
	err := s.fallback.Delete(ctx, id)
	s.recordOp("fallback", "delete", fallbackStart, err)
	return err
}

// List returns every session known to the system of record: the
// durable tier when reachable, otherwise the fallback tier.
func (s *Store) List(ctx context.Context) ([]*session.Session, error) {
	if s.durable != nil {
		durableStart := time.Now()
		var sessions []*session.Session
		err := s.breakers.Guard("metadata-store", func() error {
			var lerr error
			sessions, lerr = s.durable.List(ctx)
			return lerr
		})
		s.recordOp("durable", "list", durableStart, err)
		if err == nil {
			return sessions, nil
		}
		s.logger.Warn("durable tier list failed, falling back", "error", err)
	}
	fallbackStart := time.Now()
	sessions, err := s.fallback.List(ctx)
	s.recordOp("fallback", "list", fallbackStart, err)
	return sessions, err
}

// Close releases both persistent tiers' resources.
func (s *Store) Close() error {
	if s.durable != nil {
		if err := s.durable.Close(); err != nil {
			return err
		}
	}
	return s.fallback.Close()
}
