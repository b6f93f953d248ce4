package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandkasten/broker/internal/health"
)

// ErrSessionNotFound is returned when an operation targets an unknown
// session id.
var ErrSessionNotFound = errors.New("session not found")

// Store is the subset of internal/store.Store the manager depends on.
type Store interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
}

// WorkspaceProvisioner is the subset of internal/workspace.Manager the
// manager depends on.
type WorkspaceProvisioner interface {
	NewSessionWorkspace(sessionID string) (string, error)
	DestroySessionWorkspace(sessionID string) error
}

// Manager implements the C6 session lifecycle on top of a Store and a
// WorkspaceProvisioner. Exec serialization per session id is provided
// by a per-id mutex.
type Manager struct {
	store      Store
	workspaces WorkspaceProvisioner
	metrics    *health.Metrics

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns a Manager. metrics may be nil, in which case lifecycle
// operations are not recorded.
func New(store Store, workspaces WorkspaceProvisioner, metrics *health.Metrics) *Manager {
	return &Manager{
		store:      store,
		workspaces: workspaces,
		metrics:    metrics,
		locks:      make(map[string]*sync.Mutex),
	}
}

// recordOp increments session_operations_total for one lifecycle
// transition.
func (m *Manager) recordOp(operation string, kind Kind, err error) {
	if m.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.SessionOperationsTotal.WithLabelValues(operation, string(kind), status).Inc()
}

// CreateSession allocates an id, creates the session workspace, sets
// status=creating, and persists the record. It does not start any
// subprocess.
func (m *Manager) CreateSession(ctx context.Context, kind Kind, language, memoryBudget, ownerClientID string) (*Session, error) {
	id := uuid.NewString()

	dir, err := m.workspaces.NewSessionWorkspace(id)
	if err != nil {
		m.recordOp("create", kind, err)
		return nil, fmt.Errorf("provision session workspace: %w", err)
	}

	now := time.Now()
	sess := &Session{
		ID:             id,
		Type:           kind,
		Language:       language,
		Status:         StatusCreating,
		MemoryBudget:   memoryBudget,
		WorkspaceDir:   dir,
		OwnerClientID:  ownerClientID,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	err = m.store.Put(ctx, sess)
	m.recordOp("create", kind, err)
	if err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session record, or ErrSessionNotFound.
func (m *Manager) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// UpdateStatus enforces the status state machine and persists the new
// status.
func (m *Manager) UpdateStatus(ctx context.Context, id string, newStatus Status) error {
	sess, err := m.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(sess.Status, newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, sess.Status, newStatus)
	}
	sess.Status = newStatus
	err = m.store.Put(ctx, sess)
	m.recordOp("status_"+string(newStatus), sess.Type, err)
	return err
}

// SetEndpoints records symbolic endpoint URLs for a session. Only
// valid while the session is creating or running.
func (m *Manager) SetEndpoints(ctx context.Context, id string, endpoints map[string]string) error {
	sess, err := m.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status != StatusCreating && sess.Status != StatusRunning {
		return fmt.Errorf("cannot set endpoints on session in status %s", sess.Status)
	}
	if sess.Endpoints == nil {
		sess.Endpoints = make(map[string]string, len(endpoints))
	}
	for k, v := range endpoints {
		sess.Endpoints[k] = v
	}
	return m.store.Put(ctx, sess)
}

// SetBoundPort records the local port a session's helper process is
// bound to. Like SetEndpoints, it re-fetches the record before
// mutating it so the two can be called independently without either
// clobbering the other's write.
func (m *Manager) SetBoundPort(ctx context.Context, id string, port int) error {
	sess, err := m.GetSession(ctx, id)
	if err != nil {
		return err
	}
	sess.BoundPort = port
	return m.store.Put(ctx, sess)
}

// Touch refreshes a session's last-accessed timestamp.
func (m *Manager) Touch(ctx context.Context, id string) error {
	sess, err := m.GetSession(ctx, id)
	if err != nil {
		return err
	}
	sess.Touch(time.Now())
	return m.store.Put(ctx, sess)
}

// DestroySession transitions the session to a terminal status, removes
// its workspace, and removes the record from the store.
func (m *Manager) DestroySession(ctx context.Context, id string) error {
	sess, err := m.GetSession(ctx, id)
	if err != nil {
		return err
	}

	if sess.Status != StatusStopped && sess.Status != StatusError {
		target := StatusStopped
		if CanTransition(sess.Status, target) {
			sess.Status = target
			_ = m.store.Put(ctx, sess)
		}
	}

	if err := m.workspaces.DestroySessionWorkspace(id); err != nil {
		// Best-effort: workspace removal failures are not fatal to
		// destroying the session record.
		_ = err
	}

	if err := m.store.Delete(ctx, id); err != nil {
		m.recordOp("destroy", sess.Type, err)
		return fmt.Errorf("delete session record: %w", err)
	}

	m.recordOp("destroy", sess.Type, nil)
	if m.metrics != nil {
		m.metrics.SessionDurationMs.WithLabelValues(string(sess.Type)).Observe(float64(time.Since(sess.CreatedAt).Milliseconds()))
	}

	m.CleanupSessionLock(id)
	return nil
}

// ListSessions returns every known session, optionally filtered to one
// owner.
func (m *Manager) ListSessions(ctx context.Context, ownerClientID string) ([]*Session, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if ownerClientID == "" {
		return all, nil
	}
	var filtered []*Session
	for _, s := range all {
		if s.OwnerClientID == ownerClientID {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

// CleanupExpired destroys every session whose last access predates
// maxAge.
func (m *Manager) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var count int
	for _, s := range all {
		if s.Expired(now, maxAge) {
			if err := m.DestroySession(ctx, s.ID); err == nil {
				count++
			}
		}
	}
	return count, nil
}

// Lock returns the per-session mutex used to serialize concurrent
// execution against the same session id, creating it on first use.
func (m *Manager) Lock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// CleanupSessionLock removes the per-session mutex once a session is
// destroyed.
func (m *Manager) CleanupSessionLock(id string) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	delete(m.locks, id)
}
