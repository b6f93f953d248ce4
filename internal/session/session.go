// Package session implements session lifecycle: creation, status
// transitions, endpoint binding, and destruction across C1-C5 and C7.
package session

import (
	"errors"
	"time"
)

// Kind is one of the three session flavors the broker manages.
type Kind string

const (
	KindExecution  Kind = "execution"
	KindVSCode     Kind = "vscode"
	KindPlaywright Kind = "playwright"
)

// Status is a point in the session lifecycle state machine.
type Status string

const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// ErrIllegalTransition is returned when a status change would violate
// the lifecycle state machine.
var ErrIllegalTransition = errors.New("illegal session status transition")

// legalTransitions enumerates the edges of the status state machine.
// stopped and error are terminal: no outgoing edges.
var legalTransitions = map[Status]map[Status]bool{
	StatusCreating: {StatusRunning: true, StatusError: true, StatusStopped: true},
	StatusRunning:  {StatusStopped: true, StatusError: true},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to Status) bool {
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Session is the single record tracked for every broker-managed
// workspace, regardless of Kind.
type Session struct {
	ID            string            `json:"id"`
	Type          Kind              `json:"type"`
	Language      string            `json:"language,omitempty"`
	Status        Status            `json:"status"`
	MemoryBudget  string            `json:"memory_budget,omitempty"`
	WorkspaceDir  string            `json:"workspace_dir"`
	ContainerID   string            `json:"container_id,omitempty"`
	Endpoints     map[string]string `json:"endpoints,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	OwnerClientID string            `json:"owner_client_id"`
	BoundPort     int               `json:"bound_port,omitempty"`
}

// Touch updates LastAccessedAt to now.
func (s *Session) Touch(now time.Time) {
	s.LastAccessedAt = now
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastAccessedAt) > ttl
}
