// Package broker wires C1-C10 into the set of operations the tool
// surface adapter calls. It owns no state of its own beyond the
// component references it was built with; every method translates
// component-level sentinel errors into the uniform *Error.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandkasten/broker/internal/admission"
	"github.com/sandkasten/broker/internal/exec"
	"github.com/sandkasten/broker/internal/health"
	"github.com/sandkasten/broker/internal/port"
	"github.com/sandkasten/broker/internal/registry"
	"github.com/sandkasten/broker/internal/session"
	"github.com/sandkasten/broker/internal/workspace"
)

// Deps bundles the already-constructed components a Broker wires
// together. Every field is required except HelperHost/HelperBinary,
// which are needed only if web-IDE sessions should bind a real helper,
// and MaxSessionsPerClient, which defaults to 10 when zero or negative.
type Deps struct {
	Sessions              *session.Manager
	Engine                *exec.Engine
	Workspaces            *workspace.Manager
	Admission             *admission.Controller
	Ports                 *port.Pool
	Health                *health.Reporter
	Logger                *slog.Logger
	HelperHost            string
	HelperBinary          string
	MaxSessionsPerClient  int
}

// Broker is the single entry point internal/toolsurface calls into.
type Broker struct {
	sessions   *session.Manager
	engine     *exec.Engine
	workspaces *workspace.Manager
	admission  *admission.Controller
	ports      *port.Pool
	health     *health.Reporter
	logger     *slog.Logger

	helperHost           string
	helperBinary         string
	maxSessionsPerClient int
}

// New returns a Broker built from deps.
func New(deps Deps) *Broker {
	maxSessions := deps.MaxSessionsPerClient
	if maxSessions <= 0 {
		maxSessions = 10
	}
	return &Broker{
		sessions:             deps.Sessions,
		engine:               deps.Engine,
		workspaces:           deps.Workspaces,
		admission:            deps.Admission,
		ports:                deps.Ports,
		health:               deps.Health,
		logger:               deps.Logger,
		helperHost:           deps.HelperHost,
		helperBinary:         deps.HelperBinary,
		maxSessionsPerClient: maxSessions,
	}
}

// ExecuteCodeRequest is the validated input of the execute_code tool.
type ExecuteCodeRequest struct {
	Language  string
	Code      string
	SessionID string
	TimeoutMs int
	Stdin     string
	ClientID  string
}

// ExecuteCodeReport mirrors the structured fields execute_code always
// includes in its text report.
type ExecuteCodeReport struct {
	SessionID    string
	Stdout       string
	Stderr       string
	ExitCode     int
	DurationMs   int64
	Truncated    bool
	TimedOut     bool
	PeakMemoryKB int64
}

// ExecuteCode admits the request, resolves or creates the target
// session, serializes concurrent execution on that session id, runs
// the code, and (for a transient session) tears it back down
// regardless of outcome.
func (b *Broker) ExecuteCode(ctx context.Context, req ExecuteCodeRequest) (*ExecuteCodeReport, error) {
	if req.Language == "" || req.Code == "" {
		return nil, newError(KindBadRequest, "language and code are required", nil)
	}
	if _, ok := registry.Lookup(req.Language); !ok {
		return nil, newError(KindUnsupported, req.Language, nil)
	}
	if req.TimeoutMs != 0 && (req.TimeoutMs < exec.MinTimeoutMs || req.TimeoutMs > exec.MaxTimeoutMs) {
		return nil, newError(KindBadRequest, fmt.Sprintf("timeoutMs must be within [%d, %d]", exec.MinTimeoutMs, exec.MaxTimeoutMs), nil)
	}

	if err := b.admission.Admit(req.ClientID); err != nil {
		return nil, translateAdmissionError(err)
	}

	transient := req.SessionID == ""
	sessionID := req.SessionID
	if transient {
		sess, err := b.sessions.CreateSession(ctx, session.KindExecution, req.Language, "", req.ClientID)
		if err != nil {
			return nil, newError(KindInternal, "create transient session", err)
		}
		if err := b.sessions.UpdateStatus(ctx, sess.ID, session.StatusRunning); err != nil {
			return nil, newError(KindInternal, "activate transient session", err)
		}
		sessionID = sess.ID
	} else if _, err := b.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, newError(KindNotFound, sessionID, err)
	}

	lock := b.sessions.Lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if transient {
		defer func() {
			if err := b.sessions.DestroySession(context.Background(), sessionID); err != nil {
				b.logger.Warn("transient session cleanup failed", "session_id", sessionID, "error", err)
			}
		}()
	} else {
		_ = b.sessions.Touch(ctx, sessionID)
	}

	result, err := b.engine.Run(ctx, exec.Request{
		SessionID: sessionID,
		Language:  req.Language,
		Code:      req.Code,
		Stdin:     req.Stdin,
		TimeoutMs: req.TimeoutMs,
	})
	if err != nil && result == nil {
		return nil, translateExecError(err)
	}

	report := &ExecuteCodeReport{
		SessionID:    sessionID,
		Stdout:       result.Stdout,
		Stderr:       result.Stderr,
		ExitCode:     result.ExitCode,
		DurationMs:   result.DurationMs,
		Truncated:    result.Truncated,
		TimedOut:     result.TimedOut,
		PeakMemoryKB: result.PeakMemoryKB,
	}
	if errors.Is(err, exec.ErrOutputOverflow) {
		return report, newError(KindOutputOverflow, "stdout exceeded its cap", err)
	}
	return report, nil
}

func translateAdmissionError(err error) *Error {
	if errors.Is(err, admission.ErrRateLimited) {
		return newError(KindRateLimited, "rate limit exceeded", err)
	}
	var openErr *admission.CircuitOpenError
	if errors.As(err, &openErr) {
		return &Error{Kind: KindCircuitOpen, Reason: openErr.Error(), Cause: err, RetryAfter: openErr.RetryAfter}
	}
	return newError(KindInternal, "", err)
}

func translateExecError(err error) *Error {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return newError(KindNotFound, "", err)
	case errors.Is(err, exec.ErrSessionTerminal):
		return newError(KindNotFound, "session is terminal", err)
	case errors.Is(err, exec.ErrUnsupported):
		return newError(KindUnsupported, "", err)
	case errors.Is(err, exec.ErrPolicyRejected):
		return newError(KindPolicyRejected, err.Error(), err)
	case errors.Is(err, exec.ErrSpawnFailed):
		return newError(KindSpawnFailed, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return newError(KindTimeout, "", err)
	default:
		return newError(KindInternal, "", err)
	}
}

// checkSessionBudget enforces max-sessions-per-client ahead of creating
// a web-IDE or browser-automation session.
func (b *Broker) checkSessionBudget(ctx context.Context, clientID string) error {
	existing, err := b.sessions.ListSessions(ctx, clientID)
	if err != nil {
		return newError(KindInternal, "list sessions", err)
	}
	if len(existing) >= b.maxSessionsPerClient {
		return newError(KindBadRequest, fmt.Sprintf("client already holds %d sessions", len(existing)), nil)
	}
	return nil
}
