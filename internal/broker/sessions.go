package broker

import (
	"context"
	"errors"
	"fmt"

	units "github.com/docker/go-units"

	"github.com/sandkasten/broker/internal/registry"
	"github.com/sandkasten/broker/internal/session"
)

var validTemplates = map[string]bool{
	"basic": true, "web": true, "api": true, "data-science": true, "machine-learning": true,
}

// vscodeMemoryBytes and playwrightMemoryBytes enumerate the accepted
// memory budgets in bytes, parsed with RAMInBytes so "1g", "1G", and
// "1gb" are all accepted the way docker CLI flags accept them.
var vscodeMemoryBytes = mustRAMSet("1g", "2g", "4g", "8g")
var playwrightMemoryBytes = mustRAMSet("2g", "4g", "8g")

func mustRAMSet(sizes ...string) map[int64]bool {
	set := make(map[int64]bool, len(sizes))
	for _, s := range sizes {
		b, err := units.RAMInBytes(s)
		if err != nil {
			panic("broker: invalid memory literal " + s)
		}
		set[b] = true
	}
	return set
}

// validateMemoryBudget parses memory with the same RAMInBytes rules
// docker CLI flags use, then checks the result against allowed.
func validateMemoryBudget(memory string, allowed map[int64]bool) error {
	b, err := units.RAMInBytes(memory)
	if err != nil {
		return fmt.Errorf("unknown memory size: %s", memory)
	}
	if !allowed[b] {
		return fmt.Errorf("unknown memory size: %s", memory)
	}
	return nil
}

var validBrowsers = map[string]bool{
	"chromium": true, "firefox": true, "webkit": true,
}

// VSCodeSessionResult is the shape create_vscode_session reports back.
type VSCodeSessionResult struct {
	SessionID string
	Language  string
	Template  string
	Memory    string
	Status    session.Status
	Endpoint  string
}

// CreateVSCodeSession provisions a web-IDE session.
func (b *Broker) CreateVSCodeSession(ctx context.Context, language, template, memory, clientID string) (*VSCodeSessionResult, error) {
	if template == "" {
		template = "basic"
	}
	if !validTemplates[template] {
		return nil, newError(KindBadRequest, "unknown template: "+template, nil)
	}
	if memory == "" {
		memory = "1g"
	}
	if err := validateMemoryBudget(memory, vscodeMemoryBytes); err != nil {
		return nil, newError(KindBadRequest, err.Error(), nil)
	}
	if language != "" {
		if _, ok := registry.Lookup(language); !ok {
			return nil, newError(KindUnsupported, language, nil)
		}
	}

	if err := b.checkSessionBudget(ctx, clientID); err != nil {
		return nil, err
	}
	if err := b.admission.Admit(clientID); err != nil {
		return nil, translateAdmissionError(err)
	}

	sess, err := b.sessions.CreateVSCodeSession(ctx, language, memory, clientID, b.ports, b.helperHost, b.helperBinary)
	if err != nil {
		return nil, newError(KindInternal, "create vscode session", err)
	}

	return &VSCodeSessionResult{
		SessionID: sess.ID,
		Language:  language,
		Template:  template,
		Memory:    memory,
		Status:    sess.Status,
		Endpoint:  sess.Endpoints["web"],
	}, nil
}

// PlaywrightSessionResult is the shape create_playwright_session
// reports back.
type PlaywrightSessionResult struct {
	SessionID    string
	Browser      string
	Headless     bool
	ViewportW    int
	ViewportH    int
	Memory       string
	Status       session.Status
	ContextID    string
	InitialURL   string
}

// CreatePlaywrightSession provisions a browser-automation session.
func (b *Broker) CreatePlaywrightSession(ctx context.Context, browser string, headless bool, viewportW, viewportH int, memory, clientID string) (*PlaywrightSessionResult, error) {
	if browser == "" {
		browser = "chromium"
	}
	if !validBrowsers[browser] {
		return nil, newError(KindBadRequest, "unknown browser: "+browser, nil)
	}
	if memory == "" {
		memory = "2g"
	}
	if err := validateMemoryBudget(memory, playwrightMemoryBytes); err != nil {
		return nil, newError(KindBadRequest, err.Error(), nil)
	}
	if viewportW == 0 {
		viewportW = 1280
	}
	if viewportH == 0 {
		viewportH = 720
	}
	if viewportW < 320 || viewportW > 3840 || viewportH < 240 || viewportH > 2160 {
		return nil, newError(KindBadRequest, "viewport out of range", nil)
	}

	if err := b.checkSessionBudget(ctx, clientID); err != nil {
		return nil, err
	}
	if err := b.admission.Admit(clientID); err != nil {
		return nil, translateAdmissionError(err)
	}

	sess, err := b.sessions.CreatePlaywrightSession(ctx, memory, clientID, session.BrowserEngine(browser))
	if err != nil {
		return nil, newError(KindInternal, "create playwright session", err)
	}

	return &PlaywrightSessionResult{
		SessionID:  sess.ID,
		Browser:    sess.Endpoints["browser"],
		Headless:   headless,
		ViewportW:  viewportW,
		ViewportH:  viewportH,
		Memory:     memory,
		Status:     sess.Status,
		ContextID:  sess.Endpoints["context_id"],
		InitialURL: sess.Endpoints["initial_url"],
	}, nil
}

// ManageSessionsAction is one of the three manage_sessions operations.
type ManageSessionsAction string

const (
	ActionList    ManageSessionsAction = "list"
	ActionGet     ManageSessionsAction = "get"
	ActionDestroy ManageSessionsAction = "destroy"
)

// ManageSessions implements the manage_sessions tool: list, get, or
// destroy, scoped to the calling client for list and enforced by
// ownership for get/destroy.
func (b *Broker) ManageSessions(ctx context.Context, action ManageSessionsAction, sessionID, clientID string) (any, error) {
	switch action {
	case ActionList:
		return b.sessions.ListSessions(ctx, clientID)
	case ActionGet:
		if sessionID == "" {
			return nil, newError(KindBadRequest, "sessionId is required for get", nil)
		}
		sess, err := b.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return nil, translateSessionLookupError(sessionID, err)
		}
		if sess.OwnerClientID != "" && sess.OwnerClientID != clientID {
			return nil, newError(KindNotFound, sessionID, nil)
		}
		return sess, nil
	case ActionDestroy:
		if sessionID == "" {
			return nil, newError(KindBadRequest, "sessionId is required for destroy", nil)
		}
		sess, err := b.sessions.GetSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				// Idempotent: destroying an already-gone session succeeds.
				return fmt.Sprintf("session %s already absent", sessionID), nil
			}
			return nil, translateSessionLookupError(sessionID, err)
		}
		if sess.OwnerClientID != "" && sess.OwnerClientID != clientID {
			return nil, newError(KindNotFound, sessionID, nil)
		}
		if err := b.sessions.DestroySession(ctx, sessionID); err != nil {
			return nil, newError(KindInternal, "destroy session", err)
		}
		return fmt.Sprintf("session %s destroyed", sessionID), nil
	default:
		return nil, newError(KindBadRequest, "unknown action: "+string(action), nil)
	}
}

func translateSessionLookupError(sessionID string, err error) *Error {
	if errors.Is(err, session.ErrSessionNotFound) {
		return newError(KindNotFound, sessionID, err)
	}
	return newError(KindInternal, "", err)
}
