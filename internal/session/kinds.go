package session

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// PortAllocator is the subset of internal/port.Pool the web-IDE kind
// depends on.
type PortAllocator interface {
	Acquire() (int, error)
	Release(port int)
}

// VSCodeTemplate enumerates the accepted project templates for a
// web-IDE session.
type VSCodeTemplate string

const (
	TemplateBasic          VSCodeTemplate = "basic"
	TemplateWeb            VSCodeTemplate = "web"
	TemplateAPI            VSCodeTemplate = "api"
	TemplateDataScience    VSCodeTemplate = "data-science"
	TemplateMachineLearning VSCodeTemplate = "machine-learning"
)

// BrowserEngine enumerates the accepted browser-automation engines.
type BrowserEngine string

const (
	BrowserChromium BrowserEngine = "chromium"
	BrowserFirefox  BrowserEngine = "firefox"
	BrowserWebkit   BrowserEngine = "webkit"
)

// CreateVSCodeSession provisions a workspace-only session, then tries
// to bind a helper program to an allocated port. If the helper is
// unavailable the session is left workspace-only with no endpoint.
func (m *Manager) CreateVSCodeSession(ctx context.Context, language, memoryBudget, ownerClientID string, ports PortAllocator, helperHost, helperBinary string) (*Session, error) {
	sess, err := m.CreateSession(ctx, KindVSCode, language, memoryBudget, ownerClientID)
	if err != nil {
		return nil, err
	}

	p, err := ports.Acquire()
	if err != nil {
		_ = m.UpdateStatus(ctx, sess.ID, StatusRunning)
		return m.GetSession(ctx, sess.ID)
	}

	cmd := exec.CommandContext(ctx, helperBinary, "--host", helperHost, "--port", fmt.Sprintf("%d", p), sess.WorkspaceDir)
	if err := cmd.Start(); err != nil {
		ports.Release(p)
		_ = m.UpdateStatus(ctx, sess.ID, StatusRunning)
		return m.GetSession(ctx, sess.ID)
	}
	go func() { _ = cmd.Wait() }()

	if err := m.SetBoundPort(ctx, sess.ID, p); err != nil {
		return nil, err
	}
	if err := m.SetEndpoints(ctx, sess.ID, map[string]string{
		"web": fmt.Sprintf("http://%s:%d", helperHost, p),
	}); err != nil {
		return nil, err
	}
	if err := m.UpdateStatus(ctx, sess.ID, StatusRunning); err != nil {
		return nil, err
	}
	return m.GetSession(ctx, sess.ID)
}

// CreatePlaywrightSession provisions a workspace-only session and
// installs the browser-automation toolkit best-effort, then exposes a
// symbolic context id and an initial blank page.
func (m *Manager) CreatePlaywrightSession(ctx context.Context, memoryBudget, ownerClientID string, browser BrowserEngine) (*Session, error) {
	if browser == "" {
		browser = BrowserChromium
	}

	sess, err := m.CreateSession(ctx, KindPlaywright, "", memoryBudget, ownerClientID)
	if err != nil {
		return nil, err
	}

	installBrowserToolkit(ctx, sess.WorkspaceDir)

	if err := m.SetEndpoints(ctx, sess.ID, map[string]string{
		"context_id":  sess.ID,
		"initial_url": "about:blank",
		"browser":     string(browser),
	}); err != nil {
		return nil, err
	}
	if err := m.UpdateStatus(ctx, sess.ID, StatusRunning); err != nil {
		return nil, err
	}
	return m.GetSession(ctx, sess.ID)
}

// installBrowserToolkit best-effort installs the default automation
// toolkit and its driver bundle. Failures are swallowed: the session
// still comes up, just without the toolkit pre-installed.
func installBrowserToolkit(ctx context.Context, workspaceDir string) {
	cmd := exec.CommandContext(ctx, "npm", "install", "playwright")
	cmd.Dir = workspaceDir
	_ = cmd.Run()
}

// ExecutionSessionTTL is a two-minute lifetime for transient
// execute_code sessions (no sessionId supplied by the caller). The
// broker does not read it: it destroys a transient session as soon as
// the call that created it returns.
const ExecutionSessionTTL = 2 * time.Minute
