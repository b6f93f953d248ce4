package exec

import (
	"context"
	"os"
	osexec "os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandkasten/broker/internal/policy"
	"github.com/sandkasten/broker/internal/session"
)

type fakeSessions struct {
	sessions map[string]*session.Session
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*session.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, assert.AnError
	}
	return s, nil
}

type fakeWorkspaces struct{}

func (fakeWorkspaces) BaseWorkspace(string) (string, bool) { return "", false }

func newTestEngine(t *testing.T, sess *session.Session) *Engine {
	t.Helper()
	dir := t.TempDir()
	sess.WorkspaceDir = dir
	sessions := &fakeSessions{sessions: map[string]*session.Session{sess.ID: sess}}
	return New(Config{MaxConcurrency: 4, OutputCapBytes: 1024, GraceSeconds: 1}, sessions, fakeWorkspaces{}, policy.New(time.Minute), nil, nil)
}

func TestRunExecutesPythonPrintsStdout(t *testing.T) {
	if _, err := osexec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	sess := &session.Session{ID: "s1", Status: session.StatusRunning}
	e := newTestEngine(t, sess)

	result, err := e.Run(context.Background(), Request{SessionID: "s1", Language: "python", Code: "print('hello from test')"})
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "hello from test")
	assert.Equal(t, 0, result.ExitCode)
}

func TestRunRejectsMissingSession(t *testing.T) {
	sess := &session.Session{ID: "s1", Status: session.StatusRunning}
	e := newTestEngine(t, sess)

	_, err := e.Run(context.Background(), Request{SessionID: "missing", Language: "python", Code: "print(1)"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunRejectsTerminalSession(t *testing.T) {
	sess := &session.Session{ID: "s1", Status: session.StatusStopped}
	e := newTestEngine(t, sess)

	_, err := e.Run(context.Background(), Request{SessionID: "s1", Language: "python", Code: "print(1)"})
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestRunRejectsUnsupportedLanguage(t *testing.T) {
	sess := &session.Session{ID: "s1", Status: session.StatusRunning}
	e := newTestEngine(t, sess)

	_, err := e.Run(context.Background(), Request{SessionID: "s1", Language: "cobol", Code: "x"})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestRunRejectsPolicyViolation(t *testing.T) {
	sess := &session.Session{ID: "s1", Status: session.StatusRunning}
	e := newTestEngine(t, sess)

	_, err := e.Run(context.Background(), Request{SessionID: "s1", Language: "python", Code: "import os; os.system('ls')"})
	assert.ErrorIs(t, err, ErrPolicyRejected)
}

func TestRunTimesOutWithExitCode124(t *testing.T) {
	if _, err := osexec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	sess := &session.Session{ID: "s1", Status: session.StatusRunning}
	e := newTestEngine(t, sess)

	result, err := e.Run(context.Background(), Request{
		SessionID: "s1",
		Language:  "python",
		Code:      "import time\nwhile True:\n    time.sleep(0.1)\n",
		TimeoutMs: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, TimeoutExitCode, result.ExitCode)
	assert.True(t, result.TimedOut)
	assert.GreaterOrEqual(t, result.DurationMs, int64(500))
}

func TestRenderRecipeSubstitutesFilePlaceholder(t *testing.T) {
	out := renderRecipe([]string{"python3", "{file}"}, "/tmp/code_1.py")
	assert.Equal(t, []string{"python3", "/tmp/code_1.py"}, out)
}

func TestWriteSourceFileUsesExpectedNamingScheme(t *testing.T) {
	dir := t.TempDir()
	path, err := writeSourceFile(dir, ".py", "print(1)")
	require.NoError(t, err)
	defer os.Remove(path)

	assert.Contains(t, path, "code_")
	assert.Contains(t, path, ".py")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(data))
}
