package exec

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sandkasten/broker/internal/health"
	"github.com/sandkasten/broker/internal/policy"
	"github.com/sandkasten/broker/internal/registry"
	"github.com/sandkasten/broker/internal/session"
)

// SessionLookup resolves a session and its workspace for execution.
type SessionLookup interface {
	GetSession(ctx context.Context, id string) (*session.Session, error)
}

// WorkspaceResolver resolves language base workspaces.
type WorkspaceResolver interface {
	BaseWorkspace(languageID string) (string, bool)
}

// Config configures the engine's caps.
type Config struct {
	MaxConcurrency int
	OutputCapBytes int
	GraceSeconds   int
	DefaultTimeoutMs int
	MaxTimeoutMs   int
	Limits         ResourceLimits
}

// Engine is the C7 execution engine.
type Engine struct {
	cfg        Config
	sessions   SessionLookup
	workspaces WorkspaceResolver
	screener   *policy.Screener
	metrics    *health.Metrics
	logger     *slog.Logger

	queue   chan struct{}
	limiter *rate.Limiter
}

// New returns an Engine. A buffered channel of size cfg.MaxConcurrency
// bounds in-flight executions; a token-bucket rate.Limiter enforces the
// per-interval burst fairness rule (default 50 tasks per second). A
// nil logger falls back to slog.Default(); a nil metrics skips
// execution_duration_ms/container_operations_total recording.
func New(cfg Config, sessions SessionLookup, workspaces WorkspaceResolver, screener *policy.Screener, metrics *health.Metrics, logger *slog.Logger) *Engine {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if cfg.OutputCapBytes <= 0 {
		cfg.OutputCapBytes = DefaultOutputCapBytes
	}
	if cfg.GraceSeconds <= 0 {
		cfg.GraceSeconds = DefaultGraceSeconds
	}
	if cfg.DefaultTimeoutMs <= 0 {
		cfg.DefaultTimeoutMs = DefaultTimeoutMs
	}
	if cfg.MaxTimeoutMs <= 0 {
		cfg.MaxTimeoutMs = MaxTimeoutMs
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		sessions:   sessions,
		workspaces: workspaces,
		screener:   screener,
		metrics:    metrics,
		logger:     logger,
		queue:      make(chan struct{}, cfg.MaxConcurrency),
		limiter:    rate.NewLimiter(rate.Limit(50), 50),
	}
}

// Run executes req against its session's workspace, enforcing the
// admission queue, the policy screen, per-language command assembly,
// bounded output capture, and the wall-clock timeout.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	sess, err := e.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, ErrNotFound
	}
	if sess.Status == session.StatusStopped || sess.Status == session.StatusError {
		return nil, ErrSessionTerminal
	}

	desc, ok := registry.Lookup(req.Language)
	if !ok {
		return nil, ErrUnsupported
	}

	verdict := e.screener.Screen(req.Language, req.Code)
	if !verdict.Valid {
		return nil, fmt.Errorf("%w: %s", ErrPolicyRejected, verdict.Reason)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	select {
	case e.queue <- struct{}{}:
		defer func() { <-e.queue }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = e.cfg.DefaultTimeoutMs
	}
	if timeoutMs > e.cfg.MaxTimeoutMs {
		timeoutMs = e.cfg.MaxTimeoutMs
	}

	sourcePath, err := writeSourceFile(sess.WorkspaceDir, desc.Suffix, req.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	defer os.Remove(sourcePath)

	base, hasBase := e.workspaces.BaseWorkspace(req.Language)

	start := time.Now()
	result, err := e.spawn(ctx, desc, sess, sourcePath, base, hasBase, req.Stdin, time.Duration(timeoutMs)*time.Millisecond)
	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		} else if result != nil && result.TimedOut {
			status = "timeout"
		}
		e.metrics.ExecutionDurationMs.WithLabelValues(req.Language, status).Observe(float64(time.Since(start).Milliseconds()))
	}
	return result, err
}

func writeSourceFile(dir, suffix, code string) (string, error) {
	name := fmt.Sprintf("code_%d_%s%s", time.Now().UnixMilli(), randomSuffix(3), suffix)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// recordContainerOp increments container_operations_total for one
// cgroup lifecycle call.
func (e *Engine) recordContainerOp(operation string, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.ContainerOperationsTotal.WithLabelValues(operation, status).Inc()
}

func (e *Engine) spawn(ctx context.Context, desc registry.Descriptor, sess *session.Session, sourcePath, base string, hasBase bool, stdin string, timeout time.Duration) (*Result, error) {
	argv := renderRecipe(desc.Recipe, sourcePath)
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty recipe for %s", ErrUnsupported, desc.ID)
	}

	cmd := osexec.Command(argv[0], argv[1:]...)
	cmd.Dir = sess.WorkspaceDir
	cmd.Env = buildEnv(desc, base, hasBase)
	applyProcessIsolation(cmd, e.cfg.Limits)

	runID := sess.ID + "-" + randomSuffix(6)
	cgPath, err := CreateRunCgroup(runID, e.cfg.Limits)
	e.recordContainerOp("cgroup_create", err)
	if err != nil {
		e.logger.Warn("cgroup creation failed, running without resource quota", "run_id", runID, "error", err)
		cgPath = ""
	}
	defer func() {
		err := RemoveRunCgroup(runID)
		e.recordContainerOp("cgroup_remove", err)
		if err != nil {
			e.logger.Warn("cgroup cleanup failed", "run_id", runID, "error", err)
		}
	}()

	stdout := newBoundedBuffer(e.cfg.OutputCapBytes, true)
	stderr := newBoundedBuffer(e.cfg.OutputCapBytes, false)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	attachErr := AttachRunCgroup(cgPath, cmd.Process.Pid)
	e.recordContainerOp("cgroup_attach", attachErr)
	if attachErr != nil {
		e.logger.Warn("cgroup attach failed, running without resource quota", "run_id", runID, "error", attachErr)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var runErr error
	timedOut := false

	select {
	case runErr = <-done:
	case <-time.After(timeout):
		timedOut = true
		runErr = terminateGracefully(cmd, time.Duration(e.cfg.GraceSeconds)*time.Second, done)
	case <-ctx.Done():
		terminateGracefully(cmd, time.Duration(e.cfg.GraceSeconds)*time.Second, done)
		return nil, ctx.Err()
	}

	elapsed := time.Since(start)

	result := &Result{
		Stdout:       stdout.String(),
		Stderr:       stderr.String(),
		DurationMs:   elapsed.Milliseconds(),
		Truncated:    stdout.Overflowed() || stderr.Overflowed(),
		TimedOut:     timedOut,
		PeakMemoryKB: ReadPeakMemoryKB(cgPath),
	}

	switch {
	case timedOut:
		result.ExitCode = TimeoutExitCode
	case runErr != nil:
		if exitErr, ok := runErr.(*osexec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Stderr += "\nexec error: " + runErr.Error()
		}
	default:
		result.ExitCode = 0
	}

	if stdout.Overflowed() && !timedOut {
		return result, ErrOutputOverflow
	}

	return result, nil
}

// terminateGracefully sends SIGTERM, then SIGKILL if the process is
// still alive after grace: two-phase termination. It consumes the
// child's wait result from done and returns it.
func terminateGracefully(cmd *osexec.Cmd, grace time.Duration, done <-chan error) error {
	if cmd.Process == nil {
		return nil
	}
	signalProcessGroup(cmd.Process.Pid, osTerminateSignal())

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		killProcessGroup(cmd.Process.Pid)
		return <-done
	}
}

var recipePlaceholder = "{file}"

func renderRecipe(recipe []string, sourcePath string) []string {
	out := make([]string, len(recipe))
	for i, arg := range recipe {
		out[i] = strings.ReplaceAll(arg, recipePlaceholder, sourcePath)
	}
	return out
}

func buildEnv(desc registry.Descriptor, base string, hasBase bool) []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=/tmp",
		"LANG=C.UTF-8",
	}
	if !hasBase {
		return env
	}
	switch desc.ID {
	case "python":
		env = append(env, "VIRTUAL_ENV="+filepath.Join(base, "env"), "PATH="+filepath.Join(base, "env", "bin")+":/usr/local/bin:/usr/bin:/bin")
	case "javascript", "typescript":
		env = append(env, "NODE_PATH="+filepath.Join(base, "node_modules"))
	case "rust":
		env = append(env, "CARGO_HOME="+filepath.Join(base, ".cargo"))
	case "go":
		env = append(env, "GOPATH="+filepath.Join(base, "gopath"))
	}
	return env
}
