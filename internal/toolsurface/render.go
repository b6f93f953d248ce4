package toolsurface

import (
	"fmt"
	"strings"

	"github.com/sandkasten/broker/internal/broker"
	"github.com/sandkasten/broker/internal/health"
	"github.com/sandkasten/broker/internal/session"
)

func renderBrokerError(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error (%s): %s", broker.AsKind(err), err.Error())
	return b.String()
}

func renderExecuteCodeReport(r *broker.ExecuteCodeReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", r.SessionID)
	if r.Stdout != "" {
		fmt.Fprintf(&b, "Output:\n%s\n", r.Stdout)
	}
	if r.Stderr != "" {
		fmt.Fprintf(&b, "Errors:\n%s\n", r.Stderr)
	}
	fmt.Fprintf(&b, "Exit Code: %d\n", r.ExitCode)
	fmt.Fprintf(&b, "Execution Time: %d ms\n", r.DurationMs)
	if r.PeakMemoryKB > 0 {
		fmt.Fprintf(&b, "Memory Usage: %.1f MiB\n", float64(r.PeakMemoryKB)/1024)
	}
	if r.Truncated {
		fmt.Fprintf(&b, "Truncated: output exceeded its cap\n")
	}
	if r.TimedOut {
		fmt.Fprintf(&b, "Timed out after the configured timeout\n")
	}
	return b.String()
}

func renderVSCodeSessionResult(r *broker.VSCodeSessionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", r.SessionID)
	fmt.Fprintf(&b, "Language: %s\n", r.Language)
	fmt.Fprintf(&b, "Template: %s\n", r.Template)
	fmt.Fprintf(&b, "Memory: %s\n", r.Memory)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	if r.Endpoint != "" {
		fmt.Fprintf(&b, "Endpoint: %s\n", r.Endpoint)
	} else {
		fmt.Fprintf(&b, "Endpoint: none (workspace-only, helper unavailable)\n")
	}
	return b.String()
}

func renderPlaywrightSessionResult(r *broker.PlaywrightSessionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", r.SessionID)
	fmt.Fprintf(&b, "Browser: %s\n", r.Browser)
	fmt.Fprintf(&b, "Headless: %v\n", r.Headless)
	fmt.Fprintf(&b, "Viewport: %dx%d\n", r.ViewportW, r.ViewportH)
	fmt.Fprintf(&b, "Memory: %s\n", r.Memory)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	fmt.Fprintf(&b, "Context ID: %s\n", r.ContextID)
	fmt.Fprintf(&b, "Initial URL: %s\n", r.InitialURL)
	return b.String()
}

func renderManageSessionsResult(result any) string {
	switch v := result.(type) {
	case []*session.Session:
		if len(v) == 0 {
			return "No sessions found."
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d session(s):\n", len(v))
		for _, s := range v {
			fmt.Fprintf(&b, "- %s  type=%s  language=%s  status=%s  created=%s\n",
				s.ID, s.Type, s.Language, s.Status, s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return b.String()
	case *session.Session:
		var b strings.Builder
		fmt.Fprintf(&b, "Session: %s\n", v.ID)
		fmt.Fprintf(&b, "Type: %s\n", v.Type)
		fmt.Fprintf(&b, "Language: %s\n", v.Language)
		fmt.Fprintf(&b, "Status: %s\n", v.Status)
		fmt.Fprintf(&b, "Workspace: %s\n", v.WorkspaceDir)
		fmt.Fprintf(&b, "Created: %s\n", v.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		fmt.Fprintf(&b, "Last Accessed: %s\n", v.LastAccessedAt.Format("2006-01-02T15:04:05Z07:00"))
		for k, ep := range v.Endpoints {
			fmt.Fprintf(&b, "Endpoint[%s]: %s\n", k, ep)
		}
		return b.String()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func renderSystemHealth(doc health.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall: %s\n", doc.Overall)
	fmt.Fprintf(&b, "Timestamp: %s\n", doc.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "Uptime: %d ms\n", doc.UptimeMs)
	fmt.Fprintf(&b, "Memory: rss=%d heap_used=%d heap_total=%d external=%d\n",
		doc.Memory.RSSBytes, doc.Memory.HeapUsedBytes, doc.Memory.HeapTotalBytes, doc.Memory.ExternalBytes)
	fmt.Fprintf(&b, "Sessions: total=%d\n", doc.Sessions.Total)
	for k, v := range doc.Sessions.ByType {
		fmt.Fprintf(&b, "  by_type[%s]=%d\n", k, v)
	}
	for k, v := range doc.Sessions.ByStatus {
		fmt.Fprintf(&b, "  by_status[%s]=%d\n", k, v)
	}
	for k, v := range doc.Sessions.ByLanguage {
		fmt.Fprintf(&b, "  by_language[%s]=%d\n", k, v)
	}
	for name, comp := range doc.Components {
		fmt.Fprintf(&b, "  component[%s]=%s %s\n", name, comp.Status, comp.Message)
	}
	return b.String()
}
