// Package health implements C9: component liveness aggregation,
// process/system resource snapshots, session counters, and Prometheus
// metrics, exported in both structured and textual key/value form.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"
)


// Status is the overall or per-component health classification.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnhealthy: 2,
}

// worst returns whichever of a, b has the higher severity.
func worst(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

const checkTimeout = 3 * time.Second

// Check is a named component liveness probe. It returns StatusHealthy
// on success; a non-nil error degrades or fails the component
// depending on the returned Status.
type Check struct {
	Name  string
	Probe func(ctx context.Context) (Status, error)
}

// Reporter aggregates component checks, process/system stats, and
// session counts into a single status document.
type Reporter struct {
	logger  *slog.Logger
	metrics *Metrics
	checks  []Check
	start   time.Time

	lastCPUSeconds float64
	lastCPUPoll    time.Time
}

// NewReporter returns a Reporter with no checks registered.
func NewReporter(logger *slog.Logger, metrics *Metrics, started time.Time) *Reporter {
	return &Reporter{logger: logger, metrics: metrics, start: started, lastCPUPoll: started}
}

// AddCheck registers a named component probe.
func (r *Reporter) AddCheck(name string, probe func(ctx context.Context) (Status, error)) {
	r.checks = append(r.checks, Check{Name: name, Probe: probe})
}

// ComponentResult is the reported state of a single checked component.
type ComponentResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// MemorySnapshot is an rss/heap_used/heap_total/external breakdown
// sourced from runtime.MemStats on the broker process.
type MemorySnapshot struct {
	RSSBytes       uint64 `json:"rss_bytes"`
	HeapUsedBytes  uint64 `json:"heap_used_bytes"`
	HeapTotalBytes uint64 `json:"heap_total_bytes"`
	ExternalBytes  uint64 `json:"external_bytes"`
}

// SessionCounts buckets session counts by type, status, and language.
type SessionCounts struct {
	ByType     map[string]int `json:"by_type"`
	ByStatus   map[string]int `json:"by_status"`
	ByLanguage map[string]int `json:"by_language"`
	Total      int            `json:"total"`
}

// Document is the full status() result returned to system_health.
type Document struct {
	Overall    Status                     `json:"overall"`
	Timestamp  time.Time                  `json:"timestamp"`
	UptimeMs   int64                      `json:"uptime_ms"`
	Memory     MemorySnapshot             `json:"memory"`
	Sessions   SessionCounts              `json:"sessions"`
	Components map[string]ComponentResult `json:"components,omitempty"`
}

// Status runs every registered check and assembles the document.
// Component detail is included only when detailed is true, matching
// system_health's `detailed?` input.
func (r *Reporter) Status(ctx context.Context, sessions SessionCounts, detailed bool) Document {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	overall := StatusHealthy
	components := make(map[string]ComponentResult, len(r.checks))

	for _, c := range r.checks {
		st, err := c.Probe(checkCtx)
		if err != nil && st == "" {
			st = StatusUnhealthy
		}
		msg := ""
		if err != nil {
			msg = err.Error()
			r.logger.Warn("component health check failed",
				slog.String("component", c.Name),
				slog.String("status", string(st)),
				slog.String("error", msg),
			)
		}
		components[c.Name] = ComponentResult{Status: st, Message: msg}
		overall = worst(overall, st)
	}

	doc := Document{
		Overall:   overall,
		Timestamp: time.Now(),
		UptimeMs:  time.Since(r.start).Milliseconds(),
		Memory:    memorySnapshot(),
		Sessions:  sessions,
	}
	if detailed {
		doc.Components = components
	}
	r.refreshGauges(doc.Memory)
	return doc
}

// refreshGauges sets every gauge collector from data already computed
// for this poll. Called once per Status call, so the gauges in
// Metrics.Registry and the system_health tool response stay in sync.
func (r *Reporter) refreshGauges(mem MemorySnapshot) {
	if r.metrics == nil {
		return
	}

	r.metrics.SystemMemoryBytes.WithLabelValues("total").Set(float64(mem.RSSBytes))
	r.metrics.ProcessMemoryBytes.WithLabelValues("rss").Set(float64(mem.RSSBytes))
	r.metrics.ProcessMemoryBytes.WithLabelValues("heap_used").Set(float64(mem.HeapUsedBytes))
	r.metrics.ProcessMemoryBytes.WithLabelValues("heap_total").Set(float64(mem.HeapTotalBytes))
	r.metrics.ProcessMemoryBytes.WithLabelValues("external").Set(float64(mem.ExternalBytes))

	load1, load5, load15 := systemLoadAverage()
	r.metrics.LoadAverage.WithLabelValues("1m").Set(load1)
	r.metrics.LoadAverage.WithLabelValues("5m").Set(load5)
	r.metrics.LoadAverage.WithLabelValues("15m").Set(load15)

	now := time.Now()
	cpuSecs := processCPUSeconds()
	if elapsed := now.Sub(r.lastCPUPoll).Seconds(); elapsed > 0 && r.lastCPUSeconds > 0 && cpuSecs > 0 {
		pct := (cpuSecs - r.lastCPUSeconds) / elapsed * 100 / float64(runtime.NumCPU())
		if pct < 0 {
			pct = 0
		}
		r.metrics.CPUPercent.Set(pct)
	}
	r.lastCPUSeconds = cpuSecs
	r.lastCPUPoll = now
}

func memorySnapshot() MemorySnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemorySnapshot{
		RSSBytes:       ms.Sys,
		HeapUsedBytes:  ms.HeapInuse,
		HeapTotalBytes: ms.HeapSys,
		ExternalBytes:  ms.Sys - ms.HeapSys,
	}
}

// TextExport renders a document as sorted "key value" lines, a plain
// textual alternative to the Prometheus exposition format.
func TextExport(doc Document) string {
	lines := map[string]string{
		"overall":            string(doc.Overall),
		"uptime_ms":          fmt.Sprintf("%d", doc.UptimeMs),
		"memory_rss_bytes":   fmt.Sprintf("%d", doc.Memory.RSSBytes),
		"memory_heap_used":   fmt.Sprintf("%d", doc.Memory.HeapUsedBytes),
		"memory_heap_total":  fmt.Sprintf("%d", doc.Memory.HeapTotalBytes),
		"memory_external":    fmt.Sprintf("%d", doc.Memory.ExternalBytes),
		"sessions_total":     fmt.Sprintf("%d", doc.Sessions.Total),
	}
	for k, v := range doc.Sessions.ByType {
		lines["sessions_by_type_"+k] = fmt.Sprintf("%d", v)
	}
	for k, v := range doc.Sessions.ByStatus {
		lines["sessions_by_status_"+k] = fmt.Sprintf("%d", v)
	}
	for k, v := range doc.Sessions.ByLanguage {
		lines["sessions_by_language_"+k] = fmt.Sprintf("%d", v)
	}
	for name, comp := range doc.Components {
		lines["component_"+name+"_status"] = string(comp.Status)
	}

	keys := make([]string, 0, len(lines))
	for k := range lines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %s\n", k, lines[k])
	}
	return b.String()
}

// BuildSessionCounts buckets raw (kind, status, language) triples into
// a SessionCounts, used by internal/broker when handing session
// summaries to Status without importing internal/session here.
func BuildSessionCounts(triples [][3]string) SessionCounts {
	counts := SessionCounts{
		ByType:     make(map[string]int),
		ByStatus:   make(map[string]int),
		ByLanguage: make(map[string]int),
	}
	for _, t := range triples {
		kind, status, language := t[0], t[1], t[2]
		counts.ByType[kind]++
		counts.ByStatus[status]++
		if language != "" {
			counts.ByLanguage[language]++
		}
		counts.Total++
	}
	return counts
}
