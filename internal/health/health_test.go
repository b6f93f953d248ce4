package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusHealthyWithNoChecks(t *testing.T) {
	r := NewReporter(testLogger(), NewMetrics(), time.Now())
	doc := r.Status(context.Background(), SessionCounts{}, true)
	assert.Equal(t, StatusHealthy, doc.Overall)
	assert.Empty(t, doc.Components)
}

func TestStatusDegradedWhenOneComponentDegrades(t *testing.T) {
	r := NewReporter(testLogger(), NewMetrics(), time.Now())
	r.AddCheck("metadata-store", func(ctx context.Context) (Status, error) {
		return StatusHealthy, nil
	})
	r.AddCheck("workspace", func(ctx context.Context) (Status, error) {
		return StatusDegraded, errors.New("one language failed to provision")
	})

	doc := r.Status(context.Background(), SessionCounts{}, true)
	assert.Equal(t, StatusDegraded, doc.Overall)
	require.Contains(t, doc.Components, "workspace")
	assert.Equal(t, StatusDegraded, doc.Components["workspace"].Status)
}

func TestStatusUnhealthyDominatesDegraded(t *testing.T) {
	r := NewReporter(testLogger(), NewMetrics(), time.Now())
	r.AddCheck("degraded-one", func(ctx context.Context) (Status, error) {
		return StatusDegraded, errors.New("partial")
	})
	r.AddCheck("dead-one", func(ctx context.Context) (Status, error) {
		return StatusUnhealthy, errors.New("down")
	})

	doc := r.Status(context.Background(), SessionCounts{}, false)
	assert.Equal(t, StatusUnhealthy, doc.Overall)
	assert.Nil(t, doc.Components, "non-detailed request should omit per-component detail")
}

func TestStatusComponentsOmittedWhenNotDetailed(t *testing.T) {
	r := NewReporter(testLogger(), NewMetrics(), time.Now())
	r.AddCheck("ok", func(ctx context.Context) (Status, error) { return StatusHealthy, nil })

	doc := r.Status(context.Background(), SessionCounts{}, false)
	assert.Nil(t, doc.Components)
}

func TestUptimeReflectsElapsedTime(t *testing.T) {
	started := time.Now().Add(-5 * time.Second)
	r := NewReporter(testLogger(), NewMetrics(), started)
	doc := r.Status(context.Background(), SessionCounts{}, false)
	assert.GreaterOrEqual(t, doc.UptimeMs, int64(5000))
}

func TestBuildSessionCountsBucketsByTypeStatusLanguage(t *testing.T) {
	counts := BuildSessionCounts([][3]string{
		{"execution", "running", "python"},
		{"execution", "stopped", "python"},
		{"vscode", "running", ""},
	})
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.ByType["execution"])
	assert.Equal(t, 1, counts.ByType["vscode"])
	assert.Equal(t, 1, counts.ByStatus["stopped"])
	assert.Equal(t, 2, counts.ByLanguage["python"])
	assert.NotContains(t, counts.ByLanguage, "")
}

func TestTextExportIncludesOverallAndSessionCounts(t *testing.T) {
	r := NewReporter(testLogger(), NewMetrics(), time.Now())
	doc := r.Status(context.Background(), BuildSessionCounts([][3]string{
		{"execution", "running", "go"},
	}), true)

	text := TextExport(doc)
	assert.Contains(t, text, "overall healthy")
	assert.Contains(t, text, "sessions_total 1")
	assert.Contains(t, text, "sessions_by_type_execution 1")
	assert.Contains(t, text, "sessions_by_language_go 1")
}

func TestTextExportIsSortedForStableOutput(t *testing.T) {
	r := NewReporter(testLogger(), NewMetrics(), time.Now())
	doc := r.Status(context.Background(), SessionCounts{}, false)
	first := TextExport(doc)
	second := TextExport(doc)
	assert.Equal(t, first, second)
}
