package broker

import (
	"context"

	"github.com/sandkasten/broker/internal/health"
)

// SystemHealth implements the system_health tool: overall status,
// uptime, memory, and session statistics grouped by type/status/
// language, with per-component detail only when detailed is true.
func (b *Broker) SystemHealth(ctx context.Context, detailed bool) (health.Document, error) {
	all, err := b.sessions.ListSessions(ctx, "")
	if err != nil {
		return health.Document{}, newError(KindInternal, "list sessions", err)
	}

	triples := make([][3]string, 0, len(all))
	for _, s := range all {
		triples = append(triples, [3]string{string(s.Type), string(s.Status), s.Language})
	}
	counts := health.BuildSessionCounts(triples)

	return b.health.Status(ctx, counts, detailed), nil
}
