package session

import (
	"context"
	"time"

	"github.com/ashureev/pacifica-bot/internal/metrics"
)

// Sweep removes expired sessions and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	removed := 0
	for _, id := range ids {
		r.mu.Lock()
		e, ok := r.entries[id]
		r.mu.Unlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		if r.expired(e) {
			e.session = nil
			removed++
		}
		r.release(id, e)
	}
	return removed
}

// StartSweeper runs a background goroutine that periodically drops
// sessions idle for longer than the registry TTL.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		r.logger.Info("Session sweeper started", "interval", interval, "ttl", r.ttl)

		for {
			select {
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.logger.Info("Session sweeper dropped expired sessions", "count", n)
				}
				metrics.ActiveSessions.Set(float64(r.Len()))
			case <-ctx.Done():
				r.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
