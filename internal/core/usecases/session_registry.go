package usecases

import (
	"context"
	"log/slog"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/proxima/internal/pkg/metrics"
)

const refreshConcurrency = 8

// SessionRegistry tracks the live map sessions of this instance.
type SessionRegistry struct {
	sessions cmap.ConcurrentMap[string, *Session]
	logger   *slog.Logger
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(logger *slog.Logger) *SessionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRegistry{sessions: cmap.New[*Session](), logger: logger}
}

// Add registers a session.
func (r *SessionRegistry) Add(s *Session) {
	r.sessions.Set(s.ID(), s)
	metrics.ActiveSessions.Set(float64(r.sessions.Count()))
}

// Get looks a session up by id.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	return r.sessions.Get(id)
}

// Remove forgets a session.
func (r *SessionRegistry) Remove(id string) {
	r.sessions.Remove(id)
	metrics.ActiveSessions.Set(float64(r.sessions.Count()))
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	return r.sessions.Count()
}

// CatalogChanged re-ranks every live session. Failures are logged per session.
func (r *SessionRegistry) CatalogChanged(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(refreshConcurrency)
	for item := range r.sessions.IterBuffered() {
		g.Go(func() error {
			if err := item.Val.CatalogChanged(ctx); err != nil {
				r.logger.Warn("failed to refresh session after catalog change",
					"session_id", item.Key, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
