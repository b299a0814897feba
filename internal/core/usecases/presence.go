package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
	"github.com/samirrijal/proxima/internal/pkg/metrics"
)

type presenceMark struct {
	at     time.Time
	online bool
}

// PresenceTracker folds provider heartbeats into the catalog's online flags.
// Heartbeats are buffered and written by Flush; a provider that stays silent
// longer than the TTL is swept offline.
type PresenceTracker struct {
	repo      ports.PresenceRepository
	publisher ports.EventPublisher
	ttl       time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	marks   map[string]presenceMark
	pending map[string]bool
}

// NewPresenceTracker creates a tracker. publisher may be nil.
func NewPresenceTracker(repo ports.PresenceRepository, publisher ports.EventPublisher, ttl time.Duration, logger *slog.Logger) *PresenceTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceTracker{
		repo:      repo,
		publisher: publisher,
		ttl:       ttl,
		logger:    logger,
		marks:     make(map[string]presenceMark),
		pending:   make(map[string]bool),
	}
}

// Observe records a heartbeat. Events older than the last one seen for the
// same provider are dropped, as are online heartbeats already past the TTL.
func (t *PresenceTracker) Observe(ev domain.PresenceEvent) bool {
	if ev.ProviderID == "" {
		return false
	}
	now := time.Now()
	if ev.At.IsZero() {
		ev.At = now
	}
	if ev.Online && t.ttl > 0 && ev.At.Before(now.Add(-t.ttl)) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.marks[ev.ProviderID]; ok && ev.At.Before(last.at) {
		return false
	}
	t.marks[ev.ProviderID] = presenceMark{at: ev.At, online: ev.Online}
	t.pending[ev.ProviderID] = ev.Online
	return true
}

// Sweep marks online providers whose last heartbeat is older than the TTL as
// offline and returns how many it marked. Offline providers past the TTL
// whose state was already flushed are forgotten.
func (t *PresenceTracker) Sweep() int {
	if t.ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-t.ttl)

	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, m := range t.marks {
		if !m.at.Before(cutoff) {
			continue
		}
		if m.online {
			t.marks[id] = presenceMark{at: m.at, online: false}
			t.pending[id] = false
			n++
			continue
		}
		if _, unflushed := t.pending[id]; !unflushed {
			delete(t.marks, id)
		}
	}
	return n
}

// Tracked returns how many providers the tracker currently remembers.
func (t *PresenceTracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.marks)
}

// Flush writes buffered changes and announces a catalog change when any row
// changed. On a write failure the batch is kept for the next flush, unless
// newer heartbeats superseded it.
func (t *PresenceTracker) Flush(ctx context.Context) (int64, error) {
	t.mu.Lock()
	batch := t.pending
	t.pending = make(map[string]bool)
	t.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	changed, err := t.repo.SetOnline(ctx, batch)
	if err != nil {
		t.mu.Lock()
		fresh := t.pending
		t.pending = maps.Clone(batch)
		maps.Copy(t.pending, fresh)
		t.mu.Unlock()
		return 0, fmt.Errorf("flush presence: %w", err)
	}

	metrics.PresenceChanges.Add(float64(changed))
	t.logger.Debug("presence flushed", "updates", len(batch), "changed", changed)

	if changed > 0 && t.publisher != nil {
		if err := t.publisher.PublishCatalogChanged(ctx); err != nil {
			t.logger.Warn("failed to announce presence change", "error", err)
		}
	}
	return changed, nil
}

// Run sweeps and flushes every interval until ctx is done, then flushes once
// more with a short grace period.
func (t *PresenceTracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.Info("providers timed out", "count", n)
			}
			if _, err := t.Flush(ctx); err != nil {
				t.logger.Error("presence flush failed", "error", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := t.Flush(final); err != nil {
				t.logger.Error("final presence flush failed", "error", err)
			}
			cancel()
			return
		}
	}
}
