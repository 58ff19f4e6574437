package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/domain"
)

// sessionRepository keeps one immutable snapshot per session. Updates swap
// the stored pointer under the lock, so readers never see a half-applied
// transition.
type sessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Snapshot
}

func NewSessionRepository() domain.SessionRepository {
	return &sessionRepository{sessions: make(map[string]*domain.Snapshot)}
}

func (r *sessionRepository) Create(ctx context.Context, snapshot domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[snapshot.ID]; exists {
		return fmt.Errorf("create session %s: already exists", snapshot.ID)
	}
	s := snapshot
	r.sessions[snapshot.ID] = &s
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return *s, nil
}

func (r *sessionRepository) Update(ctx context.Context, id string, fn domain.UpdateFunc) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[id]
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	next, err := fn(*cur)
	if err != nil {
		return *cur, err
	}
	r.sessions[id] = &next
	return next, nil
}

// DeleteIdleSince removes every session not touched since cutoff.
func (r *sessionRepository) DeleteIdleSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		zlog.Logger.Info().Int("count", len(removed)).Time("cutoff", cutoff).Msg("idle sessions removed")
	}
	return removed, nil
}
