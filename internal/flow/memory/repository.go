// Package flowmemory is the single-process flow.Repository, backed by an
// expiring in-memory cache. It fits development and single-replica
// deployments; anything load-balanced needs the valkey repository.
package flowmemory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"
)

const cleanupInterval = time.Minute

type Repository struct {
	// mu serializes ConsumeState's read-then-delete
	mu       sync.Mutex
	states   *gocache.Cache
	sessions *gocache.Cache
}

var _ = flow.Repository(&Repository{})

func NewRepository() *Repository {
	return &Repository{
		states:   gocache.New(gocache.NoExpiration, cleanupInterval),
		sessions: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (r *Repository) StoreState(_ context.Context, state flow.State) error {
	if _, ok := r.states.Get(state.ID); ok {
		return serviceerr.ErrConflict
	}
	r.states.Set(state.ID, state, time.Until(state.Expiry))
	return nil
}

func (r *Repository) ConsumeState(_ context.Context, stateID string) (flow.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.states.Get(stateID)
	if !ok {
		return flow.State{}, serviceerr.ErrNotFound
	}
	r.states.Delete(stateID)

	//nolint:forcetypeassert
	return value.(flow.State), nil
}

func (r *Repository) StoreSession(_ context.Context, s flow.Session) error {
	r.sessions.Set(s.ID, s, time.Until(s.Expiry))
	return nil
}

func (r *Repository) LoadSession(_ context.Context, sessionID string) (flow.Session, error) {
	value, ok := r.sessions.Get(sessionID)
	if !ok {
		return flow.Session{}, serviceerr.ErrNotFound
	}

	//nolint:forcetypeassert
	return value.(flow.Session), nil
}

func (r *Repository) DeleteSession(_ context.Context, sessionID string) error {
	r.sessions.Delete(sessionID)
	return nil
}
