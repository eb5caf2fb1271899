package flowmock

import (
	"context"
	"sync"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"
)

type RepositoryOption func(*Repository)

// Repository is an in-memory flow.Repository for tests, with per-operation
// error injection.
type Repository struct {
	mu       sync.Mutex
	states   map[string]flow.State
	sessions map[string]flow.Session

	consumeStateErr, storeStateErr                    error
	loadSessionErr, storeSessionErr, deleteSessionErr error
}

func WithState(state flow.State) RepositoryOption {
	return func(r *Repository) { r.states[state.ID] = state }
}
func WithSession(sess flow.Session) RepositoryOption {
	return func(r *Repository) { r.sessions[sess.ID] = sess }
}
func WithConsumeStateError(err error) RepositoryOption {
	return func(r *Repository) { r.consumeStateErr = err }
}
func WithStoreStateError(err error) RepositoryOption {
	return func(r *Repository) { r.storeStateErr = err }
}
func WithLoadSessionError(err error) RepositoryOption {
	return func(r *Repository) { r.loadSessionErr = err }
}
func WithStoreSessionError(err error) RepositoryOption {
	return func(r *Repository) { r.storeSessionErr = err }
}
func WithDeleteSessionError(err error) RepositoryOption {
	return func(r *Repository) { r.deleteSessionErr = err }
}

var _ = flow.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		states:   make(map[string]flow.State),
		sessions: make(map[string]flow.Session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Repository) StoreState(_ context.Context, state flow.State) error {
	if r.storeStateErr != nil {
		return r.storeStateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[state.ID]; ok {
		return serviceerr.ErrConflict
	}
	r.states[state.ID] = state
	return nil
}

func (r *Repository) ConsumeState(_ context.Context, stateID string) (flow.State, error) {
	if r.consumeStateErr != nil {
		return flow.State{}, r.consumeStateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[stateID]
	if !ok {
		return flow.State{}, serviceerr.ErrNotFound
	}
	delete(r.states, stateID)
	return state, nil
}

// HasState reports whether a state record is still stored. Used by tests to
// assert single-use consumption.
func (r *Repository) HasState(stateID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.states[stateID]
	return ok
}

func (r *Repository) StoreSession(_ context.Context, sess flow.Session) error {
	if r.storeSessionErr != nil {
		return r.storeSessionErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
	return nil
}

func (r *Repository) LoadSession(_ context.Context, sessionID string) (flow.Session, error) {
	if r.loadSessionErr != nil {
		return flow.Session{}, r.loadSessionErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		return sess, nil
	}
	return flow.Session{}, serviceerr.ErrNotFound
}

func (r *Repository) DeleteSession(_ context.Context, sessionID string) error {
	if r.deleteSessionErr != nil {
		return r.deleteSessionErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}
