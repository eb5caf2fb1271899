// Package flowvalkey stores flow state and sessions in valkey as JSON blobs
// with server-side expiry, so records disappear on their own when a flow is
// abandoned or a session runs out.
package flowvalkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
)

type objectType = string

const (
	objectTypeState   objectType = "state"
	objectTypeSession objectType = "session"
)

var (
	ErrGetState     = errors.New("getting state from store")
	ErrStoreState   = errors.New("setting state into storage")
	ErrGetSession   = errors.New("getting session from store")
	ErrStoreSession = errors.New("setting session into storage")
)

type Repository struct {
	store *store
}

var _ = flow.Repository(&Repository{})

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
	}
}

func (r *Repository) StoreState(ctx context.Context, state flow.State) error {
	if err := r.store.Set(ctx, objectTypeState, state.ID, state, time.Until(state.Expiry)); err != nil {
		return errors.Join(ErrStoreState, err)
	}

	return nil
}

func (r *Repository) ConsumeState(ctx context.Context, stateID string) (flow.State, error) {
	var state flow.State
	if err := r.store.GetDel(ctx, objectTypeState, stateID, &state); err != nil {
		return flow.State{}, errors.Join(ErrGetState, err)
	}

	return state, nil
}

func (r *Repository) StoreSession(ctx context.Context, s flow.Session) error {
	if err := r.store.Set(ctx, objectTypeSession, s.ID, s, time.Until(s.Expiry)); err != nil {
		return errors.Join(ErrStoreSession, err)
	}

	return nil
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (flow.Session, error) {
	var s flow.Session
	if err := r.store.Get(ctx, objectTypeSession, sessionID, &s); err != nil {
		return flow.Session{}, errors.Join(ErrGetSession, err)
	}

	return s, nil
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.store.Destroy(ctx, objectTypeSession, sessionID); err != nil {
		return fmt.Errorf("deleting session from store: %w", err)
	}

	return nil
}
