package flow

import "context"

// Repository persists flow state records and sessions. Implementations must
// make ConsumeState atomic: the record is deleted on first read, so a replayed
// callback never sees the PKCE verifier again.
type Repository interface {
	StoreState(ctx context.Context, state State) error
	// ConsumeState returns the state record and removes it in the same
	// operation. A second call with the same ID fails with ErrNotFound.
	ConsumeState(ctx context.Context, id string) (State, error)

	StoreSession(ctx context.Context, session Session) error
	LoadSession(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error
}
