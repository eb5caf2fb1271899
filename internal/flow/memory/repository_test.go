package flowmemory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
	flowmemory "github.com/guilherme-hl1ma/project-library-oauth/internal/flow/memory"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"
)

func TestStateLifecycle(t *testing.T) {
	repo := flowmemory.NewRepository()
	state := flow.State{
		ID:           "state-1",
		PKCEVerifier: "verifier-1",
		ReturnTo:     "/projects",
		Expiry:       time.Now().Add(10 * time.Minute),
	}

	require.NoError(t, repo.StoreState(t.Context(), state))
	assert.ErrorIs(t, repo.StoreState(t.Context(), state), serviceerr.ErrConflict)

	got, err := repo.ConsumeState(t.Context(), "state-1")
	require.NoError(t, err)
	assert.Equal(t, state, got)

	_, err = repo.ConsumeState(t.Context(), "state-1")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound, "state is single use")
}

func TestStateExpiry(t *testing.T) {
	repo := flowmemory.NewRepository()
	require.NoError(t, repo.StoreState(t.Context(), flow.State{
		ID:     "short-lived",
		Expiry: time.Now().Add(30 * time.Millisecond),
	}))

	time.Sleep(60 * time.Millisecond)

	_, err := repo.ConsumeState(t.Context(), "short-lived")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	repo := flowmemory.NewRepository()
	session := flow.Session{
		ID:            "sid-1",
		AccessToken:   "at",
		GrantedScopes: []string{"read"},
		Expiry:        time.Now().Add(time.Hour),
	}

	require.NoError(t, repo.StoreSession(t.Context(), session))

	got, err := repo.LoadSession(t.Context(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	// updating an existing session overwrites it
	session.AccessToken = "at-2"
	require.NoError(t, repo.StoreSession(t.Context(), session))
	got, err = repo.LoadSession(t.Context(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", got.AccessToken)

	require.NoError(t, repo.DeleteSession(t.Context(), "sid-1"))
	_, err = repo.LoadSession(t.Context(), "sid-1")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)

	assert.NoError(t, repo.DeleteSession(t.Context(), "sid-1"), "delete is idempotent")
}
