package flowvalkey

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/dbtest/valkeytest"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"
)

func TestStoreKey(t *testing.T) {
	store := newStore(nil, "library-oauth:")

	assert.Equal(t, "library-oauth", store.prefix)
	assert.Equal(t, "library-oauth:state:abc", store.key(objectTypeState, "abc"))
	assert.Equal(t, "library-oauth:session:sid", store.key(objectTypeSession, "sid"))
}

func TestRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := t.Context()
	valkeyClient, _, terminate := valkeytest.Start(ctx)
	defer terminate(ctx)

	repo := NewRepository(valkeyClient, "library-oauth")

	t.Run("state is consumed on first read", func(t *testing.T) {
		state := flow.State{
			ID:           "state-1",
			PKCEVerifier: "verifier-1",
			ReturnTo:     "/projects",
			Fingerprint:  "fp-1",
			Expiry:       time.Now().Add(10 * time.Minute),
		}
		require.NoError(t, repo.StoreState(ctx, state))

		got, err := repo.ConsumeState(ctx, "state-1")
		require.NoError(t, err)
		assert.Equal(t, state.PKCEVerifier, got.PKCEVerifier)
		assert.Equal(t, state.ReturnTo, got.ReturnTo)
		assert.Equal(t, state.Fingerprint, got.Fingerprint)

		_, err = repo.ConsumeState(ctx, "state-1")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("state expires server side", func(t *testing.T) {
		require.NoError(t, repo.StoreState(ctx, flow.State{
			ID:     "short-lived",
			Expiry: time.Now().Add(time.Second),
		}))

		time.Sleep(1500 * time.Millisecond)

		_, err := repo.ConsumeState(ctx, "short-lived")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := repo.ConsumeState(ctx, "never-stored")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("session round trip", func(t *testing.T) {
		session := flow.Session{
			ID:            "sid-1",
			TokenType:     "Bearer",
			AccessToken:   "at",
			RefreshToken:  "rt",
			GrantedScopes: []string{"read", "create"},
			Expiry:        time.Now().Add(time.Hour),
		}
		require.NoError(t, repo.StoreSession(ctx, session))

		got, err := repo.LoadSession(ctx, "sid-1")
		require.NoError(t, err)
		if diff := cmp.Diff(session, got); diff != "" {
			t.Fatalf("Unexpected session in the store (-want, +got):\n%s", diff)
		}

		// a refreshed session overwrites the record in place
		session.AccessToken = "at-2"
		require.NoError(t, repo.StoreSession(ctx, session))
		got, err = repo.LoadSession(ctx, "sid-1")
		require.NoError(t, err)
		assert.Equal(t, "at-2", got.AccessToken)

		require.NoError(t, repo.DeleteSession(ctx, "sid-1"))
		_, err = repo.LoadSession(ctx, "sid-1")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})
}
