package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chathub/internal/identity"
	dbconfig "chathub/pkg/database"
	"chathub/pkg/types"
)

type recordingObserver struct {
	changed []string
}

func (o *recordingObserver) ProfileChanged(user *types.User) {
	o.changed = append(o.changed, user.Username)
}

func newTestService(t *testing.T) (*Service, *recordingObserver) {
	t.Helper()
	store, err := identity.NewStore(dbconfig.DefaultConfig(filepath.Join(t.TempDir(), "identity.db")), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tokens, err := NewTokens(testTokenConfig())
	require.NoError(t, err)

	observer := &recordingObserver{}
	return NewService(store, tokens, 4, observer, zaptest.NewLogger(t)), observer
}

func TestService_RegisterLoginAuthenticate(t *testing.T) {
	svc, observer := newTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, RegisterInput{Username: " alice ", Password: "password1", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, []string{"alice"}, observer.changed)

	identity, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, types.Identity{UserID: user.ID, Username: "alice"}, identity)

	_, _, err = svc.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, _, err = svc.Login(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrBadCredentials)

	loggedIn, pair, err := svc.Login(ctx, "alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, refreshed.AccessToken)
	assert.NoError(t, err)
}

func TestService_RegisterConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1", Email: "a@example.com"})
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, _, err = svc.Register(ctx, RegisterInput{Username: "alice2", Password: "password1", Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, _, err = svc.Register(ctx, RegisterInput{Username: "has space", Password: "password1"})
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, _, err = svc.Register(ctx, RegisterInput{Username: "carol", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestService_AuthenticateRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.Equal(t, types.KindUnauthenticated, types.KindOf(err))
}

func TestService_AuthenticateUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	pair, err := svc.tokens.GeneratePair(4242, "ghost")
	require.NoError(t, err)
	_, err = svc.Authenticate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestService_ChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "nope-nope", "password2"), ErrWrongPassword)
	require.NoError(t, svc.ChangePassword(ctx, user.ID, "password1", "password2"))

	_, _, err = svc.Login(ctx, "alice", "password1")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, _, err = svc.Login(ctx, "alice", "password2")
	assert.NoError(t, err)
}

func TestService_UpdateProfile(t *testing.T) {
	svc, observer := newTestService(t)
	ctx := context.Background()

	alice, _, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, RegisterInput{Username: "bob", Password: "password1"})
	require.NoError(t, err)

	bad := "Bad Handle"
	_, err = svc.UpdateProfile(ctx, alice.ID, types.ProfileUpdate{Handle: &bad})
	assert.ErrorIs(t, err, ErrInvalidHandle)

	taken := "bob"
	_, err = svc.UpdateProfile(ctx, alice.ID, types.ProfileUpdate{Username: &taken})
	assert.ErrorIs(t, err, ErrProfileConflict)

	handle, bio := "alice_01", "hello"
	updated, err := svc.UpdateProfile(ctx, alice.ID, types.ProfileUpdate{Handle: &handle, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "alice_01", updated.Handle)
	assert.Equal(t, "hello", updated.Bio)
	assert.Equal(t, []string{"alice", "bob", "alice"}, observer.changed)
}

func TestService_LegacyAdminEmailIsReserved(t *testing.T) {
	ctx := context.Background()
	store, err := identity.NewStore(dbconfig.DefaultConfig(filepath.Join(t.TempDir(), "identity.db")), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	tokens, err := NewTokens(testTokenConfig())
	require.NoError(t, err)
	svc := NewService(store, tokens, 4, nil, zaptest.NewLogger(t))

	creator, _, err := svc.Register(ctx, RegisterInput{Username: "creator", Password: "password1"})
	require.NoError(t, err)
	legacy := &types.Group{ID: "legacy", Name: "legacy", AdminEmail: "founder@example.com"}
	require.NoError(t, store.CreateGroup(ctx, legacy, creator.ID))

	_, _, err = svc.Register(ctx, RegisterInput{Username: "mallory", Password: "password1", Email: "founder@example.com"})
	assert.ErrorIs(t, err, ErrEmailReserved)

	mallory, _, err := svc.Register(ctx, RegisterInput{Username: "mallory", Password: "password1"})
	require.NoError(t, err)

	reserved := "founder@example.com"
	_, err = svc.UpdateProfile(ctx, mallory.ID, types.ProfileUpdate{Email: &reserved})
	assert.ErrorIs(t, err, ErrEmailReserved)

	own := "mallory@example.com"
	updated, err := svc.UpdateProfile(ctx, mallory.ID, types.ProfileUpdate{Email: &own})
	require.NoError(t, err)
	assert.Equal(t, own, updated.Email)
}
