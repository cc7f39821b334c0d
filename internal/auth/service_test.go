package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/almacen-pos/almacen/internal/shared"
)

type memoryUserRepo struct {
	users map[string]*User
}

func (r *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := r.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func newAuthFixture(t *testing.T) (*Service, *shared.TokenManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("secreto123"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &memoryUserRepo{users: map[string]*User{
		"dueno@almacen.cl": {ID: 1, Name: "Dueño", Email: "dueno@almacen.cl", PasswordHash: string(hash), Role: RoleAdmin, IsActive: true},
		"baja@almacen.cl":  {ID: 2, Name: "Ex", Email: "baja@almacen.cl", PasswordHash: string(hash), Role: RoleVendedor, IsActive: false},
	}}
	tokens := shared.NewTokenManager(client, "test-secret", time.Hour)
	return NewService(repo, tokens), tokens
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	svc, tokens := newAuthFixture(t)

	token, user, err := svc.Login(context.Background(), "dueno@almacen.cl", "secreto123")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, user.Role)
	require.NotEmpty(t, token)

	id, err := tokens.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, int64(1), id.UserID)
	require.Equal(t, RoleAdmin, id.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, _, err := svc.Login(context.Background(), "dueno@almacen.cl", "incorrecta")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "nadie@almacen.cl", "secreto123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Deactivated accounts cannot log in, same error as a bad password.
	_, _, err = svc.Login(context.Background(), "baja@almacen.cl", "secreto123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, tokens := newAuthFixture(t)

	token, _, err := svc.Login(context.Background(), "dueno@almacen.cl", "secreto123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), token))

	_, err = tokens.Resolve(context.Background(), token)
	require.ErrorIs(t, err, shared.ErrSessionExpired)
}

func TestResolveEmptyOrUnknownToken(t *testing.T) {
	_, tokens := newAuthFixture(t)

	_, err := tokens.Resolve(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrSessionExpired)

	_, err = tokens.Resolve(context.Background(), "no-such-token")
	require.ErrorIs(t, err, shared.ErrSessionExpired)
}
