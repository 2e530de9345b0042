package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storage "github.com/habithive/habithive/storage/persistent"
)

const testSigningKey = "test-signing-key"

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(storage.NewMemoryStore(), testSigningKey)
}

func TestSignUpIssuesUsableTokens(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	authToken, refreshToken, err := svc.SignUp(ctx, "ana", "ana@example.com", "password1")
	require.NoError(t, err)
	require.NotEmpty(t, authToken)
	require.NotEmpty(t, refreshToken)

	userID, err := svc.ParseToken(authToken)
	require.NoError(t, err)
	assert.NotEmpty(t, userID)
}

func TestSignUpValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, _, err := svc.SignUp(ctx, "a", "ana@example.com", "password1")
	assert.ErrorContains(t, err, "username")

	_, _, err = svc.SignUp(ctx, "ana", "not-an-email", "password1")
	assert.ErrorContains(t, err, "email")

	_, _, err = svc.SignUp(ctx, "ana", "ana@example.com", "short")
	assert.ErrorContains(t, err, "password")

	_, _, err = svc.SignUp(ctx, "ana", "ana@example.com", "onlyletters")
	assert.ErrorContains(t, err, "password")
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, _, err := svc.SignUp(ctx, "ana", "ana@example.com", "password1")
	require.NoError(t, err)

	_, _, err = svc.SignUp(ctx, "ana2", "ana@example.com", "password1")
	assert.ErrorContains(t, err, "already exists")
}

func TestSignInChecksPassword(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, _, err := svc.SignUp(ctx, "ana", "ana@example.com", "password1")
	require.NoError(t, err)

	_, _, err = svc.SignIn(ctx, "ana@example.com", "password1")
	require.NoError(t, err)

	_, _, err = svc.SignIn(ctx, "ana@example.com", "wrongpass1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, _, err = svc.SignIn(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestRefreshMintsNewPair(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, refreshToken, err := svc.SignUp(ctx, "ana", "ana@example.com", "password1")
	require.NoError(t, err)

	authToken, newRefresh, err := svc.Refresh(ctx, refreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, authToken)
	assert.NotEmpty(t, newRefresh)
}

func TestParseTokenRejectsWrongKey(t *testing.T) {
	svc := newService(t)
	other := NewService(storage.NewMemoryStore(), "another-key")

	token, err := svc.CreateAuthToken("u1")
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.Error(t, err)

	_, err = svc.ParseToken("not.a.token")
	assert.Error(t, err)
}
