package authn

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarhq/hangar/pkg/apperr"
)

func TestJWTSigner_RoundTrip(t *testing.T) {
	signer := NewJWTSigner("test-secret")

	token, err := signer.Sign(42, "jane@example.com", 7)
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.Username)
	assert.Equal(t, "jane@example.com", claims.Subject)
	assert.Equal(t, int64(7), claims.OrganizationID)
}

func TestJWTSigner_ClaimNames(t *testing.T) {
	signer := NewJWTSigner("test-secret")

	token, err := signer.Sign(42, "jane@example.com", 7)
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.EqualValues(t, 42, claims["username"])
	assert.Equal(t, "jane@example.com", claims["sub"])
	assert.EqualValues(t, 7, claims["organizationId"])
}

func TestJWTSigner_RejectsBadTokens(t *testing.T) {
	signer := NewJWTSigner("test-secret")

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTSigner("other-secret")
		token, err := other.Sign(42, "jane@example.com", 7)
		require.NoError(t, err)

		_, err = signer.Verify(token)
		assert.True(t, apperr.IsUnauthorized(err))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := signer.Verify("not-a-token")
		assert.True(t, apperr.IsUnauthorized(err))
	})
}

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(4)

	digest, err := hasher.Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", digest)

	assert.True(t, hasher.Compare(digest, "hunter2"))
	assert.False(t, hasher.Compare(digest, "wrong"))
	assert.False(t, hasher.Compare("", "hunter2"))
}
