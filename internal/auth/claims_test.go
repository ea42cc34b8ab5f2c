package auth_test

import (
	"testing"
	"time"

	"github.com/book-expert/speech-service/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grantedAt(value int64) *int64 {
	return &value
}

func TestVerifier_RoundTrip(t *testing.T) {
	t.Parallel()

	verifier, err := auth.NewVerifier("secret")
	require.NoError(t, err)

	token, err := verifier.Sign(&auth.Claims{
		UID:              "user-1",
		FeatureName:      auth.UltraRealisticFeature,
		GrantedAt:        grantedAt(1_700_000_000),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	require.NoError(t, err)

	claims, err := verifier.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UID)
	assert.True(t, claims.HasUltraRealisticVoice())
}

func TestVerifier_Expiry(t *testing.T) {
	t.Parallel()

	verifier, err := auth.NewVerifier("secret")
	require.NoError(t, err)

	token, err := verifier.Sign(&auth.Claims{
		UID:              "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)

	claims, err := verifier.VerifyIgnoringExpiry(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UID)
}

func TestVerifier_Rejects(t *testing.T) {
	t.Parallel()

	verifier, err := auth.NewVerifier("secret")
	require.NoError(t, err)

	other, err := auth.NewVerifier("other")
	require.NoError(t, err)

	forged, err := other.Sign(&auth.Claims{UID: "mallory"})
	require.NoError(t, err)

	_, err = verifier.VerifyIgnoringExpiry(forged)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)

	_, err = verifier.Verify("")
	require.ErrorIs(t, err, auth.ErrTokenMissing)

	_, err = verifier.Verify("not-a-jwt")
	require.ErrorIs(t, err, auth.ErrTokenInvalid)

	_, err = auth.NewVerifier("")
	require.ErrorIs(t, err, auth.ErrSecretEmpty)
}

func TestClaims_HasUltraRealisticVoice(t *testing.T) {
	t.Parallel()

	assert.False(t, (&auth.Claims{UID: "u", FeatureName: auth.UltraRealisticFeature}).HasUltraRealisticVoice())
	assert.False(t, (&auth.Claims{UID: "u", FeatureName: "other", GrantedAt: grantedAt(5)}).HasUltraRealisticVoice())
	assert.True(t, (&auth.Claims{UID: "u", FeatureName: auth.UltraRealisticFeature, GrantedAt: grantedAt(5)}).HasUltraRealisticVoice())
}
