// Package auth verifies the HS256 tokens that accompany speech requests.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UltraRealisticFeature is the feature grant required for ultra-realistic
// voices.
const UltraRealisticFeature = "ultra-realistic-voice"

var (
	// ErrSecretEmpty is returned by NewVerifier without a secret.
	ErrSecretEmpty = errors.New("jwt secret cannot be empty")
	// ErrTokenMissing is returned for an empty token.
	ErrTokenMissing = errors.New("token is missing")
	// ErrTokenInvalid is returned for a token that fails verification.
	ErrTokenInvalid = errors.New("token is invalid")
)

// Claims is the payload of a speech token.
type Claims struct {
	UID         string `json:"uid"`
	FeatureName string `json:"featureName,omitempty"`
	GrantedAt   *int64 `json:"grantedAt,omitempty"`

	jwt.RegisteredClaims
}

// HasUltraRealisticVoice reports whether the user opted in to ultra-realistic
// voices.
func (c *Claims) HasUltraRealisticVoice() bool {
	return c.FeatureName == UltraRealisticFeature && c.GrantedAt != nil && *c.GrantedAt != 0
}

// Verifier checks token signatures with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrSecretEmpty
	}

	return &Verifier{secret: []byte(secret)}, nil
}

// Verify validates token including its expiry.
func (v *Verifier) Verify(token string) (*Claims, error) {
	return v.parse(token)
}

// VerifyIgnoringExpiry validates the signature of token but accepts expired
// tokens, for long-lived reader sessions.
func (v *Verifier) VerifyIgnoringExpiry(token string) (*Claims, error) {
	return v.parse(token, jwt.WithoutClaimsValidation())
}

// Sign issues a token for claims. It is used by tools and tests.
func (v *Verifier) Sign(claims *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

func (v *Verifier) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrTokenMissing
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
