package authn

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hangarhq/hangar/pkg/apperr"
)

// SessionClaims is the token payload of a signed-in session. The username
// claim carries the numeric user id; the registered subject carries the
// email address.
type SessionClaims struct {
	Username       int64 `json:"username"`
	OrganizationID int64 `json:"organizationId"`
	jwt.RegisteredClaims
}

// Signer issues and verifies session tokens.
type Signer interface {
	Sign(userID int64, email string, orgID int64) (string, error)
	Verify(token string) (*SessionClaims, error)
}

// JWTSigner implements Signer with HMAC-SHA256 signed JWTs.
//
// Tokens carry no expiry. Whether sessions should expire is an open product
// decision; until it lands, revocation means rotating the signing secret.
type JWTSigner struct {
	secret []byte
}

// NewJWTSigner creates a signer with the given HMAC secret
func NewJWTSigner(secret string) *JWTSigner {
	return &JWTSigner{secret: []byte(secret)}
}

func (s *JWTSigner) Sign(userID int64, email string, orgID int64) (string, error) {
	claims := SessionClaims{
		Username:       userID,
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  email,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

func (s *JWTSigner) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, apperr.Unauthorized("invalid session token")
	}
	return claims, nil
}
