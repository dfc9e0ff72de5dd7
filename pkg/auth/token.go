package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/embedops/flashgate/pkg/config"
)

// Identity is the verified credential payload attached to a request for its
// lifetime. Never stored server-side.
type Identity struct {
	UserID string
	Email  string
}

// ErrInvalidToken covers every verification failure. Callers must not
// distinguish why a token was rejected in their responses.
var ErrInvalidToken = errors.New("invalid token")

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and verifies the service's signed bearer credentials.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenIssuer builds an issuer from the auth configuration.
func NewTokenIssuer(cfg config.Auth) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TokenTTL.Std(),
		now:      time.Now,
	}
}

// Issue signs a token for the user with the configured issuer, audience and TTL.
func (t *TokenIssuer) Issue(user *User) (string, error) {
	now := t.now()
	claims := tokenClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and verifies raw: signature, expiry, issuer and audience all
// have to match. Every failure collapses into ErrInvalidToken.
func (t *TokenIssuer) Verify(raw string) (Identity, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if !claims.VerifyIssuer(t.issuer, true) {
		return Identity{}, ErrInvalidToken
	}
	if !claims.VerifyAudience(t.audience, true) {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
