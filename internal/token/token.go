package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const DefaultTTL = 24 * time.Hour

// Issuer signs and verifies self-contained identity tokens. Tokens carry
// subject and expiry only; nothing is stored server-side.
type Issuer struct {
	Secret []byte
	TTL    time.Duration
}

func NewIssuer(secret []byte) *Issuer {
	return &Issuer{Secret: secret, TTL: DefaultTTL}
}

func (i *Issuer) ttl() time.Duration {
	if i.TTL != 0 {
		return i.TTL
	}
	return DefaultTTL
}

func (i *Issuer) Issue(userID uint) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl())),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.Secret)
}

// Verify returns the subject user id, or ErrInvalidToken for anything
// expired, malformed or signed by another key.
func (i *Issuer) Verify(raw string) (uint, error) {
	t, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signature method: %v", t.Header["alg"])
		}
		return i.Secret, nil
	})
	if err != nil || !t.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := t.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}
