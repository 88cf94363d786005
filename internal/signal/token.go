package signal

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"triwhist/internal/engine"
)

// SessionClaims bind one seat to one table namespace for the lifetime
// of a session. Peers reject relay traffic that does not carry a
// token for their table.
type SessionClaims struct {
	Seat  engine.Seat `json:"seat"`
	Table string      `json:"table"`
	jwt.RegisteredClaims
}

// NewSessionToken mints a signed token for seat at table.
func NewSessionToken(secret []byte, seat engine.Seat, table string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Seat:  seat,
		Table: table,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken verifies a token and returns its claims.
func ParseSessionToken(secret []byte, raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	if !claims.Seat.Valid() {
		return nil, fmt.Errorf("session token carries invalid seat %d", claims.Seat)
	}
	return claims, nil
}
