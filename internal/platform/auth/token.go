package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs staff tokens with the shared HS256 key.
type Issuer struct {
	Name       string
	SigningKey []byte
	TTL        time.Duration
	now        func() time.Time
}

func NewIssuer(name string, key []byte, ttl time.Duration) *Issuer {
	return &Issuer{Name: name, SigningKey: key, TTL: ttl, now: time.Now}
}

// Token is the login response body.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Issue signs a token for the given identity.
func (i *Issuer) Issue(subject, tenantID, staffID string, roles []string) (*Token, error) {
	if len(i.SigningKey) == 0 {
		return nil, errors.New("token signing key not configured")
	}
	now := i.now().UTC()
	exp := now.Add(i.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.Name,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TenantID: tenantID,
		Roles:    roles,
		StaffID:  staffID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.SigningKey)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: exp}, nil
}
