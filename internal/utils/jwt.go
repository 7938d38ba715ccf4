package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingIdentity = errors.New("token carries no subject")

// Claims represents JWT claims. The subject is the numeric chat user id.
type Claims struct {
	Username string `json:"username"`
	TenantID int64  `json:"tenantId"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *Claims) UserID() (int64, error) {
	if c.Subject == "" {
		return 0, ErrMissingIdentity
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMissingIdentity
	}
	return id, nil
}

// GenerateToken signs a token for a user. Issuing tokens belongs to the
// identity service; this exists for tooling and tests.
func GenerateToken(secret string, userID, tenantID int64, username string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := &Claims{
		Username: username,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates and parses a JWT token. Expired tokens, tokens
// signed with another method and tokens without a usable subject are rejected.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	if _, err := claims.UserID(); err != nil {
		return nil, err
	}

	return claims, nil
}
