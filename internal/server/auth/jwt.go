// Package auth implements the credential and token primitives of the
// service: bcrypt password hashing and HS256 bearer token issue/verify.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenValidity applies when the caller does not supply a TTL.
	DefaultTokenValidity = 15 * time.Minute

	// notBeforeLeeway pushes nbf slightly into the past so a verifier with
	// a marginally slower clock accepts a freshly issued token.
	notBeforeLeeway = 1 * time.Second
)

// GenerateToken issues a signed HS256 token for the given subject with
// claims iat=now, nbf=now-leeway and exp=now+validityDuration. A zero
// duration falls back to DefaultTokenValidity; a negative one yields a
// token that is already expired.
func GenerateToken(subject string, secretKey []byte, validityDuration time.Duration) (string, error) {
	if validityDuration == 0 {
		validityDuration = DefaultTokenValidity
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-notBeforeLeeway)),
		ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and time window of a token and returns
// its claims. Only HS256 is accepted. Failures are reported as the
// sentinel errors in package common.
func ParseToken(tokenString string, secretKey []byte) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, mapTokenError(err)
	}

	if !token.Valid {
		return nil, common.ErrTokenMalformed
	}

	return claims, nil
}

// GetSubjectFromToken is a convenience wrapper returning only the subject.
func GetSubjectFromToken(tokenString string, secretKey []byte) (string, error) {
	claims, err := ParseToken(tokenString, secretKey)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return common.ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return common.ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return common.ErrTokenMalformed
	default:
		return common.ErrTokenMalformed
	}
}
