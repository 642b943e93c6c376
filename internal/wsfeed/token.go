package wsfeed

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("access token invalid")
	ErrTokenExpired = errors.New("access token expired")
)

// tokenSubject extracts the user id from a gateway access token without
// verifying the signature. Verification happens server-side; the client
// only needs the subject to scope its channels and the expiry to fail
// early instead of dialing with a dead token.
func tokenSubject(accessToken string) (string, error) {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims)
	if err != nil {
		return "", errors.Join(ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return "", ErrTokenExpired
	}
	return claims.Subject, nil
}
