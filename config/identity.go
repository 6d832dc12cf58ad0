package config

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// SubjectID returns the numeric user id in the token's sub claim. The
// signature is not checked; the server does that on every request.
func SubjectID(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, ErrMissingSubject
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrMissingSubject, sub)
	}
	return id, nil
}
