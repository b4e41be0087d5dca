package user

import "errors"

var (
	ErrActorMissing       = errors.New("authenticated user is missing from request context")
	ErrInvalidTokenClaims = errors.New("token claims are missing user_id or role")
)
