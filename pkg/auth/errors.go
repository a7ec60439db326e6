package auth

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized: authentication required")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
