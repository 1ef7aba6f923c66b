package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// callers cannot enumerate accounts from the failure shape.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountDisabled    = errors.New("auth: account disabled")
	ErrEmailAlreadyExists = errors.New("auth: email already exists")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenRevoked       = errors.New("auth: token revoked")
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
)
