package auth

import "github.com/go-faster/errors"

var (
	// ErrUnauthorized is returned for a missing, malformed, forged or expired token.
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWrongPassword is returned by ChangePassword when the current
	// password does not match.
	ErrWrongPassword       = errors.New("current password is incorrect")
	ErrCredentialsRequired = errors.New("email and password required")
	ErrPasswordRequired    = errors.New("new password required")
	ErrInvalidSetupKey     = errors.New("invalid setup key")
	ErrAdminExists         = errors.New("admin already exists")
	ErrAdminNotFound       = errors.New("admin not found")
	ErrTooManyAttempts     = errors.New("too many login attempts")
)
