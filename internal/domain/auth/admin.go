// Package auth issues and verifies administrator bearer tokens and manages
// admin accounts.
package auth

import (
	"context"
	"strings"
	"time"
)

// Admin is a dashboard user.
type Admin struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// NewAdmin builds an account with a normalized email and a hashed password.
func NewAdmin(email, password, name string) (*Admin, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrCredentialsRequired
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &Admin{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
	}, nil
}

// Repository provides persistence for admin accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	Get(ctx context.Context, id int64) (*Admin, error)
	// Create inserts a new admin and fills in a.ID and a.CreatedAt. It returns
	// ErrAdminExists when the email is already taken.
	Create(ctx context.Context, a *Admin) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

type claimsKey struct{}

// WithClaims stores verified token claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}
