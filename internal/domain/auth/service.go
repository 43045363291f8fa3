package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes the auth service.
type Config struct {
	// SetupKey unlocks Setup. Setup is disabled when empty.
	SetupKey string
	// LoginRate and LoginBurst throttle login attempts per email. A zero
	// LoginRate disables throttling.
	LoginRate  rate.Limit
	LoginBurst int
}

// LoginResult is a freshly issued token and the admin it belongs to.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Admin     *Admin
}

// SetupRequest bootstraps an admin account.
type SetupRequest struct {
	Email    string
	Password string
	Name     string
	SetupKey string
}

// Service implements login, token verification and admin management.
type Service struct {
	admins   Repository
	tokens   *Tokens
	setupKey string
	attempts *attemptLimiter
	now      func() time.Time
}

// NewService creates an auth Service.
func NewService(admins Repository, tokens *Tokens, cfg Config) *Service {
	return &Service{
		admins:   admins,
		tokens:   tokens,
		setupKey: cfg.SetupKey,
		attempts: newAttemptLimiter(cfg.LoginRate, cfg.LoginBurst),
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login checks the credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrCredentialsRequired
	}
	if !s.attempts.allow(email, s.now()) {
		zctx.From(ctx).Warn("Login throttled", zap.String("email", email))
		return nil, ErrTooManyAttempts
	}

	a, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "find admin")
	}
	if !CheckPassword(a.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(a)
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Admin logged in", zap.Int64("admin_id", a.ID))
	return &LoginResult{Token: token, ExpiresAt: exp, Admin: a}, nil
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(_ context.Context, token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// Me returns the admin identified by id.
func (s *Service) Me(ctx context.Context, id int64) (*Admin, error) {
	return s.admins.Get(ctx, id)
}

// ChangePassword rotates the password of admin id after checking the
// current one.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string) error {
	if next == "" {
		return ErrPasswordRequired
	}

	a, err := s.admins.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CheckPassword(a.PasswordHash, current) {
		return ErrWrongPassword
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.admins.UpdatePassword(ctx, id, hash); err != nil {
		return errors.Wrap(err, "update password")
	}

	zctx.From(ctx).Info("Admin password changed", zap.Int64("admin_id", id))
	return nil
}

// Setup creates an admin when the request carries the configured setup key.
func (s *Service) Setup(ctx context.Context, req SetupRequest) (*Admin, error) {
	if s.setupKey == "" ||
		subtle.ConstantTimeCompare([]byte(req.SetupKey), []byte(s.setupKey)) != 1 {
		return nil, ErrInvalidSetupKey
	}

	a, err := NewAdmin(req.Email, req.Password, req.Name)
	if err != nil {
		return nil, err
	}

	switch _, err := s.admins.FindByEmail(ctx, a.Email); {
	case err == nil:
		return nil, ErrAdminExists
	case !errors.Is(err, ErrAdminNotFound):
		return nil, errors.Wrap(err, "find admin")
	}

	if err := s.admins.Create(ctx, a); err != nil {
		if errors.Is(err, ErrAdminExists) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create admin")
	}

	zctx.From(ctx).Info("Admin created", zap.Int64("admin_id", a.ID))
	return a, nil
}
