package customer

import (
	"context"
	"strings"
)

const historyLimit = 20

// Service exposes the admin and checkout read paths over customers.
type Service struct {
	repo         Repository
	defaultLimit int
	maxLimit     int
}

// NewService creates a customer Service. Non-positive limits fall back to 50.
func NewService(repo Repository, defaultLimit, maxLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &Service{repo: repo, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// List returns customers matching the search term, most recent buyers first.
func (s *Service) List(ctx context.Context, search string, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	return s.repo.List(ctx, ListFilter{
		Search: strings.TrimSpace(search),
		Limit:  min(limit, s.maxLimit),
	})
}

// Get returns a customer with their latest orders.
func (s *Service) Get(ctx context.Context, id int64) (*Details, error) {
	return s.repo.Get(ctx, id, historyLimit)
}

// LookupPhone finds a returning customer for checkout autofill. It returns
// ErrNotFound when the phone is unknown.
func (s *Service) LookupPhone(ctx context.Context, raw string) (*Contact, error) {
	phone := NormalizePhone(raw)
	if phone == "" {
		return nil, ErrInvalidPhone
	}
	return s.repo.FindByPhone(ctx, phone)
}
