// Package token issues per-user API tokens and enforces their hourly
// request budget.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/orgregistry/orgdir/internal/config"
	"github.com/orgregistry/orgdir/internal/store"
	"github.com/orgregistry/orgdir/pkg/models"
)

var ErrBadToken = errors.New("missing or bad token")
var ErrLimitExceeded = errors.New("request limit exceeded")
var ErrTooManyTokens = errors.New("user already holds the maximum number of tokens")
var ErrNoTokens = errors.New("user has no tokens")

const tokenEntropyBytes = 32

// Service implements token issuance, listing, and the per-request gate.
type Service struct {
	store store.TokenStore
	cfg   config.TokenConfig
}

// NewService creates a token Service.
func NewService(s store.TokenStore, cfg config.TokenConfig) *Service {
	return &Service{store: s, cfg: cfg}
}

// DefaultLimit is the per-window request budget a fresh token starts with.
func (s *Service) DefaultLimit() int {
	return s.cfg.DefaultLimit
}

// Issue creates a token for the login, creating the user on first use.
// A user may hold at most cfg.MaxPerUser tokens; at the cap no token is
// created and ErrTooManyTokens is returned.
func (s *Service) Issue(ctx context.Context, login string) (string, error) {
	userID, err := s.store.UpsertUser(ctx, login)
	if err != nil {
		return "", err
	}

	count, err := s.store.CountUserTokens(ctx, userID)
	if err != nil {
		return "", err
	}
	if count >= s.cfg.MaxPerUser {
		return "", ErrTooManyTokens
	}

	tok, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := s.store.InsertToken(ctx, userID, tok, s.cfg.DefaultLimit); err != nil {
		return "", err
	}
	return tok, nil
}

// List returns every token the login holds. An unknown login and a login
// with zero tokens both surface ErrNoTokens.
func (s *Service) List(ctx context.Context, login string) ([]*models.APIToken, error) {
	tokens, err := s.store.ListTokensByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	return tokens, nil
}

// AuthorizeAndConsume spends one request unit on the token and returns the
// remaining budget. The check-and-decrement (and the lazy window reset) is
// a single atomic update in the store, so concurrent requests cannot spend
// the same unit twice.
func (s *Service) AuthorizeAndConsume(ctx context.Context, tok string) (int, error) {
	remaining, err := s.store.ConsumeTokenUnit(ctx, tok, s.cfg.DefaultLimit, s.cfg.Window)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrBadToken
	}
	if errors.Is(err, store.ErrQuotaExhausted) {
		return 0, ErrLimitExceeded
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// generateToken returns a URL-safe token string derived from 32 bytes of
// cryptographic randomness.
func generateToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
