package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/orgregistry/orgdir/internal/api/response"
	"github.com/orgregistry/orgdir/internal/token"
	"github.com/orgregistry/orgdir/pkg/models"
)

// TokenService defines the token operations the handlers depend on.
type TokenService interface {
	Issue(ctx context.Context, login string) (string, error)
	List(ctx context.Context, login string) ([]*models.APIToken, error)
}

// NewIssueTokenHandler handles POST /api/v1/tokens?login=.
func NewIssueTokenHandler(svc TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login := r.URL.Query().Get("login")
		if login == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "login is required", nil)
			return
		}

		tok, err := svc.Issue(r.Context(), login)
		if errors.Is(err, token.ErrTooManyTokens) {
			response.Error(w, http.StatusConflict, "TOO_MANY_TOKENS",
				"This user already holds the maximum number of tokens; list the existing ones instead", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", nil)
			return
		}

		response.Created(w, map[string]string{"token": tok})
	}
}

// NewListTokensHandler handles GET /api/v1/tokens?login=.
func NewListTokensHandler(svc TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login := r.URL.Query().Get("login")
		if login == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "login is required", nil)
			return
		}

		tokens, err := svc.List(r.Context(), login)
		if errors.Is(err, token.ErrNoTokens) {
			response.Error(w, http.StatusNotFound, "NO_TOKENS",
				"User has no tokens; issue one first", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list tokens", nil)
			return
		}

		response.JSON(w, tokens)
	}
}
