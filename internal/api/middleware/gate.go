package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/orgregistry/orgdir/internal/api/response"
	"github.com/orgregistry/orgdir/internal/token"
)

// Consumer is the slice of the token service the gate depends on.
type Consumer interface {
	AuthorizeAndConsume(ctx context.Context, tok string) (int, error)
	DefaultLimit() int
}

// Gate authenticates the Bearer token and spends one request unit from its
// budget before any business logic runs. One gate pass per inbound request.
type Gate struct {
	tokens Consumer
}

// NewGate creates a Gate over the token service.
func NewGate(tokens Consumer) *Gate {
	return &Gate{tokens: tokens}
}

// Authorize validates the Bearer token, consumes one unit, sets rate-limit
// headers, and stores the token in the request context.
func (g *Gate) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken := extractBearerToken(r)
		if rawToken == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		remaining, err := g.tokens.AuthorizeAndConsume(r.Context(), rawToken)
		switch {
		case errors.Is(err, token.ErrBadToken):
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "The token is missing or bad", nil)
			return
		case errors.Is(err, token.ErrLimitExceeded):
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(g.tokens.DefaultLimit()))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "3600")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "The limit of requests exceeded", nil)
			return
		case err != nil:
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate token", nil)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(g.tokens.DefaultLimit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		next.ServeHTTP(w, r.WithContext(setBearerToken(r.Context(), rawToken)))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
