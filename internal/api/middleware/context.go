package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const bearerTokenKey contextKey = "bearer_token"

func setBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, token)
}

// GetBearerToken returns the validated token the gate stored on the request.
func GetBearerToken(r *http.Request) (string, bool) {
	tok, ok := r.Context().Value(bearerTokenKey).(string)
	return tok, ok
}
