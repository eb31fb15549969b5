package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/orgregistry/orgdir/internal/api/middleware"
	"github.com/orgregistry/orgdir/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Gate *mw.Gate

	HealthHandler http.HandlerFunc

	IssueTokenHandler http.HandlerFunc
	ListTokensHandler http.HandlerFunc

	GetOrganizationByName          http.HandlerFunc
	GetOrganizationByID            http.HandlerFunc
	GetOrganizationsByAddress      http.HandlerFunc
	GetOrganizationsByActivity     http.HandlerFunc
	GetOrganizationsByActivityTree http.HandlerFunc
	GetOrganizationsNearby         http.HandlerFunc
	GetActivityDescendants         http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
// Token issuance and listing stay outside the gate; everything else spends
// one unit of the token's budget per request.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Post("/api/v1/tokens", orNotImplemented(deps.IssueTokenHandler))
	r.Get("/api/v1/tokens", orNotImplemented(deps.ListTokensHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.Gate.Authorize)

		r.Get("/api/v1/organizations", orNotImplemented(deps.GetOrganizationByName))
		r.Get("/api/v1/organizations/by-address", orNotImplemented(deps.GetOrganizationsByAddress))
		r.Get("/api/v1/organizations/by-activity", orNotImplemented(deps.GetOrganizationsByActivity))
		r.Get("/api/v1/organizations/by-activity-tree", orNotImplemented(deps.GetOrganizationsByActivityTree))
		r.Get("/api/v1/organizations/nearby", orNotImplemented(deps.GetOrganizationsNearby))
		r.Get("/api/v1/organizations/{orgID}", orNotImplemented(deps.GetOrganizationByID))

		r.Get("/api/v1/activities/{name}/descendants", orNotImplemented(deps.GetActivityDescendants))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
