package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/orgregistry/orgdir/internal/api/response"
	"github.com/orgregistry/orgdir/internal/directory"
	"github.com/orgregistry/orgdir/pkg/models"
)

// DirectoryService defines the directory queries the handlers depend on.
type DirectoryService interface {
	ResolveDescendants(ctx context.Context, name string) ([]string, error)
	OrganizationsByActivityClosure(ctx context.Context, name string) ([]*models.Organization, error)
	OrganizationsByActivity(ctx context.Context, name string) ([]*models.Organization, error)
	OrganizationByName(ctx context.Context, name string) (*models.Organization, error)
	OrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	OrganizationsByAddress(ctx context.Context, city, street, house string) ([]*models.Organization, error)
	OrganizationsWithinRadius(ctx context.Context, lat, lon, radiusMeters float64) ([]*models.Organization, error)
}

// NewGetOrganizationByNameHandler handles GET /api/v1/organizations?name=.
func NewGetOrganizationByNameHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}

		org, err := svc.OrganizationByName(r.Context(), name)
		if err != nil {
			directoryError(w, err)
			return
		}
		response.JSON(w, org)
	}
}

// NewGetOrganizationByIDHandler handles GET /api/v1/organizations/{orgID}.
func NewGetOrganizationByIDHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "orgID must be a valid UUID", nil)
			return
		}

		org, err := svc.OrganizationByID(r.Context(), id)
		if err != nil {
			directoryError(w, err)
			return
		}
		response.JSON(w, org)
	}
}

// NewGetOrganizationsByAddressHandler handles
// GET /api/v1/organizations/by-address?city=&street=&house=.
func NewGetOrganizationsByAddressHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		city, street, house := q.Get("city"), q.Get("street"), q.Get("house")
		if city == "" || street == "" || house == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"city, street and house are required", nil)
			return
		}

		orgs, err := svc.OrganizationsByAddress(r.Context(), city, street, house)
		if err != nil {
			directoryError(w, err)
			return
		}
		response.JSON(w, orgs)
	}
}

// NewGetOrganizationsByActivityHandler handles
// GET /api/v1/organizations/by-activity?activity=.
func NewGetOrganizationsByActivityHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activity := r.URL.Query().Get("activity")
		if activity == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "activity is required", nil)
			return
		}

		orgs, err := svc.OrganizationsByActivity(r.Context(), activity)
		if err != nil {
			directoryError(w, err)
			return
		}
		response.JSON(w, orgs)
	}
}

// NewGetOrganizationsByActivityTreeHandler handles
// GET /api/v1/organizations/by-activity-tree?activity=. It aggregates over
// the activity and all its descendants.
func NewGetOrganizationsByActivityTreeHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activity := r.URL.Query().Get("activity")
		if activity == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "activity is required", nil)
			return
		}

		orgs, err := svc.OrganizationsByActivityClosure(r.Context(), activity)
		if err != nil {
			directoryError(w, err)
			return
		}
		response.JSON(w, orgs)
	}
}

// NewGetOrganizationsNearbyHandler handles
// GET /api/v1/organizations/nearby?lat=&lon=&radius=.
func NewGetOrganizationsNearbyHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lat, err := parseFloat(r, "lat")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "lat must be a number", nil)
			return
		}
		lon, err := parseFloat(r, "lon")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "lon must be a number", nil)
			return
		}
		radius, err := parseFloat(r, "radius")
		if err != nil || radius <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "radius must be a positive number", nil)
			return
		}

		orgs, err := svc.OrganizationsWithinRadius(r.Context(), lat, lon, radius)
		if err != nil {
			directoryError(w, err)
			return
		}
		response.JSON(w, orgs)
	}
}

// NewGetActivityDescendantsHandler handles
// GET /api/v1/activities/{name}/descendants.
func NewGetActivityDescendantsHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "activity name is required", nil)
			return
		}

		names, err := svc.ResolveDescendants(r.Context(), name)
		if err != nil {
			directoryError(w, err)
			return
		}
		response.JSON(w, names)
	}
}

func directoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrActivityNotFound):
		response.Error(w, http.StatusNotFound, "ACTIVITY_NOT_FOUND", "This activity does not exist", nil)
	case errors.Is(err, directory.ErrOrganizationNotFound):
		response.Error(w, http.StatusNotFound, "ORGANIZATION_NOT_FOUND", "This organization does not exist", nil)
	case errors.Is(err, directory.ErrAddressNotFound):
		response.Error(w, http.StatusNotFound, "ADDRESS_NOT_FOUND", "This address does not exist", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed", nil)
	}
}

func parseFloat(r *http.Request, key string) (float64, error) {
	return strconv.ParseFloat(r.URL.Query().Get(key), 64)
}
