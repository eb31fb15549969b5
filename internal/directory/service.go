// Package directory answers queries over the organization directory and its
// activity taxonomy. One method per query variant; the repository and cache
// are explicit dependencies.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/orgregistry/orgdir/internal/cache"
	"github.com/orgregistry/orgdir/internal/store"
	"github.com/orgregistry/orgdir/pkg/models"
)

var ErrActivityNotFound = errors.New("activity not found")
var ErrOrganizationNotFound = errors.New("organization not found")
var ErrAddressNotFound = errors.New("address not found")

// Service executes directory queries against the store, with a read-through
// cache over the taxonomy and organization cards. Cache failures fall back
// to the store.
type Service struct {
	store store.DirectoryStore
	cache cache.Cache
	ttl   time.Duration
}

// NewService creates a directory Service.
func NewService(s store.DirectoryStore, c cache.Cache, ttl time.Duration) *Service {
	return &Service{store: s, cache: c, ttl: ttl}
}

// ResolveDescendants returns the distinct names of the activity itself plus
// every transitive descendant. The closure table stores proper pairs only,
// and the store adds the self row, so an empty result means the activity
// does not exist.
func (s *Service) ResolveDescendants(ctx context.Context, name string) ([]string, error) {
	key := cache.DescendantsKey(name)
	if cached, ok := s.getCached(ctx, key); ok {
		var names []string
		if err := json.Unmarshal(cached, &names); err == nil {
			return names, nil
		}
	}

	names, err := s.store.GetDescendantActivities(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrActivityNotFound
	}

	s.putCached(ctx, key, names)
	return names, nil
}

// OrganizationsByActivityClosure returns the full cards of every organization
// tagged with the activity or any of its descendants, deduplicated by name.
// An activity with no tagged organizations anywhere in its subtree yields an
// empty slice, not an error.
func (s *Service) OrganizationsByActivityClosure(ctx context.Context, name string) ([]*models.Organization, error) {
	key := cache.ClosureOrgsKey(name)
	if cached, ok := s.getCached(ctx, key); ok {
		var orgs []*models.Organization
		if err := json.Unmarshal(cached, &orgs); err == nil {
			return orgs, nil
		}
	}

	exists, err := s.store.ActivityExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrActivityNotFound
	}

	orgNames, err := s.store.GetOrganizationNamesByActivityClosure(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(orgNames) == 0 {
		return []*models.Organization{}, nil
	}

	orgs, err := s.store.GetOrganizationCardsByNames(ctx, orgNames)
	if err != nil {
		return nil, err
	}

	s.putCached(ctx, key, orgs)
	return orgs, nil
}

// OrganizationsByActivity matches a direct activity tag only, without
// traversing the taxonomy.
func (s *Service) OrganizationsByActivity(ctx context.Context, name string) ([]*models.Organization, error) {
	exists, err := s.store.ActivityExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrActivityNotFound
	}

	orgNames, err := s.store.GetOrganizationNamesByActivity(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(orgNames) == 0 {
		return []*models.Organization{}, nil
	}

	return s.store.GetOrganizationCardsByNames(ctx, orgNames)
}

// OrganizationByName returns one full organization card.
func (s *Service) OrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	key := cache.OrganizationKey(name)
	if cached, ok := s.getCached(ctx, key); ok {
		var org models.Organization
		if err := json.Unmarshal(cached, &org); err == nil {
			return &org, nil
		}
	}

	org, err := s.store.GetOrganizationCardByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}

	s.putCached(ctx, key, org)
	return org, nil
}

// OrganizationByID returns one full organization card by its identifier.
func (s *Service) OrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	org, err := s.store.GetOrganizationCardByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

// OrganizationsByAddress matches buildings whose address contains the city,
// street and house number in order. No matching building at all is
// ErrAddressNotFound.
func (s *Service) OrganizationsByAddress(ctx context.Context, city, street, house string) ([]*models.Organization, error) {
	orgNames, err := s.store.GetOrganizationNamesByAddressParts(ctx, city, street, house)
	if err != nil {
		return nil, err
	}
	if len(orgNames) == 0 {
		return nil, ErrAddressNotFound
	}

	return s.store.GetOrganizationCardsByNames(ctx, orgNames)
}

// OrganizationsWithinRadius returns cards for organizations whose building
// lies within radiusMeters of the given point. An empty area is a valid
// empty result.
func (s *Service) OrganizationsWithinRadius(ctx context.Context, lat, lon, radiusMeters float64) ([]*models.Organization, error) {
	orgNames, err := s.store.GetOrganizationNamesWithinRadius(ctx, lat, lon, radiusMeters)
	if err != nil {
		return nil, err
	}
	if len(orgNames) == 0 {
		return []*models.Organization{}, nil
	}

	return s.store.GetOrganizationCardsByNames(ctx, orgNames)
}

func (s *Service) getCached(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	val, found, err := s.cache.Get(ctx, key)
	if err != nil || !found {
		return nil, false
	}
	return val, true
}

func (s *Service) putCached(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, data, s.ttl)
}
