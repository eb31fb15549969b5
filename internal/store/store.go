package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/orgregistry/orgdir/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrQuotaExhausted is returned by ConsumeTokenUnit when the token exists but
// its request budget for the current window is spent.
var ErrQuotaExhausted = errors.New("token quota exhausted")

// DirectoryStore is the read side over organizations, buildings, phones and
// the activity taxonomy. Reference data is pre-seeded; there is no write path.
type DirectoryStore interface {
	// ActivityExists reports whether an activity row with the given name exists.
	ActivityExists(ctx context.Context, name string) (bool, error)

	// GetDescendantActivities returns the distinct names of the activity
	// itself plus every transitive descendant recorded in the closure table.
	// An unknown ancestor yields an empty slice, not an error.
	GetDescendantActivities(ctx context.Context, ancestorName string) ([]string, error)

	GetOrganizationNamesByActivity(ctx context.Context, activityName string) ([]string, error)
	GetOrganizationNamesByActivityClosure(ctx context.Context, ancestorName string) ([]string, error)
	GetOrganizationNamesByAddressParts(ctx context.Context, city, street, house string) ([]string, error)
	GetOrganizationNamesWithinRadius(ctx context.Context, lat, lon, radiusMeters float64) ([]string, error)

	GetOrganizationCardByName(ctx context.Context, name string) (*models.Organization, error)
	GetOrganizationCardByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetOrganizationCardsByNames(ctx context.Context, names []string) ([]*models.Organization, error)
}

// TokenStore is CRUD over users and their API tokens, plus the atomic
// consume operation the rate-limit gate is built on.
type TokenStore interface {
	UpsertUser(ctx context.Context, login string) (uuid.UUID, error)
	CountUserTokens(ctx context.Context, userID uuid.UUID) (int, error)
	InsertToken(ctx context.Context, userID uuid.UUID, token string, limit int) error
	ListTokensByLogin(ctx context.Context, login string) ([]*models.APIToken, error)

	// ConsumeTokenUnit spends one request unit in a single conditional update:
	// if more than window has elapsed since last_update the budget is reset to
	// defaultLimit-1 and the window restarted, otherwise the remaining budget
	// is decremented. Returns the remaining budget, ErrNotFound for an unknown
	// token, or ErrQuotaExhausted when the window is active and the budget is
	// already zero (no row is mutated in either failure case).
	ConsumeTokenUnit(ctx context.Context, token string, defaultLimit int, window time.Duration) (int, error)
}

// Store is the full data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	DirectoryStore
	TokenStore
}
