package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orgregistry/orgdir/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Activity taxonomy ---

func (s *PostgresStore) ActivityExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM activities WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check activity exists: %w", err)
	}
	return exists, nil
}

// GetDescendantActivities resolves the descendant set in one round trip: the
// ancestor row itself unioned with every closure-table descendant. The
// closure table holds proper pairs only, so the first branch supplies the
// self-membership.
func (s *PostgresStore) GetDescendantActivities(ctx context.Context, ancestorName string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM activities WHERE name = $1
		 UNION
		 SELECT d.name
		 FROM activities anc
		 JOIN activity_closure c ON c.ancestor_id = anc.id
		 JOIN activities d ON d.id = c.descendant_id
		 WHERE anc.name = $1`, ancestorName)
	if err != nil {
		return nil, fmt.Errorf("get descendant activities: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows, "descendant activity")
}

func (s *PostgresStore) GetOrganizationNamesByActivity(ctx context.Context, activityName string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT o.name
		 FROM organizations o
		 JOIN organization_activities oa ON oa.organization_id = o.id
		 JOIN activities a ON a.id = oa.activity_id
		 WHERE a.name = $1`, activityName)
	if err != nil {
		return nil, fmt.Errorf("get organizations by activity: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows, "organization name")
}

func (s *PostgresStore) GetOrganizationNamesByActivityClosure(ctx context.Context, ancestorName string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT o.name
		 FROM organizations o
		 JOIN organization_activities oa ON oa.organization_id = o.id
		 WHERE oa.activity_id IN (
		     SELECT id FROM activities WHERE name = $1
		     UNION
		     SELECT c.descendant_id
		     FROM activity_closure c
		     JOIN activities anc ON anc.id = c.ancestor_id
		     WHERE anc.name = $1
		 )`, ancestorName)
	if err != nil {
		return nil, fmt.Errorf("get organizations by activity closure: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows, "organization name")
}

// --- Organizations ---

func (s *PostgresStore) GetOrganizationNamesByAddressParts(ctx context.Context, city, street, house string) ([]string, error) {
	pattern := fmt.Sprintf("%%%s%%%s%%%s%%", city, street, house)
	rows, err := s.pool.Query(ctx,
		`SELECT o.name
		 FROM organizations o
		 JOIN buildings b ON b.id = o.building_id
		 WHERE b.address ILIKE $1`, pattern)
	if err != nil {
		return nil, fmt.Errorf("get organizations by address: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows, "organization name")
}

func (s *PostgresStore) GetOrganizationNamesWithinRadius(ctx context.Context, lat, lon, radiusMeters float64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT o.name
		 FROM organizations o
		 JOIN buildings b ON b.id = o.building_id
		 WHERE ST_DWithin(b.location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)`,
		lon, lat, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("get organizations within radius: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows, "organization name")
}

const organizationCardSelect = `
	SELECT o.name,
	       COALESCE(b.address, ''),
	       COALESCE(b.office, 0),
	       COALESCE(array_agg(DISTINCT p.phone_number) FILTER (WHERE p.phone_number IS NOT NULL), '{}'),
	       COALESCE(array_agg(DISTINCT a.name) FILTER (WHERE a.name IS NOT NULL), '{}')
	FROM organizations o
	LEFT JOIN buildings b ON b.id = o.building_id
	LEFT JOIN organization_phones op ON op.organization_id = o.id
	LEFT JOIN phones p ON p.id = op.phone_id
	LEFT JOIN organization_activities oa ON oa.organization_id = o.id
	LEFT JOIN activities a ON a.id = oa.activity_id`

const organizationCardGroup = ` GROUP BY o.id, o.name, b.address, b.office`

func (s *PostgresStore) GetOrganizationCardByName(ctx context.Context, name string) (*models.Organization, error) {
	row := s.pool.QueryRow(ctx,
		organizationCardSelect+` WHERE o.name = $1`+organizationCardGroup, name)
	return scanOrganizationCard(row)
}

func (s *PostgresStore) GetOrganizationCardByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	row := s.pool.QueryRow(ctx,
		organizationCardSelect+` WHERE o.id = $1`+organizationCardGroup, id)
	return scanOrganizationCard(row)
}

func (s *PostgresStore) GetOrganizationCardsByNames(ctx context.Context, names []string) ([]*models.Organization, error) {
	if len(names) == 0 {
		return []*models.Organization{}, nil
	}

	rows, err := s.pool.Query(ctx,
		organizationCardSelect+` WHERE o.name = ANY($1)`+organizationCardGroup+` ORDER BY o.name`, names)
	if err != nil {
		return nil, fmt.Errorf("get organization cards: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrganizationCard(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func scanOrganizationCard(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	err := row.Scan(&org.Name, &org.Address.Address, &org.Address.Office, &org.Phones, &org.Activities)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan organization card: %w", err)
	}
	return &org, nil
}

// --- Users and API tokens ---

func (s *PostgresStore) UpsertUser(ctx context.Context, login string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (login) VALUES ($1)
		 ON CONFLICT (login) DO UPDATE SET login = EXCLUDED.login
		 RETURNING id`, login).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert user: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) CountUserTokens(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_tokens WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count user tokens: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertToken(ctx context.Context, userID uuid.UUID, token string, limit int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_tokens (user_id, token, request_limit, last_update)
		 VALUES ($1, $2, $3, NOW())`, userID, token, limit)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTokensByLogin(ctx context.Context, login string) ([]*models.APIToken, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.user_id, t.token, t.request_limit, t.last_update
		 FROM api_tokens t
		 JOIN users u ON u.id = t.user_id
		 WHERE u.login = $1
		 ORDER BY t.last_update DESC`, login)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.APIToken
	for rows.Next() {
		var t models.APIToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Limit, &t.LastUpdate); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

// ConsumeTokenUnit performs the check-and-decrement as one conditional update
// so that concurrent requests on the same token cannot both spend the last
// unit. The window reset is computed lazily inside the same statement.
func (s *PostgresStore) ConsumeTokenUnit(ctx context.Context, token string, defaultLimit int, window time.Duration) (int, error) {
	var remaining int
	err := s.pool.QueryRow(ctx,
		`UPDATE api_tokens SET
		     request_limit = CASE WHEN NOW() - last_update > make_interval(secs => $3)
		                          THEN $2 - 1
		                          ELSE request_limit - 1 END,
		     last_update   = CASE WHEN NOW() - last_update > make_interval(secs => $3)
		                          THEN NOW()
		                          ELSE last_update END
		 WHERE token = $1
		   AND (request_limit > 0 OR NOW() - last_update > make_interval(secs => $3))
		 RETURNING request_limit`,
		token, defaultLimit, window.Seconds()).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row matched: either the token is unknown or its budget is spent
		// within an active window.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM api_tokens WHERE token = $1)`, token).Scan(&exists); err != nil {
			return 0, fmt.Errorf("check token exists: %w", err)
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrQuotaExhausted
	}
	if err != nil {
		return 0, fmt.Errorf("consume token unit: %w", err)
	}
	return remaining, nil
}

func scanStrings(rows pgx.Rows, what string) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
