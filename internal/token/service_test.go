package token_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/orgregistry/orgdir/internal/config"
	"github.com/orgregistry/orgdir/internal/store"
	"github.com/orgregistry/orgdir/internal/token"
	"github.com/orgregistry/orgdir/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock token store ---

// mockTokenStore keeps tokens in memory. ConsumeTokenUnit is guarded by a
// mutex, mirroring the single-statement atomicity of the Postgres store.
type mockTokenStore struct {
	mu      sync.Mutex
	users   map[string]uuid.UUID
	tokens  map[string]*models.APIToken
	inserts int
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{
		users:  make(map[string]uuid.UUID),
		tokens: make(map[string]*models.APIToken),
	}
}

func (m *mockTokenStore) UpsertUser(_ context.Context, login string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.users[login]; ok {
		return id, nil
	}
	id := uuid.New()
	m.users[login] = id
	return id, nil
}

func (m *mockTokenStore) CountUserTokens(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.tokens {
		if t.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *mockTokenStore) InsertToken(_ context.Context, userID uuid.UUID, tok string, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	m.tokens[tok] = &models.APIToken{
		ID:         uuid.New(),
		UserID:     userID,
		Token:      tok,
		Limit:      limit,
		LastUpdate: time.Now().UTC(),
	}
	return nil
}

func (m *mockTokenStore) ListTokensByLogin(_ context.Context, login string) ([]*models.APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.users[login]
	if !ok {
		return nil, nil
	}
	var out []*models.APIToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTokenStore) ConsumeTokenUnit(_ context.Context, tok string, defaultLimit int, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tok]
	if !ok {
		return 0, store.ErrNotFound
	}
	if time.Since(t.LastUpdate) > window {
		t.Limit = defaultLimit - 1
		t.LastUpdate = time.Now().UTC()
		return t.Limit, nil
	}
	if t.Limit <= 0 {
		return 0, store.ErrQuotaExhausted
	}
	t.Limit--
	return t.Limit, nil
}

func testConfig() config.TokenConfig {
	return config.TokenConfig{DefaultLimit: 100, Window: time.Hour, MaxPerUser: 5}
}

// --- Issue ---

func TestIssue_ReturnsURLSafeToken(t *testing.T) {
	svc := token.NewService(newMockTokenStore(), testConfig())

	tok, err := svc.Issue(context.Background(), "alice")
	require.NoError(t, err)

	// 32 random bytes, unpadded URL-safe base64.
	assert.Len(t, tok, 43)
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
	assert.NotContains(t, tok, "=")
}

func TestIssue_TokensAreUnique(t *testing.T) {
	svc := token.NewService(newMockTokenStore(), testConfig())
	ctx := context.Background()

	first, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestIssue_CapAtFiveTokens(t *testing.T) {
	ms := newMockTokenStore()
	svc := token.NewService(ms, testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Issue(ctx, "alice")
		require.NoError(t, err)
	}

	_, err := svc.Issue(ctx, "alice")
	assert.ErrorIs(t, err, token.ErrTooManyTokens)
	assert.Equal(t, 5, ms.inserts, "no sixth row may be created")
}

func TestIssue_CapIsPerUser(t *testing.T) {
	svc := token.NewService(newMockTokenStore(), testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Issue(ctx, "alice")
		require.NoError(t, err)
	}

	_, err := svc.Issue(ctx, "bob")
	assert.NoError(t, err)
}

// --- List ---

func TestList_ReturnsIssuedTokens(t *testing.T) {
	svc := token.NewService(newMockTokenStore(), testConfig())
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)

	tokens, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, issued, tokens[0].Token)
	assert.Equal(t, 100, tokens[0].Limit)
}

func TestList_UnknownLogin(t *testing.T) {
	svc := token.NewService(newMockTokenStore(), testConfig())

	_, err := svc.List(context.Background(), "nobody")
	assert.ErrorIs(t, err, token.ErrNoTokens)
}

// --- AuthorizeAndConsume ---

func TestAuthorizeAndConsume_UnknownToken(t *testing.T) {
	svc := token.NewService(newMockTokenStore(), testConfig())

	_, err := svc.AuthorizeAndConsume(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, token.ErrBadToken)
}

func TestAuthorizeAndConsume_MonotonicDecrement(t *testing.T) {
	svc := token.NewService(newMockTokenStore(), testConfig())
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)

	for i := 1; i <= 100; i++ {
		remaining, err := svc.AuthorizeAndConsume(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, 100-i, remaining)
	}

	_, err = svc.AuthorizeAndConsume(ctx, tok)
	assert.ErrorIs(t, err, token.ErrLimitExceeded)

	tokens, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, tokens[0].Limit, "limit stays at zero after rejection")
}

func TestAuthorizeAndConsume_ResetAfterWindow(t *testing.T) {
	ms := newMockTokenStore()
	svc := token.NewService(ms, testConfig())
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)

	// Exhaust the budget, then back-date the window start.
	for i := 0; i < 100; i++ {
		_, err := svc.AuthorizeAndConsume(ctx, tok)
		require.NoError(t, err)
	}
	ms.mu.Lock()
	ms.tokens[tok].LastUpdate = time.Now().UTC().Add(-2 * time.Hour)
	ms.mu.Unlock()

	remaining, err := svc.AuthorizeAndConsume(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, 99, remaining, "reset consumes one unit")

	ms.mu.Lock()
	lastUpdate := ms.tokens[tok].LastUpdate
	ms.mu.Unlock()
	assert.WithinDuration(t, time.Now().UTC(), lastUpdate, time.Minute)
}

func TestAuthorizeAndConsume_ConcurrentAdmitsExactlyQuota(t *testing.T) {
	ms := newMockTokenStore()
	cfg := testConfig()
	cfg.DefaultLimit = 5
	svc := token.NewService(ms, cfg)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)

	const requests = 20
	var wg sync.WaitGroup
	results := make(chan error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AuthorizeAndConsume(ctx, tok)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case assert.ErrorIs(t, err, token.ErrLimitExceeded):
			rejected++
		}
	}
	assert.Equal(t, 5, admitted)
	assert.Equal(t, 15, rejected)
}
