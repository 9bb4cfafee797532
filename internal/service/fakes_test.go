package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jobboard/backend/internal/cache"
	"github.com/jobboard/backend/internal/config"
	"github.com/jobboard/backend/internal/db"
	"github.com/jobboard/backend/internal/lib/logger"
	"github.com/jobboard/backend/internal/model"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var errBackendDown = errors.New("connection refused")

type fakeBlacklist struct {
	mu        sync.Mutex
	entries   map[string]time.Duration
	revokeErr error
	checkErr  error
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{entries: make(map[string]time.Duration)}
}

func (b *fakeBlacklist) Revoke(_ context.Context, token string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.revokeErr != nil {
		return b.revokeErr
	}
	if ttl <= 0 {
		return nil
	}
	b.entries[token] = ttl
	return nil
}

func (b *fakeBlacklist) IsRevoked(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.checkErr != nil {
		return false, b.checkErr
	}
	_, ok := b.entries[token]
	return ok, nil
}

func (b *fakeBlacklist) ttl(token string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ttl, ok := b.entries[token]
	return ttl, ok
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}
	if l.held[key] {
		return nil, cache.ErrLockHeld
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released++
		return nil
	}, nil
}

// blockingStore stalls the selected calls until the caller's deadline.
type blockingStore struct {
	*db.Memory
	blockEmail   bool
	blockRefresh bool
}

func (s *blockingStore) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	if s.blockEmail {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Memory.UserByEmail(ctx, email)
}

func (s *blockingStore) TokenByRefresh(ctx context.Context, refreshToken string) (*model.TokenRecord, error) {
	if s.blockRefresh {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Memory.TokenByRefresh(ctx, refreshToken)
}

type failingStore struct {
	*db.Memory
	upsertErr error
	loginErr  error
}

func (s *failingStore) UpsertToken(ctx context.Context, record model.TokenRecord) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.Memory.UpsertToken(ctx, record)
}

func (s *failingStore) AppendLogin(ctx context.Context, event model.LoginEvent) error {
	if s.loginErr != nil {
		return s.loginErr
	}
	return s.Memory.AppendLogin(ctx, event)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:   "access-secret-for-tests",
		RefreshSecret:  "refresh-secret-for-tests",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		BcryptCost:     bcrypt.MinCost,
		CallTimeout:    time.Second,
		RefreshLockTTL: 5 * time.Second,
		CookieName:     "refreshToken",
		CookiePath:     "/auth",
		CookieSecure:   true,
		CookieSameSite: "strict",
	}
}

type harness struct {
	svc       *AuthService
	store     *db.Memory
	blacklist *fakeBlacklist
	clock     *testClock
}

func newHarness(t *testing.T, mutate ...func(*config.AuthConfig)) *harness {
	t.Helper()

	cfg := testAuthConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	store := db.NewMemory()
	bl := newFakeBlacklist()
	clock := newTestClock()

	svc, err := NewAuthService(logger.Discard(), store, bl, nil, cfg, WithClock(clock.Now))
	require.NoError(t, err)

	return &harness{svc: svc, store: store, blacklist: bl, clock: clock}
}

type account struct {
	user     *model.User
	email    string
	password string
}

func (h *harness) register(t *testing.T) account {
	t.Helper()

	email := gofakeit.Email()
	password := gofakeit.Password(true, true, true, false, false, 12)

	user, err := h.svc.Register(context.Background(), RegisterInput{
		Username: gofakeit.Username(),
		Email:    email,
		Password: password,
		Profile:  model.Profile{FullName: gofakeit.Name()},
	})
	require.NoError(t, err)

	return account{user: user, email: email, password: password}
}

func (h *harness) login(t *testing.T, a account) *LoginResult {
	t.Helper()

	res, err := h.svc.Login(context.Background(), a.email, a.password, "203.0.113.7")
	require.NoError(t, err)
	return res
}
