package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jobboard/backend/internal/model"
)

// Memory keeps every collection in process. It backs local runs and tests.
type Memory struct {
	mu        sync.RWMutex
	users     map[string]model.User
	emails    map[string]string
	companies map[string]string
	tokens    map[string]model.TokenRecord
	logins    []model.LoginEvent
}

func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]model.User),
		emails:    make(map[string]string),
		companies: make(map[string]string),
		tokens:    make(map[string]model.TokenRecord),
	}
}

func (m *Memory) Close(context.Context) error {
	return nil
}

func (m *Memory) CreateCompany(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.companies[id] = name
	return id, nil
}

func (m *Memory) CompanyExists(_ context.Context, companyID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.companies[companyID]
	return ok, nil
}

func (m *Memory) CreateUser(_ context.Context, user model.User) (*model.User, error) {
	const op = "storage.memory.CreateUser"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.emails[user.Email]; ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
	}

	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Profile.Skills = cloneStrings(user.Profile.Skills)

	m.users[user.ID] = user
	m.emails[user.Email] = user.ID

	out := user
	return &out, nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*model.User, error) {
	const op = "storage.memory.UserByEmail"

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return m.userCopy(id), nil
}

func (m *Memory) UserByID(_ context.Context, userID string) (*model.User, error) {
	const op = "storage.memory.UserByID"

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.users[userID]; !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return m.userCopy(userID), nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	const op = "storage.memory.UpdatePasswordHash"

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()
	m.users[userID] = user
	return nil
}

func (m *Memory) UpdateProfile(_ context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	const op = "storage.memory.UpdateProfile"

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	user.Profile = update.Apply(user.Profile)
	user.UpdatedAt = time.Now().UTC()
	m.users[userID] = user
	return m.userCopy(userID), nil
}

func (m *Memory) DeleteUser(_ context.Context, userID string) error {
	const op = "storage.memory.DeleteUser"

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	delete(m.users, userID)
	delete(m.emails, user.Email)
	return nil
}

func (m *Memory) UpsertToken(_ context.Context, record model.TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[record.UserID] = record
	return nil
}

func (m *Memory) TokenByRefresh(_ context.Context, refreshToken string) (*model.TokenRecord, error) {
	const op = "storage.memory.TokenByRefresh"

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.tokens {
		if rec.RefreshToken == refreshToken {
			out := rec
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
}

func (m *Memory) TokenByUserID(_ context.Context, userID string) (*model.TokenRecord, error) {
	const op = "storage.memory.TokenByUserID"

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tokens[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	return &rec, nil
}

func (m *Memory) UpdateAccessToken(_ context.Context, record model.TokenRecord, accessToken string) error {
	const op = "storage.memory.UpdateAccessToken"

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tokens[record.UserID]
	if !ok || rec.RefreshToken != record.RefreshToken {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	rec.AccessToken = accessToken
	m.tokens[record.UserID] = rec
	return nil
}

func (m *Memory) DeleteTokenByRefresh(_ context.Context, refreshToken string) error {
	const op = "storage.memory.DeleteTokenByRefresh"

	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, rec := range m.tokens {
		if rec.RefreshToken == refreshToken {
			delete(m.tokens, userID)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
}

func (m *Memory) DeleteTokenByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, userID)
	return nil
}

func (m *Memory) AppendLogin(_ context.Context, event model.LoginEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	m.logins = append(m.logins, event)
	return nil
}

func (m *Memory) ListLogins(_ context.Context, userID string, limit int) ([]model.LoginEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.LoginEvent, 0)
	for _, e := range m.logins {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LoginAt.After(out[j].LoginAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) userCopy(id string) *model.User {
	u := m.users[id]
	u.Profile.Skills = cloneStrings(u.Profile.Skills)
	return &u
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
