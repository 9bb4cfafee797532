package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jobboard/backend/internal/apperr"
	"github.com/jobboard/backend/internal/db"
	"github.com/jobboard/backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

type UserLookup interface {
	UserByEmail(ctx context.Context, email string) (*model.User, error)
}

// CredentialVerifier checks an email/password pair. Unknown emails and wrong
// passwords fail the same way and take the same time.
type CredentialVerifier struct {
	users     UserLookup
	cost      int
	dummyHash []byte
}

func NewCredentialVerifier(users UserLookup, cost int) (*CredentialVerifier, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: AUTH_BCRYPT_COST must be between %d and %d", ErrMisconfigured, bcrypt.MinCost, bcrypt.MaxCost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, err
	}

	return &CredentialVerifier{
		users:     users,
		cost:      cost,
		dummyHash: dummy,
	}, nil
}

// Verify returns the user owning email when password matches its hash.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*model.User, error) {
	const op = "service.CredentialVerifier.Verify"

	user, err := v.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, apperr.ErrServiceUnavailable.Wrap(fmt.Errorf("%s: %w", op, err))
	}

	if !v.Matches(user.PasswordHash, password) {
		return nil, apperr.ErrInvalidCredentials
	}
	return user, nil
}

func (v *CredentialVerifier) Matches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (v *CredentialVerifier) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
