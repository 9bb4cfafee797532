package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jobboard/backend/internal/apperr"
	"github.com/jobboard/backend/internal/db"
	"github.com/jobboard/backend/internal/lib/sl"
	"github.com/jobboard/backend/internal/model"
)

const (
	DefaultLoginHistoryLimit = 20
	MaxLoginHistoryLimit     = 100
)

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Role      string
	CompanyID string
	Profile   model.Profile
}

// PasswordChange is applied only when both fields are set.
type PasswordChange struct {
	Old string
	New string
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	const op = "service.AuthService.Register"

	role := in.Role
	if role == "" {
		role = model.RoleJobseeker
	}

	companyID := ""
	if role == model.RoleAdmin {
		if in.CompanyID == "" {
			return nil, apperr.ErrValidation.WithMessage("companyId is required for admin accounts.")
		}

		cctx, cancel := s.bounded(ctx)
		exists, err := s.store.CompanyExists(cctx, in.CompanyID)
		cancel()
		if err != nil {
			return nil, unavailable(op, err)
		}
		if !exists {
			return nil, apperr.ErrCompanyNotFound
		}
		companyID = in.CompanyID
	}

	hash, err := s.credentials.Hash(in.Password)
	if err != nil {
		return nil, apperr.ErrServerError.Wrap(fmt.Errorf("%s: %w", op, err))
	}

	cctx, cancel := s.bounded(ctx)
	defer cancel()

	user, err := s.store.CreateUser(cctx, model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		CompanyID:    companyID,
		Profile:      in.Profile,
	})
	if err != nil {
		if errors.Is(err, db.ErrUserExists) {
			return nil, apperr.ErrAlreadyRegistered
		}
		if errors.Is(err, db.ErrCompanyNotFound) {
			return nil, apperr.ErrCompanyNotFound
		}
		return nil, unavailable(op, err)
	}

	s.log.Info("user registered",
		slog.String("op", op),
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return user, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	const op = "service.AuthService.Profile"

	cctx, cancel := s.bounded(ctx)
	defer cancel()

	user, err := s.store.UserByID(cctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, unavailable(op, err)
	}
	return user, nil
}

// UpdateProfile applies update and, when requested, a password change.
// Changing the password leaves existing tokens valid.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate, pw PasswordChange) (*model.User, error) {
	const op = "service.AuthService.UpdateProfile"

	if (pw.Old == "") != (pw.New == "") {
		return nil, apperr.ErrValidation.WithMessage("oldPassword and newPassword must be provided together.")
	}
	changePassword := pw.Old != ""
	if update.Empty() && !changePassword {
		return nil, apperr.ErrValidation.WithMessage("No fields to update.")
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if changePassword {
		if !s.credentials.Matches(user.PasswordHash, pw.Old) {
			return nil, apperr.ErrIncorrectOldPassword
		}

		hash, err := s.credentials.Hash(pw.New)
		if err != nil {
			return nil, apperr.ErrServerError.Wrap(fmt.Errorf("%s: %w", op, err))
		}

		cctx, cancel := s.bounded(ctx)
		err = s.store.UpdatePasswordHash(cctx, userID, hash)
		cancel()
		if err != nil {
			if errors.Is(err, db.ErrUserNotFound) {
				return nil, apperr.ErrUserNotFound
			}
			return nil, unavailable(op, err)
		}

		s.log.Info("password changed", slog.String("op", op), slog.String("user_id", userID))
	}

	if update.Empty() {
		return s.Profile(ctx, userID)
	}

	cctx, cancel := s.bounded(ctx)
	defer cancel()

	updated, err := s.store.UpdateProfile(cctx, userID, update)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, unavailable(op, err)
	}
	return updated, nil
}

// DeleteAccount removes the user after re-checking the password. The live
// session is ended and its access token revoked best-effort.
func (s *AuthService) DeleteAccount(ctx context.Context, userID, password string) error {
	const op = "service.AuthService.DeleteAccount"

	log := s.log.With(slog.String("op", op))

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !s.credentials.Matches(user.PasswordHash, password) {
		return apperr.ErrIncorrectPassword
	}

	cctx, cancel := s.bounded(ctx)
	record, err := s.store.TokenByUserID(cctx, userID)
	cancel()
	switch {
	case err == nil:
		s.revokeAccess(ctx, log, userID, record.AccessToken)
	case !errors.Is(err, db.ErrTokenNotFound):
		log.Warn("failed to read session before delete", slog.String("user_id", userID), sl.Err(err))
	}

	cctx, cancel = s.bounded(ctx)
	err = s.store.DeleteTokenByUserID(cctx, userID)
	cancel()
	if err != nil {
		return unavailable(op, err)
	}

	cctx, cancel = s.bounded(ctx)
	err = s.store.DeleteUser(cctx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return apperr.ErrUserNotFound
		}
		return unavailable(op, err)
	}

	log.Info("account deleted", slog.String("user_id", userID))
	return nil
}

// LoginHistory lists the user's logins, newest first. limit is clamped to
// [1, MaxLoginHistoryLimit]; zero selects DefaultLoginHistoryLimit.
func (s *AuthService) LoginHistory(ctx context.Context, userID string, limit int) ([]model.LoginEvent, error) {
	const op = "service.AuthService.LoginHistory"

	switch {
	case limit <= 0:
		limit = DefaultLoginHistoryLimit
	case limit > MaxLoginHistoryLimit:
		limit = MaxLoginHistoryLimit
	}

	if _, err := s.Profile(ctx, userID); err != nil {
		return nil, err
	}

	cctx, cancel := s.bounded(ctx)
	defer cancel()

	events, err := s.store.ListLogins(cctx, userID, limit)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return events, nil
}
