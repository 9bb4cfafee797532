package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jobboard/backend/internal/apperr"
	"github.com/jobboard/backend/internal/cache"
	"github.com/jobboard/backend/internal/config"
	"github.com/jobboard/backend/internal/db"
	"github.com/jobboard/backend/internal/lib/sl"
	"github.com/jobboard/backend/internal/model"
	"github.com/jobboard/backend/internal/token"
)

const bearerPrefix = "Bearer "

var ErrMisconfigured = errors.New("auth config invalid")

type UserDirectory interface {
	UserLookup
	UserByID(ctx context.Context, userID string) (*model.User, error)
	CreateUser(ctx context.Context, user model.User) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)
	DeleteUser(ctx context.Context, userID string) error
	CompanyExists(ctx context.Context, companyID string) (bool, error)
}

// TokenStore holds at most one record per user.
type TokenStore interface {
	UpsertToken(ctx context.Context, record model.TokenRecord) error
	TokenByRefresh(ctx context.Context, refreshToken string) (*model.TokenRecord, error)
	TokenByUserID(ctx context.Context, userID string) (*model.TokenRecord, error)
	UpdateAccessToken(ctx context.Context, record model.TokenRecord, accessToken string) error
	DeleteTokenByRefresh(ctx context.Context, refreshToken string) error
	DeleteTokenByUserID(ctx context.Context, userID string) error
}

type LoginHistory interface {
	AppendLogin(ctx context.Context, event model.LoginEvent) error
	ListLogins(ctx context.Context, userID string, limit int) ([]model.LoginEvent, error)
}

// Store is implemented by every storage backend in internal/db.
type Store interface {
	UserDirectory
	TokenStore
	LoginHistory
}

type Blacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

type AuthService struct {
	log           *slog.Logger
	store         Store
	blacklist     Blacklist
	locker        Locker
	issuer        *token.Issuer
	credentials   *CredentialVerifier
	now           func() time.Time
	callTimeout   time.Duration
	lockTTL       time.Duration
	revokeOnLogin bool
	cookieCfg     CookieConfig
}

type Option func(*AuthService)

// WithClock replaces time.Now for token signing, verification and record
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.now = now
	}
}

// LoginResult is handed to the transport layer. RefreshToken must only ever
// leave the process as an HttpOnly cookie.
type LoginResult struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type RefreshResult struct {
	AccessToken string
	ExpiresIn   int64
}

// NewAuthService validates cfg and assembles the session manager. locker may
// be nil, which disables the refresh lock regardless of cfg.
func NewAuthService(log *slog.Logger, store Store, blacklist Blacklist, locker Locker, cfg config.AuthConfig, opts ...Option) (*AuthService, error) {
	if store == nil || blacklist == nil {
		return nil, fmt.Errorf("%w: store and blacklist are required", ErrMisconfigured)
	}
	if strings.TrimSpace(cfg.AccessSecret) == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrMisconfigured)
	}
	if strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, fmt.Errorf("%w: REFRESH_TOKEN_SECRET is required", ErrMisconfigured)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("%w: JWT_SECRET and REFRESH_TOKEN_SECRET must differ", ErrMisconfigured)
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("%w: invalid AUTH_CALL_TIMEOUT", ErrMisconfigured)
	}

	sameSite, err := parseSameSite(cfg.CookieSameSite)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SAMESITE", ErrMisconfigured)
	}
	if sameSite == http.SameSiteNoneMode && !cfg.CookieSecure {
		return nil, fmt.Errorf("%w: SameSite=None requires Secure cookie", ErrMisconfigured)
	}

	cookieName := cfg.CookieName
	if strings.TrimSpace(cookieName) == "" {
		cookieName = "refreshToken"
	}
	cookiePath := cfg.CookiePath
	if strings.TrimSpace(cookiePath) == "" {
		cookiePath = "/"
	}

	s := &AuthService{
		log:           log,
		store:         store,
		blacklist:     blacklist,
		now:           time.Now,
		callTimeout:   cfg.CallTimeout,
		lockTTL:       cfg.RefreshLockTTL,
		revokeOnLogin: cfg.RevokeOnLogin,
		cookieCfg: CookieConfig{
			Name:     cookieName,
			Path:     cookiePath,
			Domain:   cfg.CookieDomain,
			Secure:   cfg.CookieSecure,
			SameSite: sameSite,
			MaxAge:   int(cfg.RefreshTTL.Seconds()),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.RefreshLock && locker != nil {
		if s.lockTTL <= 0 {
			return nil, fmt.Errorf("%w: invalid AUTH_REFRESH_LOCK_TTL", ErrMisconfigured)
		}
		s.locker = locker
	}

	s.issuer, err = token.NewIssuer(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL, token.WithClock(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMisconfigured, err)
	}

	s.credentials, err = NewCredentialVerifier(store, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *AuthService) CookieConfig() CookieConfig {
	return s.cookieCfg
}

// Login verifies credentials and replaces the user's session record.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (*LoginResult, error) {
	const op = "service.AuthService.Login"

	log := s.log.With(slog.String("op", op))

	cctx, cancel := s.bounded(ctx)
	user, err := s.credentials.Verify(cctx, email, password)
	cancel()
	if err != nil {
		return nil, err
	}

	access, err := s.issuer.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, apperr.ErrServerError.Wrap(fmt.Errorf("%s: %w", op, err))
	}
	refresh, err := s.issuer.IssueRefreshToken(user.ID, user.Role)
	if err != nil {
		return nil, apperr.ErrServerError.Wrap(fmt.Errorf("%s: %w", op, err))
	}

	if s.revokeOnLogin {
		s.revokeSuperseded(ctx, log, user.ID)
	}

	now := s.now().UTC()
	record := model.TokenRecord{
		UserID:       user.ID,
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		IssuedAt:     now,
		ExpiresAt:    refresh.ExpiresAt.UTC(),
	}

	cctx, cancel = s.bounded(ctx)
	err = s.store.UpsertToken(cctx, record)
	cancel()
	if err != nil {
		return nil, unavailable(op, err)
	}

	cctx, cancel = s.bounded(ctx)
	err = s.store.AppendLogin(cctx, model.LoginEvent{
		UserID:    user.ID,
		LoginAt:   now,
		IPAddress: clientIP,
	})
	cancel()
	if err != nil {
		log.Warn("failed to record login history", slog.String("user_id", user.ID), sl.Err(err))
	}

	log.Info("user logged in", slog.String("user_id", user.ID))

	return &LoginResult{
		User:         user,
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

// Authenticate turns an Authorization header value into the caller's
// identity. The blacklist is consulted before the signature.
func (s *AuthService) Authenticate(ctx context.Context, header string) (*model.AuthUser, error) {
	const op = "service.AuthService.Authenticate"

	tokenStr, err := bearerToken(header)
	if err != nil {
		return nil, err
	}

	cctx, cancel := s.bounded(ctx)
	revoked, err := s.blacklist.IsRevoked(cctx, tokenStr)
	cancel()
	if err != nil {
		return nil, unavailable(op, err)
	}
	if revoked {
		return nil, apperr.ErrTokenBlacklisted
	}

	claims, err := s.issuer.Verify(tokenStr, token.Access)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, apperr.ErrExpiredToken
		}
		return nil, apperr.ErrInvalidAccessToken
	}

	return &model.AuthUser{
		ID:   claims.Subject,
		Role: claims.Role,
	}, nil
}

// Refresh mints a new access token for the session owning refreshToken. The
// previous access token is blacklisted before the new one is returned.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	const op = "service.AuthService.Refresh"

	log := s.log.With(slog.String("op", op))

	if refreshToken == "" {
		return nil, apperr.ErrMissingToken.WithMessage("Refresh token is missing.")
	}

	record, err := s.lookup(ctx, op, refreshToken)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		unlock, err := s.lock(ctx, op, record.UserID)
		if err != nil {
			return nil, err
		}
		defer func() {
			rctx, cancel := s.bounded(context.WithoutCancel(ctx))
			defer cancel()
			if err := unlock(rctx); err != nil {
				log.Warn("failed to release refresh lock", slog.String("user_id", record.UserID), sl.Err(err))
			}
		}()

		// the record may have rotated before the lock was taken
		record, err = s.lookup(ctx, op, refreshToken)
		if err != nil {
			return nil, err
		}
	}

	claims, err := s.issuer.Verify(refreshToken, token.Refresh)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, apperr.ErrExpiredToken
		}
		return nil, apperr.ErrInvalidRefreshToken
	}
	if claims.Subject != record.UserID {
		return nil, apperr.ErrInvalidRefreshToken
	}

	s.revokeAccess(ctx, log, record.UserID, record.AccessToken)

	access, err := s.issuer.IssueAccessToken(claims.Subject, claims.Role)
	if err != nil {
		return nil, apperr.ErrServerError.Wrap(fmt.Errorf("%s: %w", op, err))
	}

	cctx, cancel := s.bounded(ctx)
	err = s.store.UpdateAccessToken(cctx, *record, access.Token)
	cancel()
	if err != nil {
		if errors.Is(err, db.ErrTokenNotFound) {
			return nil, apperr.ErrInvalidRefreshToken
		}
		return nil, unavailable(op, err)
	}

	log.Debug("access token refreshed", slog.String("user_id", record.UserID))

	return &RefreshResult{
		AccessToken: access.Token,
		ExpiresIn:   int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

// Logout ends the session owning refreshToken.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.AuthService.Logout"

	log := s.log.With(slog.String("op", op))

	if refreshToken == "" {
		return apperr.ErrMissingToken.
			WithMessage("Refresh token is missing.").
			WithStatus(http.StatusBadRequest)
	}

	record, err := s.lookup(ctx, op, refreshToken)
	if err != nil {
		return err
	}

	s.revokeAccess(ctx, log, record.UserID, record.AccessToken)

	cctx, cancel := s.bounded(ctx)
	err = s.store.DeleteTokenByRefresh(cctx, refreshToken)
	cancel()
	if err != nil && !errors.Is(err, db.ErrTokenNotFound) {
		return unavailable(op, err)
	}

	log.Info("user logged out", slog.String("user_id", record.UserID))
	return nil
}

func (s *AuthService) lookup(ctx context.Context, op, refreshToken string) (*model.TokenRecord, error) {
	cctx, cancel := s.bounded(ctx)
	defer cancel()

	record, err := s.store.TokenByRefresh(cctx, refreshToken)
	if err != nil {
		if errors.Is(err, db.ErrTokenNotFound) {
			return nil, apperr.ErrInvalidRefreshToken
		}
		return nil, unavailable(op, err)
	}
	return record, nil
}

func (s *AuthService) lock(ctx context.Context, op, userID string) (func(context.Context) error, error) {
	cctx, cancel := s.bounded(ctx)
	defer cancel()

	unlock, err := s.locker.TryLock(cctx, "refresh:"+userID, s.lockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, apperr.ErrRefreshInProgress
		}
		return nil, unavailable(op, err)
	}
	return unlock, nil
}

// revokeAccess blacklists accessToken for the rest of its lifetime. Failures
// are logged and swallowed.
func (s *AuthService) revokeAccess(ctx context.Context, log *slog.Logger, userID, accessToken string) {
	if accessToken == "" {
		return
	}

	ttl, err := s.issuer.RemainingTTL(accessToken)
	if err != nil {
		ttl = s.issuer.AccessTTL()
	}

	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.blacklist.Revoke(cctx, accessToken, ttl); err != nil {
		log.Warn("failed to blacklist access token", slog.String("user_id", userID), sl.Err(err))
	}
}

func (s *AuthService) revokeSuperseded(ctx context.Context, log *slog.Logger, userID string) {
	cctx, cancel := s.bounded(ctx)
	prev, err := s.store.TokenByUserID(cctx, userID)
	cancel()
	if err != nil {
		if !errors.Is(err, db.ErrTokenNotFound) {
			log.Warn("failed to read previous session", slog.String("user_id", userID), sl.Err(err))
		}
		return
	}
	s.revokeAccess(ctx, log, userID, prev.AccessToken)
}

func (s *AuthService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.callTimeout)
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.ErrMissingToken
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", apperr.ErrInvalidTokenFormat
	}
	tokenStr := strings.TrimSpace(header[len(bearerPrefix):])
	if tokenStr == "" {
		return "", apperr.ErrMissingToken
	}
	return tokenStr, nil
}

// unavailable reports an infrastructure failure. It never maps to an auth
// error.
func unavailable(op string, err error) error {
	return apperr.ErrServiceUnavailable.Wrap(fmt.Errorf("%s: %w", op, err))
}

func parseSameSite(value string) (http.SameSite, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return http.SameSiteStrictMode, nil
	}
	switch value {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("unknown SameSite mode %q", value)
	}
}
