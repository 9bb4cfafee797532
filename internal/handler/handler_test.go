package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/jobboard/backend/internal/cache"
	"github.com/jobboard/backend/internal/config"
	"github.com/jobboard/backend/internal/db"
	"github.com/jobboard/backend/internal/lib/logger"
	"github.com/jobboard/backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testOrigin  = "http://localhost:3000"
	cookieName  = "refreshToken"
	redisPrefix = "test:"
)

type testEnv struct {
	router *gin.Engine
	store  *db.Memory
	redis  *miniredis.Miniredis
}

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithProxies(t, nil)
}

func newTestEnvWithProxies(t *testing.T, trustedProxies []string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	store := db.NewMemory()
	cfg := config.AuthConfig{
		AccessSecret:   "handler-access-secret",
		RefreshSecret:  "handler-refresh-secret",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		BcryptCost:     bcrypt.MinCost,
		CallTimeout:    time.Second,
		RefreshLock:    true,
		RefreshLockTTL: 5 * time.Second,
		CookieName:     cookieName,
		CookiePath:     "/auth",
		CookieSecure:   true,
		CookieSameSite: "strict",
	}

	svc, err := service.NewAuthService(
		logger.Discard(),
		store,
		cache.NewBlacklist(rdb, redisPrefix),
		cache.NewLocker(rdb, redisPrefix),
		cfg,
	)
	require.NoError(t, err)

	router, err := NewRouter(logger.Discard(), svc,
		config.HTTPConfig{TrustedProxies: trustedProxies},
		config.CORSConfig{
			AllowedOrigins:   []string{testOrigin},
			AllowCredentials: true,
		},
	)
	require.NoError(t, err)

	return &testEnv{router: router, store: store, redis: mr}
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func withCookie(value string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: cookieName, Value: value}) }
}

func (e *testEnv) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	require.Equal(t, status, w.Code, w.Body.String())
	env := decode(t, w)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, code, env.Code)
	assert.NotEmpty(t, env.Message)
}

type credentials struct {
	Email    string
	Password string
}

func (e *testEnv) register(t *testing.T, extra map[string]any) (string, credentials) {
	t.Helper()

	creds := credentials{
		Email:    gofakeit.Email(),
		Password: gofakeit.Password(true, true, true, false, false, 14),
	}
	body := map[string]any{
		"username": gofakeit.Username(),
		"email":    creds.Email,
		"password": creds.Password,
		"profile":  map[string]any{"fullName": gofakeit.Name(), "skills": []string{"go"}},
	}
	for k, v := range extra {
		body[k] = v
	}

	w := e.do(t, http.MethodPost, "/auth/register", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var user struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &user))
	return user.ID, creds
}

type session struct {
	access  string
	refresh *http.Cookie
}

func (e *testEnv) login(t *testing.T, creds credentials, opts ...requestOption) session {
	t.Helper()

	w := e.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	}, opts...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))

	var refresh *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			refresh = c
		}
	}
	require.NotNil(t, refresh, "refresh cookie must be set")

	return session{access: data.AccessToken, refresh: refresh}
}

func (e *testEnv) refresh(t *testing.T, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(cookie))
}

func TestHealthRoutes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = env.do(t, http.MethodGet, "/ping", nil, withHeader(requestIDHeader, "req-123"))
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

func TestOpenAPIDoc(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/auth/login")
	assert.Contains(t, paths, "/auth/refresh")

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = env.do(t, http.MethodGet, "/openapi.json", nil, withHeader("If-None-Match", etag))
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	t.Run("created without credentials", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/auth/register", map[string]any{
			"username": "jane",
			"email":    "jane@example.com",
			"password": "correct-horse",
			"profile":  map[string]any{"fullName": "Jane Doe"},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.NotContains(t, w.Body.String(), "correct-horse")
		assert.NotContains(t, strings.ToLower(w.Body.String()), "passwordhash")

		resp := decode(t, w)
		assert.Equal(t, "success", resp.Status)
		assert.Contains(t, string(resp.Data), `"role":"jobseeker"`)
		assert.Contains(t, string(resp.Data), `"skills":[]`)
	})

	t.Run("duplicate email", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/auth/register", map[string]any{
			"username": "jane2",
			"email":    "jane@example.com",
			"password": "another-pass",
			"profile":  map[string]any{"fullName": "Jane Two"},
		})
		assertError(t, w, http.StatusBadRequest, "ALREADY_REGISTERED")
	})

	t.Run("validation", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/auth/register", map[string]any{
			"username": "x",
			"email":    "not-an-email",
			"password": "short",
		})
		assertError(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

		msg := decode(t, w).Message
		assert.Contains(t, msg, "email must be a valid email address.")
		assert.Contains(t, msg, "password must be at least 8 characters.")
		assert.Contains(t, msg, "profile.fullName is required.")
	})

	t.Run("malformed json", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/auth/register", `{"email":`)
		assertError(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	})

	t.Run("admin with unknown company", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/auth/register", map[string]any{
			"username":  "boss",
			"email":     "boss@example.com",
			"password":  "boss-password",
			"role":      "admin",
			"companyId": "nope",
			"profile":   map[string]any{"fullName": "The Boss"},
		})
		assertError(t, w, http.StatusNotFound, "COMPANY_NOT_FOUND")
	})
}

func TestLogin_SetsRefreshCookie(t *testing.T) {
	env := newTestEnv(t)
	_, creds := env.register(t, nil)

	w := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var refresh *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			refresh = c
		}
	}
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.True(t, refresh.Secure)
	assert.Equal(t, http.SameSiteStrictMode, refresh.SameSite)
	assert.Equal(t, "/auth", refresh.Path)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), refresh.MaxAge)

	// refresh token never appears in the body
	assert.NotContains(t, w.Body.String(), refresh.Value)
	assert.Contains(t, w.Body.String(), `"expiresIn":900`)
}

func TestLogin_UniformFailure(t *testing.T) {
	env := newTestEnv(t)
	_, creds := env.register(t, nil)

	wrong := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    creds.Email,
		"password": creds.Password + "!",
	})
	unknown := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "ghost@example.com",
		"password": creds.Password,
	})

	assertError(t, wrong, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)
	_, creds := env.register(t, nil)
	sess := env.login(t, creds)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"wrong scheme", "Token " + sess.access, http.StatusUnauthorized, "INVALID_TOKEN_FORMAT"},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"garbage", "Bearer abc.def.ghi", http.StatusForbidden, "INVALID_ACCESS_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []requestOption
			if tt.header != "" {
				opts = append(opts, withHeader("Authorization", tt.header))
			}
			w := env.do(t, http.MethodGet, "/auth/profile", nil, opts...)
			assertError(t, w, tt.status, tt.code)
		})
	}

	w := env.do(t, http.MethodGet, "/auth/profile", nil, withBearer(sess.access))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(decode(t, w).Data), creds.Email)
}

func TestAuthMiddleware_CacheDownFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	_, creds := env.register(t, nil)
	sess := env.login(t, creds)

	env.redis.Close()

	w := env.do(t, http.MethodGet, "/auth/profile", nil, withBearer(sess.access))
	assertError(t, w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE")
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	userID, creds := env.register(t, nil)
	sess := env.login(t, creds)

	w := env.do(t, http.MethodPost, "/auth/refresh", nil)
	assertError(t, w, http.StatusUnauthorized, "MISSING_TOKEN")

	w = env.refresh(t, "not-a-known-token")
	assertError(t, w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")

	w = env.refresh(t, sess.refresh.Value)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	require.NotEmpty(t, data.AccessToken)
	assert.NotEqual(t, sess.access, data.AccessToken)

	key := redisPrefix + "blacklist:" + sess.access
	val, err := env.redis.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "blacklisted", val)
	ttl := env.redis.TTL(key)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 15*time.Minute)

	w = env.do(t, http.MethodGet, "/auth/profile", nil, withBearer(sess.access))
	assertError(t, w, http.StatusForbidden, "TOKEN_BLACKLISTED")

	w = env.do(t, http.MethodGet, "/auth/profile", nil, withBearer(data.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.False(t, env.redis.Exists(redisPrefix+"lock:refresh:"+userID), "lock must be released")
}

func TestRefresh_LockHeld(t *testing.T) {
	env := newTestEnv(t)
	userID, creds := env.register(t, nil)
	sess := env.login(t, creds)

	require.NoError(t, env.redis.Set(redisPrefix+"lock:refresh:"+userID, "someone-else"))

	w := env.refresh(t, sess.refresh.Value)
	assertError(t, w, http.StatusConflict, "REFRESH_IN_PROGRESS")
}

func TestRefresh_CacheDownIsUnavailable(t *testing.T) {
	env := newTestEnv(t)
	_, creds := env.register(t, nil)
	sess := env.login(t, creds)

	env.redis.SetError("READONLY You can't write against a read only replica.")
	defer env.redis.SetError("")

	w := env.refresh(t, sess.refresh.Value)
	assertError(t, w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE")
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	_, creds := env.register(t, nil)
	sess := env.login(t, creds)

	w := env.do(t, http.MethodPost, "/auth/logout", nil)
	assertError(t, w, http.StatusBadRequest, "MISSING_TOKEN")

	w = env.do(t, http.MethodPost, "/auth/logout", nil, withCookie(sess.refresh.Value))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cleared *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	w = env.refresh(t, sess.refresh.Value)
	assertError(t, w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")

	w = env.do(t, http.MethodPost, "/auth/logout", nil, withCookie(sess.refresh.Value))
	assertError(t, w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")

	w = env.do(t, http.MethodGet, "/auth/profile", nil, withBearer(sess.access))
	assertError(t, w, http.StatusForbidden, "TOKEN_BLACKLISTED")
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	_, creds := env.register(t, nil)
	sess := env.login(t, creds)

	w := env.do(t, http.MethodPut, "/auth/profile", map[string]any{"bio": "Gopher"}, withBearer(sess.access))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(decode(t, w).Data), `"bio":"Gopher"`)

	w = env.do(t, http.MethodPut, "/auth/profile", map[string]any{"oldPassword": creds.Password}, withBearer(sess.access))
	assertError(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	w = env.do(t, http.MethodPut, "/auth/profile", map[string]any{
		"oldPassword": "definitely-wrong",
		"newPassword": "replacement-pass",
	}, withBearer(sess.access))
	assertError(t, w, http.StatusBadRequest, "INCORRECT_OLD_PASSWORD")

	w = env.do(t, http.MethodPut, "/auth/profile", map[string]any{
		"oldPassword": creds.Password,
		"newPassword": "replacement-pass",
	}, withBearer(sess.access))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.login(t, credentials{Email: creds.Email, Password: "replacement-pass"})
}

func TestDeleteProfile(t *testing.T) {
	env := newTestEnv(t)
	_, creds := env.register(t, nil)
	sess := env.login(t, creds)

	w := env.do(t, http.MethodDelete, "/auth/profile", map[string]string{"password": "wrong-password"}, withBearer(sess.access))
	assertError(t, w, http.StatusBadRequest, "INCORRECT_PASSWORD")

	w = env.do(t, http.MethodDelete, "/auth/profile", map[string]string{"password": creds.Password}, withBearer(sess.access))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.refresh(t, sess.refresh.Value)
	assertError(t, w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")

	w = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": creds.Email, "password": creds.Password})
	assertError(t, w, http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

func TestAdminLoginHistory(t *testing.T) {
	env := newTestEnv(t)

	seekerID, seekerCreds := env.register(t, nil)
	seeker := env.login(t, seekerCreds)
	env.login(t, seekerCreds)

	companyID, err := env.store.CreateCompany(t.Context(), "Acme")
	require.NoError(t, err)
	_, adminCreds := env.register(t, map[string]any{"role": "admin", "companyId": companyID})
	admin := env.login(t, adminCreds)

	path := "/admin/users/" + seekerID + "/logins"

	w := env.do(t, http.MethodGet, path, nil, withBearer(seeker.access))
	assertError(t, w, http.StatusForbidden, "FORBIDDEN_ACTION")

	w = env.do(t, http.MethodGet, path, nil)
	assertError(t, w, http.StatusUnauthorized, "MISSING_TOKEN")

	w = env.do(t, http.MethodGet, path, nil, withBearer(admin.access))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var events []map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &events))
	assert.Len(t, events, 2)

	w = env.do(t, http.MethodGet, path+"?limit=1", nil, withBearer(admin.access))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &events))
	assert.Len(t, events, 1)

	w = env.do(t, http.MethodGet, path+"?limit=abc", nil, withBearer(admin.access))
	assertError(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	w = env.do(t, http.MethodGet, "/admin/users/unknown/logins", nil, withBearer(admin.access))
	assertError(t, w, http.StatusNotFound, "USER_NOT_FOUND")
}

func TestLogin_RecordsPeerAddress(t *testing.T) {
	env := newTestEnv(t)

	userID, creds := env.register(t, nil)
	env.login(t, creds, withHeader("X-Forwarded-For", "6.6.6.6"), withHeader("X-Real-IP", "6.6.6.6"))

	events, err := env.store.ListLogins(t.Context(), userID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	// httptest requests come from 192.0.2.1
	assert.Equal(t, "192.0.2.1", events[0].IPAddress)
}

func TestLogin_TrustedProxyForwardsClientIP(t *testing.T) {
	env := newTestEnvWithProxies(t, []string{"192.0.2.0/24"})

	userID, creds := env.register(t, nil)
	env.login(t, creds, withHeader("X-Forwarded-For", "198.51.100.23"))

	events, err := env.store.ListLogins(t.Context(), userID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "198.51.100.23", events[0].IPAddress)
}

func TestNewRouter_RejectsInvalidTrustedProxy(t *testing.T) {
	_, err := NewRouter(logger.Discard(), nil, config.HTTPConfig{TrustedProxies: []string{"not-an-ip"}}, config.CORSConfig{})
	assert.Error(t, err)
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	env.router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := env.do(t, http.MethodGet, "/boom", nil)
	assertError(t, w, http.StatusInternalServerError, "SERVER_ERROR")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodOptions, "/auth/login", nil, withHeader("Origin", testOrigin))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, testOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = env.do(t, http.MethodOptions, "/auth/login", nil, withHeader("Origin", "http://evil.example"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
