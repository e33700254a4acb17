package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/recipe-box/internal/auth"
	"github.com/iliyamo/recipe-box/internal/model"
)

func newContext(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestWriteAuthError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"expired", &auth.Error{Kind: auth.KindTokenExpired, Op: "verify token"}, http.StatusUnauthorized, `"unauthorized"`},
		{"revoked", auth.ErrTokenRevoked, http.StatusUnauthorized, `"unauthorized"`},
		{"malformed", auth.ErrMalformedToken, http.StatusUnauthorized, `"unauthorized"`},
		{"missing claim", auth.ErrMissingClaim, http.StatusUnauthorized, `"unauthorized"`},
		{"wrong type", auth.ErrWrongTokenType, http.StatusUnauthorized, `"unauthorized"`},
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, `"invalid credentials"`},
		{"disabled", auth.ErrAccountDisabled, http.StatusForbidden, `"account disabled"`},
		{"repository", &auth.Error{Kind: auth.KindRepositoryUnavailable, Err: errors.New("dial tcp: refused")}, http.StatusInternalServerError, `"internal error"`},
		{"hashing", auth.ErrHashingError, http.StatusInternalServerError, `"internal error"`},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, `"internal error"`},
		{"wrapped", fmt.Errorf("outer: %w", auth.ErrTokenRevoked), http.StatusUnauthorized, `"unauthorized"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/", "")
			require.NoError(t, WriteAuthError(c, tt.err))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			assert.NotContains(t, rec.Body.String(), "refused", "causes never reach the client")
		})
	}
}

func TestWriteAuthError_Locked(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", "")
	err := &auth.Error{Kind: auth.KindAccountLocked, LockedUntil: time.Now().Add(90 * time.Second)}
	require.NoError(t, WriteAuthError(c, err))

	assert.Equal(t, http.StatusLocked, rec.Code)
	secs, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, convErr)
	assert.InDelta(t, 90, secs, 1)

	c, rec = newContext(http.MethodGet, "/", "")
	require.NoError(t, WriteAuthError(c, auth.ErrAccountLocked))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestReadyz(t *testing.T) {
	h := NewReadinessHandler(map[string]Check{
		"mysql": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	c, rec := newContext(http.MethodGet, "/readyz", "")
	require.NoError(t, h.Readyz(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"unavailable"`)
	assert.Contains(t, rec.Body.String(), `"mysql":"ok"`)
	assert.NotContains(t, rec.Body.String(), "refused")
}

type stubSessions struct {
	hasher  *auth.Hasher
	unlock  error
	started int
}

func (s *stubSessions) Login(context.Context, string, string) (auth.Session, error) {
	return auth.Session{}, auth.ErrInvalidCredentials
}
func (s *stubSessions) Refresh(context.Context, string) (auth.Session, error) {
	return auth.Session{}, auth.ErrTokenRevoked
}
func (s *stubSessions) Logout(context.Context, string, string) error { return nil }
func (s *stubSessions) Unlock(context.Context, uint64) error         { return s.unlock }
func (s *stubSessions) StartSession(p *model.Principal) (auth.Session, error) {
	s.started++
	return auth.Session{Principal: p}, nil
}
func (s *stubSessions) Hasher() *auth.Hasher { return s.hasher }

type failingCreator struct{ err error }

func (f failingCreator) Create(context.Context, *model.Principal) error { return f.err }

func TestRegister_StoreFailure(t *testing.T) {
	sessions := &stubSessions{hasher: auth.NewHasher(bcrypt.MinCost)}
	h := NewAuthHandler(sessions, failingCreator{err: errors.New("deadlock")})

	c, rec := newContext(http.MethodPost, "/v1/auth/register", `{"username":"zed","email":"zed@example.com","password":"long enough"}`)
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, sessions.started)
}

func TestRegister_Validation(t *testing.T) {
	h := NewAuthHandler(&stubSessions{hasher: auth.NewHasher(bcrypt.MinCost)}, failingCreator{})
	for _, body := range []string{
		`{`,
		`{"username":"","email":"a@b.c","password":"12345678"}`,
		`{"username":"has space","email":"a@b.c","password":"12345678"}`,
		`{"username":"a@b","email":"a@b.c","password":"12345678"}`,
		`{"username":"ok","email":"not-an-email","password":"12345678"}`,
		`{"username":"ok","email":"a@b.c","password":"1234567"}`,
	} {
		c, rec := newContext(http.MethodPost, "/v1/auth/register", body)
		require.NoError(t, h.Register(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestLogin_AcceptsEmailField(t *testing.T) {
	h := NewAuthHandler(&stubSessions{}, failingCreator{})
	c, rec := newContext(http.MethodPost, "/v1/auth/login", `{"email":"a@b.c","password":"pw"}`)
	require.NoError(t, h.Login(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "reaches the service instead of failing validation")
}

func TestUnlock_Errors(t *testing.T) {
	sessions := &stubSessions{unlock: fmt.Errorf("unlock: %w", auth.ErrPrincipalNotFound)}
	h := NewAuthHandler(sessions, failingCreator{})

	c, rec := newContext(http.MethodPost, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("5")
	require.NoError(t, h.Unlock(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sessions.unlock = auth.ErrRepositoryUnavailable
	c, rec = newContext(http.MethodPost, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("5")
	require.NoError(t, h.Unlock(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	c, rec = newContext(http.MethodPost, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("0")
	require.NoError(t, h.Unlock(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
