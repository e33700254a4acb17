package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recipe-box/internal/auth"
	"github.com/iliyamo/recipe-box/internal/logging"
	"github.com/iliyamo/recipe-box/internal/middleware"
	"github.com/iliyamo/recipe-box/internal/model"
	"github.com/iliyamo/recipe-box/internal/repository"
)

// SessionService is the part of auth.Service the endpoints use.
type SessionService interface {
	Login(ctx context.Context, identifier, password string) (auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (auth.Session, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Unlock(ctx context.Context, id uint64) error
	StartSession(p *model.Principal) (auth.Session, error)
	Hasher() *auth.Hasher
}

// PrincipalCreator stores new principals.
type PrincipalCreator interface {
	Create(ctx context.Context, p *model.Principal) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Sessions SessionService
	Users    PrincipalCreator
}

func NewAuthHandler(s SessionService, u PrincipalCreator) *AuthHandler {
	return &AuthHandler{Sessions: s, Users: u}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}
type loginReq struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"` // accepted when identifier is empty
	Password   string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toUserPart(p *model.Principal) userPart {
	return userPart{ID: p.ID, Username: p.Username, Email: p.Email, Phone: p.Phone, Role: p.Role}
}

func toAuthResp(s auth.Session) authResp {
	return authResp{
		User:    toUserPart(s.Principal),
		Access:  tokenPart{Token: s.Access.Value, Expires: s.Access.ExpiresAt},
		Refresh: tokenPart{Token: s.Refresh.Value, Expires: s.Refresh.ExpiresAt},
	}
}

// Register creates a principal and returns a token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := validateRegistration(&req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	hash, err := h.Sessions.Hasher().Hash(req.Password)
	if err != nil {
		return WriteAuthError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p := &model.Principal{
		Username:     req.Username,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := h.Users.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrIdentifierTaken) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username, email or phone already registered"})
		}
		logging.FromContext(ctx).Error("create principal failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	sess, err := h.Sessions.StartSession(p)
	if err != nil {
		return WriteAuthError(c, err)
	}
	return c.JSON(http.StatusCreated, toAuthResp(sess))
}

// Login checks credentials and returns a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Sessions.Login(ctx, identifier, req.Password)
	if err != nil {
		return WriteAuthError(c, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(sess))
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is returned.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Sessions.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return WriteAuthError(c, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(sess))
}

// Logout revokes the bearer access token and/or the refresh token in the
// body. At least one must be present.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	access, _ := middleware.BearerToken(c)
	refresh := strings.TrimSpace(req.RefreshToken)
	if access == "" && refresh == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bearer token or refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.Logout(ctx, access, refresh); err != nil {
		return WriteAuthError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated principal.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, toUserPart(p))
}

// Unlock clears the lockout of the principal named in the path (admin).
func (h *AuthHandler) Unlock(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.Unlock(ctx, id); err != nil {
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "principal not found"})
		}
		return WriteAuthError(c, err)
	}
	if admin, ok := middleware.CurrentPrincipal(c); ok {
		logging.FromContext(ctx).Info("principal unlocked", "principal_id", id, "by", admin.ID)
	}
	return c.NoContent(http.StatusNoContent)
}

func validateRegistration(req *registerReq) string {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)

	switch {
	case req.Username == "" || req.Email == "" || req.Password == "":
		return "username/email/password required"
	case utf8.RuneCountInString(req.Username) > 64 || strings.ContainsAny(req.Username, "@ \t"):
		return "invalid username"
	case len(req.Email) > 255 || !strings.Contains(req.Email, "@"):
		return "invalid email"
	case len(req.Phone) > 32:
		return "invalid phone"
	case len(req.Password) < 8:
		return "password must be at least 8 characters"
	}
	return ""
}
