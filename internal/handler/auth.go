package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/config"
	"github.com/iliyamo/union-registry/internal/model"
	"github.com/iliyamo/union-registry/internal/repository"
	"github.com/iliyamo/union-registry/internal/utils"
)

// AccountStore is the account persistence used by AuthHandler.
type AccountStore interface {
	Create(ctx context.Context, email, password, role string, memberRef *uint64, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetByID(ctx context.Context, id uint64) (model.Account, error)
}

// TokenStore is the refresh token persistence used by AuthHandler.
type TokenStore interface {
	StoreRefresh(ctx context.Context, accountID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForAccount(ctx context.Context, accountID uint64) error
}

// MemberLookup checks that a member exists before an account is linked to it.
type MemberLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.Member, error)
}

// AuthHandler bundles dependencies for auth and account endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Accounts AccountStore
	Tokens   TokenStore
	Members  MemberLookup
	Logger   *logrus.Logger
}

func NewAuthHandler(cfg config.Config, a AccountStore, t TokenStore, m MemberLookup, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Accounts: a, Tokens: t, Members: m, Logger: logger}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type createAccountReq struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Role      string  `json:"role"`
	MemberRef *uint64 `json:"member_ref"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type accountPart struct {
	ID        uint64  `json:"id"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	MemberRef *uint64 `json:"member_ref"`
}
type authResp struct {
	Account accountPart `json:"account"`
	Access  tokenPart   `json:"access"`
	Refresh tokenPart   `json:"refresh"`
}

// issue creates an access/refresh pair for a and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, a model.Account) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, a.ID, a.Role, a.MemberRef, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, a.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		Account: accountPart{ID: a.ID, Email: a.Email, Role: a.Role, MemberRef: a.MemberRef},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	a, err := h.Accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return writeError(c, h.Logger, err)
	}
	if !utils.VerifyPassword(a.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !a.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	resp, err := h.issue(ctx, a)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	h.Logger.WithFields(logrus.Fields{"account_id": a.ID, "role": a.Role}).Info("login")
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestContext(c)
	defer cancel()

	accountID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshInvalid) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return writeError(c, h.Logger, err)
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return writeError(c, h.Logger, err)
	}

	a, err := h.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return writeError(c, h.Logger, err)
	}
	if !a.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	resp, err := h.issue(ctx, a)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes one session when a refresh_token is posted, or every
// session of the caller when only a Bearer access token is sent.
func (h *AuthHandler) Logout(c echo.Context) error {
	var (
		accountID uint64
		hasBearer bool
	)
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if caller, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer ")); err == nil {
			accountID = caller.AccountID
			hasBearer = true
		}
	}

	// An unreadable body only means no refresh token was sent.
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := requestContext(c)
	defer cancel()

	switch {
	case refreshToken != "":
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return writeError(c, h.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	case hasBearer:
		if err := h.Tokens.RevokeAllForAccount(ctx, accountID); err != nil {
			return writeError(c, h.Logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
}

// Me returns the caller capability decoded from the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	caller, ok := callerOf(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"account_id": caller.AccountID,
		"role":       caller.Role,
		"member_ref": caller.MemberRef,
	})
}

// CreateAccount lets an administrator provision a login.  Member-role
// accounts must reference an existing member that has no account yet.
func (h *AuthHandler) CreateAccount(c echo.Context) error {
	var req createAccountReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))

	fields := map[string]string{}
	if req.Email == "" {
		fields["email"] = "is required"
	}
	if len(req.Password) < utils.MinPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
	switch req.Role {
	case model.RoleMember:
		if req.MemberRef == nil {
			fields["member_ref"] = "is required for member accounts"
		}
	case model.RoleAdministrator:
		req.MemberRef = nil
	default:
		fields["role"] = "must be administrator or member"
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation_failed", "fields": fields})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if req.MemberRef != nil {
		if _, err := h.Members.GetByID(ctx, *req.MemberRef); err != nil {
			if errors.Is(err, repository.ErrMemberNotFound) {
				return c.JSON(http.StatusUnprocessableEntity, echo.Map{
					"error":  "validation_failed",
					"fields": map[string]string{"member_ref": "does not reference an existing member"},
				})
			}
			return writeError(c, h.Logger, err)
		}
	}

	id, err := h.Accounts.Create(ctx, req.Email, req.Password, req.Role, req.MemberRef, h.Cfg.BcryptCost)
	if err != nil {
		var dup *repository.DuplicateKeyError
		if errors.As(err, &dup) {
			return c.JSON(http.StatusConflict, echo.Map{
				"error":  "duplicate",
				"fields": map[string]string{dup.Field: "has already been taken"},
			})
		}
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, accountPart{ID: id, Email: req.Email, Role: req.Role, MemberRef: req.MemberRef})
}
