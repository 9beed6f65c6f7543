// Package handler contains the HTTP handlers for the auth endpoints.
package handler

import (
	"log/slog"
	"net/http"

	"rssauth/internal/delivery/api/response"
	deliverycontext "rssauth/internal/delivery/context"
	domainerrors "rssauth/internal/domain/errors"
	"rssauth/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// AuthHandler holds dependencies for the credential endpoints.
type AuthHandler struct {
	uc     usecase.AuthUsecase
	logger *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler, injected by Fx.
func NewAuthHandler(uc usecase.AuthUsecase, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		uc:     uc,
		logger: logger,
	}
}

// Register handles POST /register.
func (h *AuthHandler) Register(c echo.Context) error {
	var input usecase.RegisterInput
	if err := c.Bind(&input); err != nil {
		return response.BindingError(c, "Invalid registration input")
	}

	output, err := h.uc.Register(c.Request().Context(), &input)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, output.User)
}

// Login handles POST /login.
func (h *AuthHandler) Login(c echo.Context) error {
	var input usecase.LoginInput
	if err := c.Bind(&input); err != nil {
		return response.BindingError(c, "Invalid login input")
	}

	output, err := h.uc.Login(c.Request().Context(), &input)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, output)
}

// Verify handles GET /verify. The token was already checked by the middleware,
// so this only echoes the claims back.
func (h *AuthHandler) Verify(c echo.Context) error {
	identity, ok := deliverycontext.GetIdentity(c)
	if !ok {
		return errors.WithStack(domainerrors.ErrTokenMissing)
	}

	return response.Success(c, http.StatusOK, identity)
}

// Profile handles GET /profile and reads the current record from the store.
func (h *AuthHandler) Profile(c echo.Context) error {
	identity, ok := deliverycontext.GetIdentity(c)
	if !ok {
		return errors.WithStack(domainerrors.ErrTokenMissing)
	}

	profile, err := h.uc.Profile(c.Request().Context(), identity.UserID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, profile)
}
