package handler // handler holds the HTTP handlers of the registry API

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/middleware"
	"github.com/iliyamo/union-registry/internal/model"
	"github.com/iliyamo/union-registry/internal/repository"
	"github.com/iliyamo/union-registry/internal/service"
)

// dbTimeout bounds the database work of a single request.
const dbTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// callerOf returns the authenticated caller.  Routes using it sit behind
// JWTAuth, so a missing caller only happens when a route is mis-wired.
func callerOf(c echo.Context) (model.Caller, bool) {
	return middleware.CallerFrom(c)
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func parseID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// writeError maps service and repository errors to JSON responses.
func writeError(c echo.Context, logger *logrus.Logger, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		if verr.OnlyDuplicates() {
			return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate", "fields": verr.Fields})
		}
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation_failed", "fields": verr.Fields})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrMemberNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "member not found"})
	}
	logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
	}).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
