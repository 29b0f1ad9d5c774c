package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vmaximov/sellhub/internal/auth"
	"github.com/vmaximov/sellhub/internal/listing"
	"github.com/vmaximov/sellhub/internal/profile"
)

// httpError maps store and auth failures onto the external surface. "User
// not found" and "incorrect password" collapse into one 401 so callers
// cannot enumerate accounts; internal logs keep the distinction.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	case errors.Is(err, auth.ErrInvalidToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, listing.ErrTooManyImages):
		return echo.NewHTTPError(http.StatusBadRequest, "too many images")
	case errors.Is(err, listing.ErrNotOwner):
		return echo.NewHTTPError(http.StatusUnauthorized, "not allowed")
	case errors.Is(err, listing.ErrNotFound), errors.Is(err, profile.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
