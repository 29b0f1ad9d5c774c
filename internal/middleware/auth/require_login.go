package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	authsvc "github.com/vmaximov/sellhub/internal/auth"
)

// RequireLogin gates protected routes with the bearer-token strategy. On
// success the resolved user lands in the echo context under "user"/"userID".
func RequireLogin(m *authsvc.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			session, err := m.Authenticate(c.Request().Context(), authsvc.TokenCredentials{Token: raw})
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("user", session.User)
			c.Set("userID", session.User.ID)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return parts[0]
}
