package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vmaximov/sellhub/internal/profile"
)

type ProfileHandler struct {
	Profiles *profile.Service
}

func (h *ProfileHandler) GetProfile(c echo.Context) error {
	userID := c.Get("userID").(uint)

	p, err := h.Profiles.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProfileHandler) UpdateProfile(c echo.Context) error {
	userID := c.Get("userID").(uint)

	var req struct {
		Username string `json:"username"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Username == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username is required")
	}

	if err := h.Profiles.UpdateUsername(c.Request().Context(), userID, req.Username); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "profile updated"})
}
