package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vmaximov/sellhub/internal/auth"
	"github.com/vmaximov/sellhub/internal/logging"
	"github.com/vmaximov/sellhub/internal/mykafka"
)

type AuthHandler struct {
	Auth      *auth.Manager
	Google    *auth.GoogleProvider
	Producer  *mykafka.Producer
	ClientURL string
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username, email and password are required")
	}

	user, err := h.Auth.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}

	h.publish(c, "user_events", fmt.Sprint(user.ID), map[string]interface{}{
		"type":     "user_registered",
		"user_id":  user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	session, err := h.Auth.Authenticate(ctx, auth.LocalCredentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return httpError(err)
	}

	h.publish(c, "user_events", fmt.Sprint(session.User.ID), map[string]interface{}{
		"type":     "user_logged_in",
		"user_id":  session.User.ID,
		"username": session.User.Username,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"token": session.Token,
		"user":  session.User,
	})
}

// GoogleLogin starts the federated redirect flow.
func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	state := h.Google.NewState()
	c.SetCookie(&http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusTemporaryRedirect, h.Google.AuthURL(state))
}

// GoogleCallback finishes the federated flow: state check, code exchange,
// then the federated strategy. Any transport failure fails closed.
func (h *AuthHandler) GoogleCallback(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_google_callback")

	stateCookie, err := c.Cookie("oauthstate")
	if err != nil || stateCookie.Value == "" || c.QueryParam("state") != stateCookie.Value {
		l.Warn("google_callback_rejected", "reason", "state_mismatch")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid oauth state")
	}

	creds, err := h.Google.Exchange(ctx, c.QueryParam("code"))
	if err != nil {
		l.Warn("google_callback_rejected", "reason", "exchange_failed", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	session, err := h.Auth.Authenticate(ctx, *creds)
	if err != nil {
		return httpError(err)
	}

	h.publish(c, "user_events", fmt.Sprint(session.User.ID), map[string]interface{}{
		"type":     "user_logged_in",
		"user_id":  session.User.ID,
		"username": session.User.Username,
	})

	redirect := h.ClientURL + "?token=" + url.QueryEscape(session.Token)
	return c.Redirect(http.StatusFound, redirect)
}

func (h *AuthHandler) publish(c echo.Context, topic, key string, event map[string]interface{}) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}
