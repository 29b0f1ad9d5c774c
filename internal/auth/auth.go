package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/vmaximov/sellhub/internal/hash"
	"github.com/vmaximov/sellhub/internal/logging"
	"github.com/vmaximov/sellhub/internal/models"
	"github.com/vmaximov/sellhub/internal/token"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("incorrect password")
	ErrInvalidToken       = token.ErrInvalidToken
	ErrUserExists         = errors.New("user already exists")
)

// Credentials is the tagged variant dispatched through Authenticate.
// Identity is keyed by email everywhere: password login, federated lookup
// and the registration uniqueness check all use the email column.
type Credentials interface {
	strategy() string
}

// LocalCredentials is an email + plaintext password pair.
type LocalCredentials struct {
	Email    string
	Password string
}

// TokenCredentials is a bearer token taken from the Authorization header.
// This variant gates every protected route.
type TokenCredentials struct {
	Token string
}

// FederatedCredentials is an identity assertion obtained from a third-party
// provider. The redirect/callback transport lives in google.go.
type FederatedCredentials struct {
	Email     string
	GivenName string
}

func (LocalCredentials) strategy() string     { return "local" }
func (TokenCredentials) strategy() string     { return "token" }
func (FederatedCredentials) strategy() string { return "federated" }

// Session is the shape every successful strategy resolves to.
type Session struct {
	User  *models.User
	Token string
}

type Manager struct {
	DB     *gorm.DB
	Tokens *token.Issuer
}

// Authenticate runs the strategy carried by creds. Every failure resolves
// to one of the sentinel errors above; callers must not leak which one.
func (m *Manager) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.authenticate", "strategy", creds.strategy())

	switch c := creds.(type) {
	case LocalCredentials:
		return m.authenticateLocal(ctx, l, c)
	case TokenCredentials:
		return m.authenticateToken(ctx, l, c)
	case FederatedCredentials:
		return m.authenticateFederated(ctx, l, c)
	default:
		return nil, ErrInvalidCredentials
	}
}

func (m *Manager) authenticateLocal(ctx context.Context, l *slog.Logger, c LocalCredentials) (*Session, error) {
	user, err := m.userByEmail(ctx, c.Email)
	if err != nil {
		l.Warn("login_failed", "reason", "user_not_found")
		return nil, err
	}
	if user.IsFederated() || !hash.CheckPassword(user.PasswordHash, c.Password) {
		l.Warn("login_failed", "reason", "wrong_password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	t, err := m.Tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: t}, nil
}

func (m *Manager) authenticateToken(ctx context.Context, l *slog.Logger, c TokenCredentials) (*Session, error) {
	userID, err := m.Tokens.Verify(c.Token)
	if err != nil {
		l.Warn("token_rejected", "reason", "invalid_token")
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := m.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("token_rejected", "reason", "subject_not_found", "user_id", userID)
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &Session{User: &user, Token: c.Token}, nil
}

// authenticateFederated accepts the asserted profile, creating the account
// on first login. Federated accounts carry the sentinel password marker and
// are never password-loginable.
func (m *Manager) authenticateFederated(ctx context.Context, l *slog.Logger, c FederatedCredentials) (*Session, error) {
	email := normalizeEmail(c.Email)
	if email == "" {
		l.Warn("federated_rejected", "reason", "no_email_asserted")
		return nil, ErrInvalidCredentials
	}

	user, err := m.userByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		user = &models.User{
			Username:     c.GivenName,
			Email:        email,
			PasswordHash: models.FederatedPassword,
		}
		if cerr := m.DB.WithContext(ctx).Create(user).Error; cerr != nil {
			if !errors.Is(cerr, gorm.ErrDuplicatedKey) {
				return nil, cerr
			}
			// lost a race with a concurrent first login for the same email
			if user, err = m.userByEmail(ctx, email); err != nil {
				return nil, err
			}
		}
	} else if err != nil {
		return nil, err
	}

	t, err := m.Tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: t}, nil
}

// Register is a pre-authentication operation, not a strategy. It shares the
// hasher and the user table with the local strategy.
func (m *Manager) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	email = normalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_failed", "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	var existing models.User
	err = m.DB.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		l.Warn("register_failed", "reason", "email_taken")
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: pwHash,
	}
	if err := m.DB.WithContext(ctx).Create(&user).Error; err != nil {
		// a concurrent registration can slip past the check above; the
		// unique index on email is the real gate
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			l.Warn("register_failed", "reason", "email_taken")
			return nil, ErrUserExists
		}
		return nil, err
	}
	return &user, nil
}

func (m *Manager) userByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := m.DB.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
