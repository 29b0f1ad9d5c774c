package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/vmaximov/sellhub/internal/config"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProvider drives the federated redirect flow. The callback yields
// FederatedCredentials to feed into Manager.Authenticate.
type GoogleProvider struct {
	oauthConfig *oauth2.Config
}

func NewGoogleProvider(cfg *config.Config) *GoogleProvider {
	return &GoogleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GOOGLE_CLIENT_ID,
			ClientSecret: cfg.GOOGLE_CLIENT_SECRET,
			RedirectURL:  cfg.GOOGLE_CALLBACK_URL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
	}
}

// NewState generates the anti-CSRF state value carried in the oauthstate
// cookie across the redirect.
func (g *GoogleProvider) NewState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

func (g *GoogleProvider) AuthURL(state string) string {
	return g.oauthConfig.AuthCodeURL(state)
}

// Exchange trades the callback code for the asserted profile. Any transport
// error fails closed; there is no retry of authentication attempts.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*FederatedCredentials, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tok, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: code exchange failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL+"?access_token="+tok.AccessToken, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: failed getting user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google: failed reading user info: %w", err)
	}

	var info struct {
		Email     string `json:"email"`
		GivenName string `json:"given_name"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("google: cannot parse user info: %w", err)
	}

	name := info.GivenName
	if name == "" {
		name = info.Name
	}
	return &FederatedCredentials{Email: info.Email, GivenName: name}, nil
}
