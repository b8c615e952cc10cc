package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var ErrUnverifiedEmail = errors.New("google account email is not verified")

// GoogleProfile is the subset of the userinfo response used for sign-in.
type GoogleProfile struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// GoogleOAuth runs the authorization code flow with PKCE against Google.
type GoogleOAuth struct {
	cfg         *oauth2.Config
	userInfoURL string
}

func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *GoogleOAuth {
	return newGoogleOAuth(clientID, clientSecret, redirectURL, google.Endpoint, googleUserInfoURL)
}

func newGoogleOAuth(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint, userInfoURL string) *GoogleOAuth {
	return &GoogleOAuth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

// NewVerifier returns a fresh PKCE code verifier.
func (g *GoogleOAuth) NewVerifier() string {
	return oauth2.GenerateVerifier()
}

func (g *GoogleOAuth) AuthCodeURL(state, verifier string) string {
	return g.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Profile exchanges code for a token and loads the account's profile.
// Accounts without a verified email are rejected.
func (g *GoogleOAuth) Profile(ctx context.Context, code, verifier string) (*GoogleProfile, error) {
	tok, err := g.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo: status %d", resp.StatusCode)
	}

	var p GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	p.Email = strings.TrimSpace(p.Email)
	if p.Email == "" || !p.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}
	return &p, nil
}
