// Package oauth handles the Google login flow: consent redirect, code
// exchange, and ID-token verification.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"

	"gopherchat/internal/config"
)

var (
	ErrNotConfigured   = errors.New("google oauth is not configured")
	ErrUnverifiedEmail = errors.New("google account email is not verified")
)

const ProviderGoogle = "google"

// Identity is the verified subset of the Google ID-token claims the
// application cares about.
type Identity struct {
	Provider  string
	Subject   string
	Email     string
	Name      string
	AvatarURL string
}

type GoogleProvider struct {
	oauth    oauth2.Config
	clientID string
}

func NewGoogleProvider(cfg config.OAuthConfig) *GoogleProvider {
	return &GoogleProvider{
		oauth: oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		clientID: cfg.GoogleClientID,
	}
}

func (p *GoogleProvider) Configured() bool {
	return strings.TrimSpace(p.clientID) != "" && strings.TrimSpace(p.oauth.ClientSecret) != ""
}

// AuthURL returns the consent-screen URL for the redirect endpoint.
func (p *GoogleProvider) AuthURL(state string) (string, error) {
	if !p.Configured() {
		return "", ErrNotConfigured
	}
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange trades the callback code for tokens and verifies the embedded
// ID token.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	if !p.Configured() {
		return Identity{}, ErrNotConfigured
	}

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange oauth code failed: %w", err)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if strings.TrimSpace(rawIDToken) == "" {
		return Identity{}, errors.New("oauth token response missing id_token")
	}
	return p.VerifyIDToken(ctx, rawIDToken)
}

// VerifyIDToken validates a Google ID token and extracts the identity.
// Used both by the callback flow and by clients that obtain the token
// themselves (e.g. Google Sign-In in the browser).
func (p *GoogleProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (Identity, error) {
	if strings.TrimSpace(rawIDToken) == "" {
		return Identity{}, errors.New("id token is required")
	}

	payload, err := idtoken.Validate(ctx, rawIDToken, p.clientID)
	if err != nil {
		return Identity{}, fmt.Errorf("validate id token failed: %w", err)
	}

	email, _ := payload.Claims["email"].(string)
	if strings.TrimSpace(email) == "" {
		return Identity{}, errors.New("google token missing email claim")
	}
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	if !emailVerified {
		return Identity{}, ErrUnverifiedEmail
	}

	name, _ := payload.Claims["name"].(string)
	picture, _ := payload.Claims["picture"].(string)

	return Identity{
		Provider:  ProviderGoogle,
		Subject:   payload.Subject,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Name:      strings.TrimSpace(name),
		AvatarURL: strings.TrimSpace(picture),
	}, nil
}
