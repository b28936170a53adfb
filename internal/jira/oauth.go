// Package jira talks to Jira Cloud over its OAuth 2.0 (3LO) REST API:
// authorization, connection polling, project and issue-type listing, and
// bulk issue creation.
package jira

import (
	"golang.org/x/oauth2"
)

// Atlassian 3LO endpoints.
const (
	authURL  = "https://auth.atlassian.com/authorize"
	tokenURL = "https://auth.atlassian.com/oauth/token"
)

// OAuthConfig holds the app credentials for the 3LO flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewOAuth builds the oauth2 configuration for Jira Cloud. The
// offline_access scope is required to receive a refresh token.
func NewOAuth(cfg OAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"read:jira-work", "write:jira-work", "read:jira-user", "offline_access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}
}

// AuthCodeURL issues the browser URL for the consent screen. Atlassian
// requires the audience and prompt parameters on top of the standard
// authorization-code ones.
func AuthCodeURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}
