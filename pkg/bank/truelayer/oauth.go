package truelayer

import (
	"strings"

	"golang.org/x/oauth2"
)

// DefaultAuthURL is the TrueLayer authorization server.
const DefaultAuthURL = "https://auth.truelayer.com"

// Scopes requested when connecting a bank.
var Scopes = []string{"info", "accounts", "balance", "cards", "transactions", "offline_access"}

// OAuthConfig builds the oauth2 configuration used to connect banks and refresh their tokens.
func OAuthConfig(clientID, clientSecret, authURL, redirectURL string) *oauth2.Config {
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	authURL = strings.TrimRight(authURL, "/")
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL + "/",
			TokenURL:  authURL + "/connect/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthOptions selects which banks the consent page offers.
func AuthOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("providers", "uk-ob-all uk-oauth-all"),
	}
}
