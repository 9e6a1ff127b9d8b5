package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const DefaultScope = "https://management.core.windows.net/.default"

// ClientCredentialsSource runs the OAuth2 client credentials grant against TokenURL.
type ClientCredentialsSource struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// HTTPClient is used for the token endpoint when set.
	HTTPClient *http.Client
}

func (s *ClientCredentialsSource) FetchToken(ctx context.Context) (Credential, error) {
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}
	conf := clientcredentials.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURL:     s.TokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}

	tok, err := conf.Token(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("error in clientcredentials Token: %w", err)
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		// Endpoint did not send expires_in, fall back to the token itself
		expiresAt, err = ExpiryFromToken(tok.AccessToken)
		if err != nil {
			return Credential{}, fmt.Errorf("error in ExpiryFromToken: %w", err)
		}
	}
	return Credential{Token: tok.AccessToken, ExpiresAt: expiresAt}, nil
}

// StaticSource hands out a fixed token, for development against a portal with a token
// obtained out of band.
type StaticSource struct {
	Token string
}

func (s *StaticSource) FetchToken(ctx context.Context) (Credential, error) {
	tok := strings.TrimSpace(s.Token)
	if tok == "" {
		return Credential{}, fmt.Errorf("no static token configured")
	}
	expiresAt, err := ExpiryFromToken(tok)
	if err != nil {
		// Opaque token, assume it is good for an hour
		expiresAt = time.Now().Add(time.Hour)
	}
	return Credential{Token: tok, ExpiresAt: expiresAt}, nil
}
