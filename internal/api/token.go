package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider exchanges client credentials for a bearer token.
type TokenProvider struct {
	cfg  clientcredentials.Config
	http *http.Client
}

// NewTokenProvider builds a provider that posts grant_type=client_credentials to tokenURL
// with the credentials in an HTTP Basic authorization header.
func NewTokenProvider(clientID, clientSecret, tokenURL string, httpClient *http.Client) *TokenProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenProvider{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		http: httpClient,
	}
}

// Token performs one client-credentials grant and returns the access token.
// Tokens are neither cached nor renewed.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	start := time.Now()
	tok, err := p.cfg.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			observe("token", re.Response.StatusCode, start)
			return "", &HTTPError{
				Method:     http.MethodPost,
				URL:        p.cfg.TokenURL,
				StatusCode: re.Response.StatusCode,
				Status:     re.Response.Status,
				Body:       string(re.Body),
			}
		}
		observe("token", 0, start)
		return "", fmt.Errorf("token %s: %w", p.cfg.TokenURL, err)
	}
	observe("token", http.StatusOK, start)
	return tok.AccessToken, nil
}
