package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if r.Method != http.MethodPost || !ok || user != "client" || pass != "secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestToken_ReturnsAccessToken(t *testing.T) {
	s := tokenServer(t, http.StatusOK, `{"access_token": "abc123"}`)

	p := NewTokenProvider("client", "secret", s.URL, nil)
	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)
}

func TestToken_ThroughRetryingTransport(t *testing.T) {
	s := tokenServer(t, http.StatusOK, `{"access_token": "xyz", "token_type": "Bearer", "expires_in": 300}`)

	hc := NewHTTPClient(0, 0, zerolog.Nop()).StandardClient()
	tok, err := NewTokenProvider("client", "secret", s.URL, hc).Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)
}

func TestToken_WrongCredentialsIsHTTPError(t *testing.T) {
	s := tokenServer(t, http.StatusOK, `{"access_token": "abc123"}`)

	_, err := NewTokenProvider("client", "wrong", s.URL, nil).Token(context.Background())
	require.Error(t, err)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr), "got %T: %v", err, err)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, http.MethodPost, httpErr.Method)
	assert.Contains(t, httpErr.Body, "bad credentials")
}

func TestToken_ServerErrorIsHTTPError(t *testing.T) {
	s := tokenServer(t, http.StatusServiceUnavailable, `{"error":"down"}`)

	hc := NewHTTPClient(0, 0, zerolog.Nop()).StandardClient()
	_, err := NewTokenProvider("client", "secret", s.URL, hc).Token(context.Background())
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr), "got %T: %v", err, err)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

func TestToken_MissingAccessToken(t *testing.T) {
	s := tokenServer(t, http.StatusOK, `{"token_type": "Bearer"}`)

	_, err := NewTokenProvider("client", "secret", s.URL, nil).Token(context.Background())
	require.Error(t, err)
	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}
