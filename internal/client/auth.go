package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ClientCredentialsProvider obtains and caches a bearer token via the
// OAuth2 client-credentials grant, refreshing it shortly before expiry.
// Interactive/device-code authentication is out of scope for this
// engine — a host that needs it supplies its own
// func(ctx) (string, error) instead.
type ClientCredentialsProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewClientCredentialsProvider builds a provider for one tenant's token
// endpoint, derived from tenantID the way Azure AD / Entra ID tenants
// expose theirs.
func NewClientCredentialsProvider(tenantID, clientID, clientSecret, scope string) *ClientCredentialsProvider {
	return &ClientCredentialsProvider{
		tokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a cached token when it has more than 60 seconds left,
// otherwise fetches a fresh one.
func (p *ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Until(p.expires) > 60*time.Second {
		return p.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"scope":         {p.scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}

	p.token = tr.AccessToken
	p.expires = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return p.token, nil
}
