package auth0

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// expiryMargin is subtracted from the vendor-reported token lifetime so a
// token is never used right at its expiry edge.
const expiryMargin = 5 * time.Minute

// TokenSource fetches a fresh Management API token and its expiry.
type TokenSource interface {
	Fetch(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// ClientCredentialsSource fetches tokens with the OAuth2 client
// credentials grant against the tenant's /oauth/token endpoint.
type ClientCredentialsSource struct {
	cfg clientcredentials.Config
}

func NewClientCredentialsSource(issuerURL, clientID, clientSecret string) *ClientCredentialsSource {
	return &ClientCredentialsSource{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     issuerURL + "oauth/token",
			EndpointParams: url.Values{
				"audience": {issuerURL + "api/v2/"},
			},
		},
	}
}

func (s *ClientCredentialsSource) Fetch(ctx context.Context) (string, time.Time, error) {
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("fetching management token: %w", err)
	}
	return tok.AccessToken, tok.Expiry, nil
}

// TokenCache holds a single cached Management API token and refreshes it
// once the cached copy is within the expiry margin. Concurrent callers
// during a cold start may each fetch a token; the last write wins, which
// is harmless.
type TokenCache struct {
	source TokenSource
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewTokenCache(source TokenSource) *TokenCache {
	return &TokenCache{source: source, now: time.Now}
}

// Get returns the cached token, refreshing it when absent or stale.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	token, expiresAt, err := c.source.Fetch(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expires = expiresAt.Add(-expiryMargin)
	return token, nil
}
