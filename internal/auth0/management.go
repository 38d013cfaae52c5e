// Package auth0 is a client for the parts of the Auth0 Management API
// the application uses: role assignment and user deletion. Identity
// lifecycle flows the other way, via the webhook receiver.
package auth0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
)

// RoleManager is the surface the admin handlers depend on.
type RoleManager interface {
	ListRoles(ctx context.Context) ([]Role, error)
	SetUserRoles(ctx context.Context, auth0UserID string, roleIDs []string) error
	RemoveUserRoles(ctx context.Context, auth0UserID string, roleIDs []string) error
}

type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Management calls the tenant's /api/v2 endpoints with a cached
// machine-to-machine token.
type Management struct {
	baseURL string
	tokens  *TokenCache
	http    *retryablehttp.Client
}

func NewManagement(issuerURL string, tokens *TokenCache) *Management {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.Logger = nil

	return &Management{
		baseURL: issuerURL + "api/v2",
		tokens:  tokens,
		http:    httpClient,
	}
}

func (m *Management) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := m.do(ctx, http.MethodGet, "/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (m *Management) SetUserRoles(ctx context.Context, auth0UserID string, roleIDs []string) error {
	body := map[string][]string{"roles": roleIDs}
	path := "/users/" + url.PathEscape(auth0UserID) + "/roles"
	return m.do(ctx, http.MethodPost, path, body, nil)
}

func (m *Management) RemoveUserRoles(ctx context.Context, auth0UserID string, roleIDs []string) error {
	body := map[string][]string{"roles": roleIDs}
	path := "/users/" + url.PathEscape(auth0UserID) + "/roles"
	return m.do(ctx, http.MethodDelete, path, body, nil)
}

// DeleteUser removes the identity from the tenant. Used by admin-driven
// account removal; the subsequent user.deleted webhook cleans up the
// local record.
func (m *Management) DeleteUser(ctx context.Context, auth0UserID string) error {
	return m.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(auth0UserID), nil, nil)
}

func (m *Management) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := m.tokens.Get(ctx)
	if err != nil {
		return err
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, m.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("management api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("management api %s %s returned %d: %s", method, path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
