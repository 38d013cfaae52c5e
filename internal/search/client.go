// Package search is a thin REST client for the Azure Cognitive Search
// indexer API. There is no official Go SDK for the service, so the two
// calls the reindex pipeline needs are done directly.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

const apiVersion = "2023-11-01"

// IndexerClient triggers indexer runs. The reindex runner depends on this
// interface so tests can substitute a fake.
type IndexerClient interface {
	RunIndexer(ctx context.Context, name string) error
}

// Client talks to one search service with api-key auth.
type Client struct {
	endpoint string
	apiKey   string
	http     *retryablehttp.Client
}

func NewClient(endpoint, apiKey string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.Logger = nil

	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     httpClient,
	}
}

// RunIndexer starts a run of the named indexer. The service returns 202
// when the run is accepted; the run itself completes asynchronously.
func (c *Client) RunIndexer(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/indexers/%s/run?api-version=%s", c.endpoint, name, apiVersion)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("building indexer run request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("running indexer %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("indexer %s run returned %d: %s", name, resp.StatusCode, body)
	}
	return nil
}

// IndexerStatus is the subset of the status document operators care about.
type IndexerStatus struct {
	Name       string
	Status     string
	LastResult string
}

// GetIndexerStatus fetches the current status of the named indexer.
func (c *Client) GetIndexerStatus(ctx context.Context, name string) (*IndexerStatus, error) {
	url := fmt.Sprintf("%s/indexers/%s/status?api-version=%s", c.endpoint, name, apiVersion)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building indexer status request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching indexer %s status: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("indexer %s status returned %d: %s", name, resp.StatusCode, body)
	}

	var payload struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		LastResult struct {
			Status string `json:"status"`
		} `json:"lastResult"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding indexer status: %w", err)
	}

	return &IndexerStatus{
		Name:       payload.Name,
		Status:     payload.Status,
		LastResult: payload.LastResult.Status,
	}, nil
}
