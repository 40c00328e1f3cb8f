// Package quality checks whether repositories are registered on the code-quality platform.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	custom_errors "repo-catalog-sync/internal/errors"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://sonarcloud.io"

const (
	searchPath     = "/api/projects/search"
	requestTimeout = 10 * time.Second
	sourceName     = "quality platform"
)

// Client queries the project search API. Without a token every lookup reports false
// and no request is made.
type Client struct {
	baseURL      string
	token        string
	organization string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a quality-platform client.
func NewClient(baseURL, token, organization string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		organization: organization,
		httpClient:   &http.Client{Timeout: requestTimeout},
		logger:       logger,
	}
}

// Enabled reports whether credentials are configured.
func (c *Client) Enabled() bool {
	return c.token != ""
}

type searchResponse struct {
	Components []struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"components"`
}

// ProjectExists reports whether a project whose key or name equals name is registered.
func (c *Client) ProjectExists(ctx context.Context, name string) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	q := url.Values{"q": {name}}
	if c.organization != "" {
		q.Set("organization", c.organization)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+searchPath+"?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	req.SetBasicAuth(c.token, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("quality platform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return false, &custom_errors.RemoteError{Source: sourceName, Status: resp.StatusCode, Body: string(body)}
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode project search: %w", err)
	}

	for _, component := range result.Components {
		if component.Key == name || component.Name == name {
			return true, nil
		}
	}

	c.logger.Debug("Project not registered on quality platform", "repo", name)
	return false, nil
}
