// Package catalog reads the set of repositories registered in the service catalog.
package catalog

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

	"golang.org/x/oauth2"

	custom_errors "repo-catalog-sync/internal/errors"
)

const (
	locationsPath  = "/api/catalog/locations"
	requestTimeout = 10 * time.Second
	sourceName     = "catalog"
)

// Client talks to the catalog's locations API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a catalog client. An empty baseURL leaves the integration switched
// off; calls then return a ConfigurationError.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: requestTimeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = requestTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type location struct {
	Data struct {
		Target string `json:"target"`
	} `json:"data"`
}

// ListActiveRepositoryNames returns the repository names registered in the catalog,
// deduplicated in first-seen order.
func (c *Client) ListActiveRepositoryNames(ctx context.Context) ([]string, error) {
	if c.baseURL == "" {
		return nil, &custom_errors.ConfigurationError{Integration: sourceName, Setting: "CATALOG_URL"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+locationsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &custom_errors.RemoteError{Source: sourceName, Status: resp.StatusCode, Body: string(body)}
	}

	var locations []location
	if err := json.NewDecoder(resp.Body).Decode(&locations); err != nil {
		return nil, fmt.Errorf("decode catalog locations: %w", err)
	}

	seen := make(map[string]struct{}, len(locations))
	names := make([]string, 0, len(locations))
	for _, loc := range locations {
		name, ok := repositoryFromTarget(loc.Data.Target)
		if !ok {
			c.logger.Debug("Skipping catalog location without repository", "target", loc.Data.Target)
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	c.logger.Debug("Fetched catalog repositories", "count", len(names))
	return names, nil
}

// repositoryFromTarget extracts "repo" from targets like
// https://github.com/org/repo/blob/main/catalog-info.yaml.
func repositoryFromTarget(target string) (string, bool) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[1] == "" {
		return "", false
	}
	return strings.TrimSuffix(segments[1], ".git"), true
}
