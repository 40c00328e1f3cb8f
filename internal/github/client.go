package github

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"repo-catalog-sync/internal/cache"
	custom_errors "repo-catalog-sync/internal/errors"
)

const (
	perPage        = 100
	requestTimeout = 30 * time.Second
	sourceName     = "github"
)

// Options configures the source-host client.
type Options struct {
	Token        string
	Organization string
	// BaseURL points the client at a GitHub Enterprise instance. Empty means github.com.
	BaseURL string
}

// Client is a wrapper around the go-github client scoped to one organization.
// Every lookup goes through the response cache owned by the client.
type Client struct {
	gh     *github.Client
	org    string
	cache  *cache.Cache
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(opts Options, c *cache.Cache, logger *slog.Logger) (*Client, error) {
	base := http.DefaultTransport
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: opts.Token},
		)
		base = oauth2.NewClient(context.Background(), ts).Transport
	}

	httpClient := &http.Client{
		Timeout:   requestTimeout,
		Transport: newRetryTransport(base, logger),
	}

	gh := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	return newClient(gh, opts.Organization, c, logger), nil
}

func newClient(gh *github.Client, org string, c *cache.Cache, logger *slog.Logger) *Client {
	return &Client{
		gh:     gh,
		org:    org,
		cache:  c,
		logger: logger,
	}
}

// Organization returns the organization every call is scoped to.
func (c *Client) Organization() string {
	return c.org
}

// ListRepositoryNames returns the names of all repositories in the organization.
// It handles API pagination transparently.
func (c *Client) ListRepositoryNames(ctx context.Context) ([]string, error) {
	return cached(c, cache.General, cache.Key("repositories", c.org), func() ([]string, error) {
		var names []string

		opts := &github.RepositoryListByOrgOptions{
			ListOptions: github.ListOptions{PerPage: perPage},
		}

		for {
			c.logger.Debug("Fetching repositories page", "org", c.org, "page", opts.Page)

			repos, resp, err := c.gh.Repositories.ListByOrg(ctx, c.org, opts)
			if err != nil {
				return nil, toRemoteError(err)
			}

			for _, r := range repos {
				names = append(names, r.GetName())
			}

			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}

		return names, nil
	})
}

// ListContributors returns contributor logins. A missing or empty repository yields an
// empty list.
func (c *Client) ListContributors(ctx context.Context, name string) ([]string, error) {
	return cached(c, cache.General, cache.Key("contributors", name), func() ([]string, error) {
		logins := []string{}

		opts := &github.ListContributorsOptions{
			ListOptions: github.ListOptions{PerPage: perPage},
		}

		for {
			contributors, resp, err := c.gh.Repositories.ListContributors(ctx, c.org, name, opts)
			if isNotFound(err) {
				return []string{}, nil
			}
			if err != nil {
				return nil, toRemoteError(err)
			}

			for _, contributor := range contributors {
				logins = append(logins, contributor.GetLogin())
			}

			if resp == nil || resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}

		return logins, nil
	})
}

// HasRanCI reports whether the repository has at least one workflow run.
func (c *Client) HasRanCI(ctx context.Context, name string) (bool, error) {
	return cached(c, cache.General, cache.Key("ci-runs", name), func() (bool, error) {
		runs, _, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, c.org, name, &github.ListWorkflowRunsOptions{
			ListOptions: github.ListOptions{PerPage: 1},
		})
		if err != nil {
			return false, toRemoteError(err)
		}
		return runs.GetTotalCount() > 0, nil
	})
}

type fileContent struct {
	content string
	found   bool
}

// GetFileContent returns the decoded content of a file in the default branch. found is
// false when the file does not exist.
func (c *Client) GetFileContent(ctx context.Context, name, path string) (content string, found bool, err error) {
	fc, err := cached(c, cache.Files, cache.Key("file", name, path), func() (fileContent, error) {
		file, _, _, err := c.gh.Repositories.GetContents(ctx, c.org, name, path, nil)
		if isNotFound(err) {
			return fileContent{}, nil
		}
		if err != nil {
			return fileContent{}, toRemoteError(err)
		}
		if file == nil {
			// path is a directory
			return fileContent{}, nil
		}

		decoded, err := file.GetContent()
		if err != nil {
			return fileContent{}, err
		}
		return fileContent{content: decoded, found: true}, nil
	})
	if err != nil {
		return "", false, err
	}
	return fc.content, fc.found, nil
}

// CodeSearchCount returns the number of code search hits for query.
func (c *Client) CodeSearchCount(ctx context.Context, query string) (int, error) {
	return cached(c, cache.General, cache.Key("code-search", query), func() (int, error) {
		result, _, err := c.gh.Search.Code(ctx, query, &github.SearchOptions{
			ListOptions: github.ListOptions{PerPage: 1},
		})
		if err != nil {
			return 0, toRemoteError(err)
		}
		return result.GetTotal(), nil
	})
}

// Rate is one rate-limit bucket.
type Rate struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// RateLimits reports the current core and search quotas. Never cached.
type RateLimits struct {
	Core   Rate `json:"core"`
	Search Rate `json:"search"`
}

// RateLimit fetches the current rate limits for the authenticated token.
func (c *Client) RateLimit(ctx context.Context) (*RateLimits, error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return nil, toRemoteError(err)
	}
	return &RateLimits{
		Core:   toRate(limits.GetCore()),
		Search: toRate(limits.GetSearch()),
	}, nil
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cache.Clear()
	c.logger.Info("Response cache cleared")
}

// CacheStats reports the response cache contents.
func (c *Client) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// cached returns the value stored under key or calls fetch and stores its result.
// Errors are never cached.
func cached[T any](c *Client, ns cache.Namespace, key string, fetch func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(ns, key); ok {
		if typed, ok := v.(T); ok {
			c.logger.Debug("Cache hit", "key", key)
			return typed, nil
		}
	}

	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	c.cache.Set(ns, key, v)
	return v, nil
}

func toRate(r *github.Rate) Rate {
	if r == nil {
		return Rate{}
	}
	return Rate{
		Limit:     r.Limit,
		Remaining: r.Remaining,
		Reset:     r.Reset.Time,
	}
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// toRemoteError translates go-github errors into RemoteError, keeping the original as cause.
func toRemoteError(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return &custom_errors.RemoteError{Source: sourceName, Status: rateErr.Response.StatusCode, Body: rateErr.Message, Err: err}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.Response != nil {
		return &custom_errors.RemoteError{Source: sourceName, Status: abuseErr.Response.StatusCode, Body: abuseErr.Message, Err: err}
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return &custom_errors.RemoteError{Source: sourceName, Status: ghErr.Response.StatusCode, Body: ghErr.Message, Err: err}
	}

	return err
}
