// Package github implements the commit-history collaborator on top of the
// GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/circuitbreaker"
	"github.com/learnpro/kt-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

// Observer receives the outcome of every collection call.
type Observer interface {
	ObserveAdapter(adapter string, d time.Duration, err error)
}

// ClientConfig contains configuration for the GitHub client.
type ClientConfig struct {
	BaseURL string

	// Token is an optional personal access token.
	Token string

	// CommitDepth is how many of the author's latest commits are fetched.
	CommitDepth int

	Timeout time.Duration

	RateLimiterConfig RateLimiterConfig

	// OnBreakerStateChange is called on circuit breaker transitions.
	OnBreakerStateChange func(name string, from, to circuitbreaker.State)

	Observer Observer
	Logger   *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           DefaultBaseURL,
		CommitDepth:       10,
		Timeout:           15 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// ══════════════════════════════════════════════════════════════════════════════

type commitSummaryDTO struct {
	SHA string `json:"sha"`
}

type commitDetailDTO struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
	} `json:"commit"`
	Files []struct {
		Filename string `json:"filename"`
		Changes  int    `json:"changes"`
	} `json:"files"`
}

type apiErrorDTO struct {
	Message string `json:"message"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client fetches commit history. Every request waits for the rate limiter,
// is retried on transient failures and runs behind a circuit breaker.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
	logger      *slog.Logger
}

// NewClient creates a new GitHub client.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.CommitDepth <= 0 {
		config.CommitDepth = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker: circuitbreaker.GitHubBreaker(config.OnBreakerStateChange,
			circuitbreaker.WithIsFailure(func(err error) bool {
				return !shared.IsNotFound(err)
			}),
		),
		retrier: retry.GitHubRetrier(),
		logger:  config.Logger,
	}
}

// ResolveRepo checks that the repository exists and is visible.
func (c *Client) ResolveRepo(ctx context.Context, repoURL string) error {
	owner, repo, ok := knowledge.ParseRepoURL(repoURL)
	if !ok {
		return shared.ErrInvalidScope
	}
	return c.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), nil, nil)
}

// CollectMaterial fetches the latest commits authored by username in the
// repository and formats them as digest material.
func (c *Client) CollectMaterial(ctx context.Context, repoURL, username string) ([]string, error) {
	start := time.Now()
	commits, err := c.Commits(ctx, repoURL, username)
	if c.config.Observer != nil {
		c.config.Observer.ObserveAdapter("github", time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	material := FormatMaterial(FilterValuable(commits))
	c.logger.Debug("collected commit material",
		"repo", repoURL, "username", username,
		"commits", len(commits), "blocks", len(material))
	return material, nil
}

// Commits returns up to CommitDepth commits by username, newest first,
// with their file changes.
func (c *Client) Commits(ctx context.Context, repoURL, username string) ([]Commit, error) {
	owner, repo, ok := knowledge.ParseRepoURL(repoURL)
	if !ok {
		return nil, shared.ErrInvalidScope
	}

	q := url.Values{}
	q.Set("author", username)
	q.Set("per_page", strconv.Itoa(c.config.CommitDepth))

	var list []commitSummaryDTO
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/commits", owner, repo), q, &list); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	if len(list) > c.config.CommitDepth {
		list = list[:c.config.CommitDepth]
	}

	commits := make([]Commit, 0, len(list))
	for _, s := range list {
		var d commitDetailDTO
		if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/commits/%s", owner, repo, s.SHA), nil, &d); err != nil {
			return nil, fmt.Errorf("get commit %s: %w", s.SHA, err)
		}
		commit := Commit{SHA: d.SHA, Message: strings.TrimSpace(d.Commit.Message)}
		for _, f := range d.Files {
			commit.Files = append(commit.Files, FileChange{Filename: f.Filename, LinesChanged: f.Changes})
		}
		commits = append(commits, commit)
	}
	return commits, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.rateLimiter.Allow(ctx); err != nil {
				return retry.Permanent(err)
			}
			return c.doSingleRequest(ctx, path, query, result)
		})
	})
}

func (c *Client) doSingleRequest(ctx context.Context, path string, query url.Values, result any) error {
	fullURL := c.config.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return retry.Retryable(shared.WrapError("github", "Request", shared.ErrServiceUnavailable, "http request failed", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
		wait := retryAfter(resp.Header)
		c.rateLimiter.RecordRateLimitHit(wait)
		c.logger.Warn("github rate limit hit", "retry_after", wait)
		return retry.Retryable(shared.WrapError("github", "Request", shared.ErrRateLimited, "rate limited", nil))
	}

	if resp.StatusCode >= 400 {
		var apiErr apiErrorDTO
		_ = json.Unmarshal(body, &apiErr)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(shared.ErrGitHubRepoNotFound)
		case resp.StatusCode >= 500:
			return retry.Retryable(shared.WrapError("github", "Request", shared.ErrServiceUnavailable,
				fmt.Sprintf("status %d", resp.StatusCode), errors.New(apiErr.Message)))
		default:
			return retry.Permanent(shared.WrapError("github", "Request", shared.ErrExternalService,
				fmt.Sprintf("status %d: %s", resp.StatusCode, apiErr.Message), nil))
		}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}

// retryAfter reads Retry-After or X-RateLimit-Reset.
func retryAfter(h http.Header) time.Duration {
	if ra := h.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	if reset := h.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return time.Minute
}
