package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.github.com"
	userAgent      = "cookiewatch/1.0"
	acceptHeader   = "application/vnd.github+json"
)

// User is the author of an issue, comment, or pull request.
type User struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// Issue represents a GitHub issue from the REST API. The issues endpoint
// also returns pull requests; those carry a non-nil PullRequest marker.
type Issue struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	HTMLURL     string    `json:"html_url"`
	User        User      `json:"user"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Comment represents a comment on a GitHub issue.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      User      `json:"user"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

// PullRequest represents a pull request from the REST API.
type PullRequest struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	User      User      `json:"user"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

// RateLimit holds the current rate limit status from the GitHub API.
type RateLimit struct {
	Remaining int
	Reset     time.Time
}

// Client defines the read-only interface against the GitHub REST API that
// the scanner needs.
type Client interface {
	// ListOpenIssues returns all open issues for a repository. Pull
	// requests returned by the issues endpoint are filtered out.
	ListOpenIssues(ctx context.Context, owner, repo string) ([]*Issue, error)

	// ListIssueComments returns all comments on an issue, oldest first.
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*Comment, error)

	// ListPullRequests returns pull requests in all states (open, closed,
	// merged) for a repository.
	ListPullRequests(ctx context.Context, owner, repo string) ([]*PullRequest, error)

	GetRateLimit() RateLimit
}

// clientImpl is the concrete implementation of Client.
type clientImpl struct {
	httpClient *http.Client
	baseURL    string

	mu        sync.RWMutex
	rateLimit RateLimit
}

// NewClient creates a GitHub API client. When token is non-empty, requests
// are authenticated via an oauth2 static token transport; an empty token
// yields an unauthenticated client with GitHub's lower rate limits.
func NewClient(token string) Client {
	return newClientWithBaseURL(token, defaultBaseURL)
}

// NewClientWithBaseURL creates a client against a non-default API base URL,
// e.g. a GitHub Enterprise instance or a mock server.
func NewClientWithBaseURL(token, baseURL string) Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return newClientWithBaseURL(token, baseURL)
}

func newClientWithBaseURL(token, baseURL string) *clientImpl {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), src)
		httpClient.Timeout = 30 * time.Second
	}
	return &clientImpl{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

func (c *clientImpl) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// retryableStatus reports whether a response status is worth retrying.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// do sends the request with exponential backoff on transient failures
// (network errors, 429, 5xx). All requests are GETs, so resending is safe.
func (c *clientImpl) do(req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 20 * time.Second

	var resp *http.Response
	op := func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if retryableStatus(resp.StatusCode) {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("transient status %d", resp.StatusCode)
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 3), req.Context()))
	if err != nil {
		return nil, err
	}
	c.updateRateLimit(resp)
	return resp, nil
}

func (c *clientImpl) updateRateLimit(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if remaining, err := strconv.Atoi(v); err == nil {
			c.rateLimit.Remaining = remaining
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.rateLimit.Reset = time.Unix(ts, 0)
		}
	}
}

// GetRateLimit returns the most recently observed rate limit status.
func (c *clientImpl) GetRateLimit() RateLimit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateLimit
}

// linkNextRe matches Link header entries with rel="next".
var linkNextRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// parseLinkNext extracts the "next" URL from a Link header value.
func parseLinkNext(linkHeader string) string {
	matches := linkNextRe.FindStringSubmatch(linkHeader)
	if len(matches) >= 2 {
		return matches[1]
	}
	return ""
}

// getPaged fetches url and all its pagination successors, decoding each page
// into a fresh slice element via decode.
func (c *clientImpl) getPaged(ctx context.Context, url, what string, decode func(io.Reader) error) error {
	for url != "" {
		req, err := c.newRequest(ctx, url)
		if err != nil {
			return err
		}

		resp, err := c.do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("%s: unexpected status %d: %s", what, resp.StatusCode, string(body))
		}

		if err := decode(resp.Body); err != nil {
			resp.Body.Close()
			return fmt.Errorf("%s: decode response: %w", what, err)
		}
		resp.Body.Close()

		url = parseLinkNext(resp.Header.Get("Link"))
	}
	return nil
}

func (c *clientImpl) ListOpenIssues(ctx context.Context, owner, repo string) ([]*Issue, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues?state=open&per_page=100", c.baseURL, owner, repo)

	var all []*Issue
	err := c.getPaged(ctx, url, "list issues", func(r io.Reader) error {
		var page []*Issue
		if err := json.NewDecoder(r).Decode(&page); err != nil {
			return err
		}
		for _, issue := range page {
			// The issues endpoint mixes in pull requests.
			if issue.PullRequest == nil {
				all = append(all, issue)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func (c *clientImpl) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*Comment, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?per_page=100", c.baseURL, owner, repo, number)

	var all []*Comment
	err := c.getPaged(ctx, url, "list comments", func(r io.Reader) error {
		var page []*Comment
		if err := json.NewDecoder(r).Decode(&page); err != nil {
			return err
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func (c *clientImpl) ListPullRequests(ctx context.Context, owner, repo string) ([]*PullRequest, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls?state=all&per_page=100", c.baseURL, owner, repo)

	var all []*PullRequest
	err := c.getPaged(ctx, url, "list pull requests", func(r io.Reader) error {
		var page []*PullRequest
		if err := json.NewDecoder(r).Decode(&page); err != nil {
			return err
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
