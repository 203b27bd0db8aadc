package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/model"
	"github.com/jmaddaus/cookiewatch/internal/query"
)

// Client is an HTTP client wrapper for communicating with the daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new Client targeting the given daemon host.
func NewClient(host string) *Client {
	return &Client{
		baseURL: host,
		http: &http.Client{
			// Scans hit the GitHub API and can run long.
			Timeout: 3 * time.Minute,
		},
	}
}

// Do executes an HTTP request to the daemon and returns the response.
// If body is non-nil it is JSON-encoded.
func (c *Client) Do(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "connection refused") {
			return nil, fmt.Errorf("daemon not running at %s; start with: cw daemon start", c.baseURL)
		}
		return nil, fmt.Errorf("request failed (is the daemon running?): %w", err)
	}
	return resp, nil
}

// decodeOrError reads the response body. If the status is not in the 2xx range
// it tries to parse an error message from the JSON body.
func decodeOrError(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, string(data))
	}

	if v != nil {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CommandResult mirrors the daemon's command response envelope.
type CommandResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Scan    *ScanSummary  `json:"scan,omitempty"`
	Sweep   *SweepSummary `json:"sweep,omitempty"`
	Nudges  *NudgeSummary `json:"nudges,omitempty"`
	Claim   *model.Claim  `json:"claim,omitempty"`
}

// ScanSummary reports the outcome of one repository scan.
type ScanSummary struct {
	Repository    *model.Repository `json:"repository"`
	IssuesScanned int               `json:"issues_scanned"`
	Detected      int               `json:"detected"`
	Updated       int               `json:"updated"`
	Skipped       int               `json:"skipped"`
}

// SweepSummary reports the outcome of a stale-claim sweep.
type SweepSummary struct {
	Checked  int `json:"checked"`
	Released int `json:"released"`
	Spared   int `json:"spared"`
	Failed   int `json:"failed"`
}

// NudgeSummary reports the outcome of a bulk nudge run.
type NudgeSummary struct {
	Eligible int `json:"eligible"`
	Nudged   int `json:"nudged"`
	Failed   int `json:"failed"`
}

// Health pings the daemon health endpoint.
func (c *Client) Health() (map[string]interface{}, error) {
	resp, err := c.Do("GET", "/health", nil)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := decodeOrError(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Scan triggers a scan of the given owner/name repository.
func (c *Client) Scan(repo string) (*CommandResult, error) {
	return c.command("POST", "/scan", map[string]string{"repo": repo})
}

// Sweep releases all claims past their grace period.
func (c *Client) Sweep() (*CommandResult, error) {
	return c.command("POST", "/sweep", nil)
}

// NudgeAll nudges every eligible claim.
func (c *Client) NudgeAll() (*CommandResult, error) {
	return c.command("POST", "/nudges", nil)
}

// Nudge nudges a single claim.
func (c *Client) Nudge(id int) (*CommandResult, error) {
	return c.command("POST", fmt.Sprintf("/claims/%d/nudge", id), nil)
}

// Release manually releases a claim, with an optional reason.
func (c *Client) Release(id int, reason string) (*CommandResult, error) {
	var body interface{}
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	return c.command("POST", fmt.Sprintf("/claims/%d/release", id), body)
}

// Complete marks a claim as completed.
func (c *Client) Complete(id int) (*CommandResult, error) {
	return c.command("POST", fmt.Sprintf("/claims/%d/complete", id), nil)
}

func (c *Client) command(method, path string, body interface{}) (*CommandResult, error) {
	resp, err := c.Do(method, path, body)
	if err != nil {
		return nil, err
	}
	var result CommandResult
	if err := decodeOrError(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClaimOpts holds query parameters for listing claims.
type ClaimOpts struct {
	Repo    string
	Status  string
	Claimer string
}

// Claims lists claims, filtered by opts.
func (c *Client) Claims(opts ClaimOpts) (*query.ClaimSet, error) {
	params := url.Values{}
	if opts.Repo != "" {
		params.Set("repo", opts.Repo)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Claimer != "" {
		params.Set("claimer", opts.Claimer)
	}

	path := "/claims"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var set query.ClaimSet
	if err := c.get(path, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// ClaimDetail is one claim with its audit trail.
type ClaimDetail struct {
	Claim    *model.Claim      `json:"claim"`
	Activity []*model.Activity `json:"activity"`
}

// Claim retrieves a single claim with its history.
func (c *Client) Claim(id int) (*ClaimDetail, error) {
	var detail ClaimDetail
	if err := c.get(fmt.Sprintf("/claims/%d", id), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Nudgeable lists claims inside the nudge window.
func (c *Client) Nudgeable() (*query.ClaimSet, error) {
	var set query.ClaimSet
	if err := c.get("/nudgeable", &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// Stale lists claims past their auto-release deadline.
func (c *Client) Stale() (*query.ClaimSet, error) {
	var set query.ClaimSet
	if err := c.get("/stale", &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// Board returns the full reliability board.
func (c *Client) Board() (*query.BoardSet, error) {
	var set query.BoardSet
	if err := c.get("/board", &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// TopPerformers returns the best contributors.
func (c *Client) TopPerformers() (*query.BoardSet, error) {
	var set query.BoardSet
	if err := c.get("/board/top", &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// WorstOffenders returns the most unreliable contributors.
func (c *Client) WorstOffenders() (*query.BoardSet, error) {
	var set query.BoardSet
	if err := c.get("/board/worst", &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// Repos lists tracked repositories.
func (c *Client) Repos() (*query.RepositorySet, error) {
	var set query.RepositorySet
	if err := c.get("/repos", &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// Activity returns recent audit entries. limit <= 0 uses the daemon default.
func (c *Client) Activity(limit int) (*query.ActivitySet, error) {
	path := "/activity"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var set query.ActivitySet
	if err := c.get(path, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *Client) get(path string, v interface{}) error {
	resp, err := c.Do("GET", path, nil)
	if err != nil {
		return err
	}
	return decodeOrError(resp, v)
}
