package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"issue-scout/internal/codehost"
)

const (
	defaultBaseURL = "https://api.github.com"
	maxErrorBody   = 4 << 10
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	// Transport is the base round tripper beneath the oauth2 transport.
	Transport http.RoundTripper
}

// Client implements codehost.Client over the GitHub REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// APIError is a non-2xx response other than 404.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github http status %d: %s", e.Status, e.Message)
}

// New builds a client. A nil token source makes unauthenticated requests.
func New(ts oauth2.TokenSource, opts Options) *Client {
	return newClient(ts, opts, newLimiter(opts))
}

func newLimiter(opts Options) *rate.Limiter {
	if opts.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
}

func newClient(ts oauth2.TokenSource, opts Options, limiter *rate.Limiter) *Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	var transport http.RoundTripper = base
	if ts != nil {
		transport = &oauth2.Transport{Source: ts, Base: base}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		limiter:    limiter,
	}
}

// NewFactory returns a codehost.Factory that resolves each requester's token
// through creds. All clients share one rate limiter.
func NewFactory(creds codehost.Credentials, opts Options) codehost.Factory {
	limiter := newLimiter(opts)
	return codehost.FactoryFunc(func(ctx context.Context, requesterID string) (codehost.Client, error) {
		var ts oauth2.TokenSource
		if creds != nil {
			var err error
			ts, err = creds.TokenSource(ctx, requesterID)
			if err != nil {
				return nil, err
			}
		}
		return newClient(ts, opts, limiter), nil
	})
}

type repoResponse struct {
	StargazersCount int     `json:"stargazers_count"`
	Language        *string `json:"language"`
	DefaultBranch   string  `json:"default_branch"`
}

type treeResponse struct {
	Tree      []codehost.TreeEntry `json:"tree"`
	Truncated bool                 `json:"truncated"`
}

type blobResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetRepoMetadata fetches stars, language and default branch.
func (c *Client) GetRepoMetadata(ctx context.Context, owner, name string) (codehost.RepoMetadata, error) {
	var out repoResponse
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(name))
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return codehost.RepoMetadata{}, err
	}
	meta := codehost.RepoMetadata{
		Stars:         out.StargazersCount,
		DefaultBranch: out.DefaultBranch,
	}
	if out.Language != nil {
		meta.Language = *out.Language
	}
	return meta, nil
}

// GetTree fetches the recursive tree of branch.
func (c *Client) GetTree(ctx context.Context, owner, name, branch string) ([]codehost.TreeEntry, error) {
	if strings.TrimSpace(branch) == "" {
		branch = "main"
	}
	var out treeResponse
	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		c.baseURL, url.PathEscape(owner), url.PathEscape(name), url.PathEscape(branch))
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Tree, nil
}

// GetBlob fetches a blob by its API URL and returns the base64 content.
func (c *Client) GetBlob(ctx context.Context, blobURL string) (string, error) {
	var out blobResponse
	if err := c.getJSON(ctx, blobURL, &out); err != nil {
		return "", err
	}
	if out.Encoding != "" && out.Encoding != "base64" {
		return "", fmt.Errorf("github blob: unsupported encoding %q", out.Encoding)
	}
	return out.Content, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return codehost.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("github response parse: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(body))
}

var _ codehost.Client = (*Client)(nil)
