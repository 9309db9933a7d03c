// Package upstream talks to the thread source of truth: the paginated
// "latest items" listing and the bulk version-check endpoint. It returns raw
// bodies; the decoders in this package validate envelopes and classify
// upstream failures.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/threadwatch/internal/platform/timeouts"
	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultBaseURL is the upstream site root.
	DefaultBaseURL = "https://f95zone.to"

	latestPath       = "/sam/latest_alpha/latest_data.php"
	versionCheckPath = "/sam/checker.php"

	defaultLatestCommand = "list"
	latestRowsPerPage    = 90
	maxBodyBytes         = 32 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL string
	// Cookies is a raw Cookie header carrying the authenticated session.
	Cookies   string
	Timeout   time.Duration
	UserAgent string
	// LatestCommand selects the listing result type; defaults to "list".
	LatestCommand string
	// HTTPClient overrides the transport; its Jar is replaced with the session jar.
	HTTPClient *http.Client
}

// Client issues authenticated GET requests against the upstream endpoints.
type Client struct {
	httpClient    *http.Client
	baseURL       *url.URL
	userAgent     string
	latestCommand string
}

// NewClient builds a Client with a cookie session seeded from opts.Cookies.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("upstream base url %q must be absolute", base)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if raw := strings.TrimSpace(opts.Cookies); raw != "" {
		cookies, err := http.ParseCookie(raw)
		if err != nil {
			return nil, fmt.Errorf("parse upstream cookies: %w", err)
		}
		jar.SetCookies(baseURL, cookies)
	}

	httpClient := &http.Client{}
	if opts.HTTPClient != nil {
		clone := *opts.HTTPClient
		httpClient = &clone
	}
	httpClient.Jar = jar
	if opts.Timeout > 0 {
		httpClient.Timeout = opts.Timeout
	} else if httpClient.Timeout <= 0 {
		httpClient.Timeout = timeouts.UpstreamRequest
	}

	latestCommand := strings.TrimSpace(opts.LatestCommand)
	if latestCommand == "" {
		latestCommand = defaultLatestCommand
	}

	return &Client{
		httpClient:    httpClient,
		baseURL:       baseURL,
		userAgent:     strings.TrimSpace(opts.UserAgent),
		latestCommand: latestCommand,
	}, nil
}

// LatestURL returns the listing URL for one category page.
func (c *Client) LatestURL(category string, page int) string {
	query := url.Values{}
	query.Set("cmd", c.latestCommand)
	query.Set("cat", category)
	query.Set("page", strconv.Itoa(page))
	query.Set("sort", "date")
	query.Set("rows", strconv.Itoa(latestRowsPerPage))
	return c.endpoint(latestPath, query.Encode())
}

// VersionCheckURL returns the bulk version-check URL for ids.
func (c *Client) VersionCheckURL(ids []string) string {
	escaped := make([]string, 0, len(ids))
	for _, id := range ids {
		escaped = append(escaped, url.QueryEscape(id))
	}
	return c.endpoint(versionCheckPath, "threads="+strings.Join(escaped, ","))
}

// Latest fetches one page of the latest-items listing for category.
func (c *Client) Latest(ctx context.Context, category string, page int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be at least 1")
	}
	return c.get(ctx, c.LatestURL(category, page))
}

// CheckVersions asks upstream for the current version of every id.
func (c *Client) CheckVersions(ctx context.Context, ids []string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one thread id is required")
	}
	return c.get(ctx, c.VersionCheckURL(ids))
}

func (c *Client) endpoint(path, rawQuery string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = rawQuery
	return u.String()
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if flagged := CheckError(body); flagged != nil {
			flagged.StatusCode = resp.StatusCode
			return nil, flagged
		}
		// A JSON envelope is an answer whatever the status; the decoders judge it.
		if gjson.ValidBytes(body) {
			return body, nil
		}
		return nil, &Error{Flag: fmt.Sprintf(flagHTTPStatusFmt, resp.StatusCode), StatusCode: resp.StatusCode}
	}
	return body, nil
}
