// Package reddit implements platform.Client against the Reddit OAuth API.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/crowdchess/internal/platform"
)

const (
	DefaultBaseURL = "https://oauth.reddit.com"
	DefaultAuthURL = "https://www.reddit.com/api/v1/access_token"
)

var (
	ErrUnauthorized = errors.New("reddit: unauthorized")
	ErrAPI          = errors.New("reddit: api error")
)

// Credentials selects the auth mode: a refresh token is exchanged for short
// lived access tokens, otherwise AccessToken is used as is.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	UserAgent    string
}

func (c Credentials) refreshable() bool { return c.RefreshToken != "" }

type Client struct {
	baseURL   string
	authURL   string
	subreddit string
	creds     Credentials
	http      *fasthttp.Client
	logger    *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
	pollInterval   time.Duration

	tokenMu  sync.Mutex
	token    string
	tokenExp time.Time
}

var _ platform.Client = (*Client)(nil)

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithAuthURL(u string) Option {
	return func(c *Client) { c.authURL = u }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDial replaces the TCP dialer, mostly for in-memory tests.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func New(subreddit string, creds Credentials, opts ...Option) (*Client, error) {
	if strings.TrimSpace(subreddit) == "" {
		return nil, errors.New("reddit: subreddit required")
	}
	if creds.refreshable() && (creds.ClientID == "" || creds.ClientSecret == "") {
		return nil, errors.New("reddit: client id and secret required with a refresh token")
	}
	if !creds.refreshable() && creds.AccessToken == "" {
		return nil, errors.New("reddit: refresh token or access token required")
	}
	if creds.UserAgent == "" {
		creds.UserAgent = "crowdchess/1.0"
	}
	c := &Client{
		baseURL:        DefaultBaseURL,
		authURL:        DefaultAuthURL,
		subreddit:      subreddit,
		creds:          creds,
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, MaxConnsPerHost: 16},
		logger:         zap.NewNop(),
		defaultTimeout: 15 * time.Second,
		retryMax:       3,
		pollInterval:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// call sends an authenticated request to path on the API host and returns
// a copy of the response body.
func (c *Client) call(ctx context.Context, method, path string, form *fasthttp.Args, retry bool) ([]byte, error) {
	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		body, status, err := c.do(ctx, method, c.baseURL+path, form, func(h *fasthttp.RequestHeader) {
			h.Set("Authorization", "bearer "+token)
		})
		switch {
		case err != nil:
			lastErr = fmt.Errorf("request failed: %w", err)
		case status == fasthttp.StatusUnauthorized:
			c.invalidateToken()
			lastErr = fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
			if !c.creds.refreshable() {
				return nil, lastErr
			}
		case status < 200 || status >= 300:
			lastErr = fmt.Errorf("%w: status=%d body=%s", ErrAPI, status, truncate(string(body), 512))
			if !shouldRetryStatus(status) {
				return nil, lastErr
			}
		default:
			return body, nil
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, uri string, form *fasthttp.Args, decorate func(*fasthttp.RequestHeader)) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	req.Header.SetUserAgent(c.creds.UserAgent)
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBody(form.QueryString())
	}
	if decorate != nil {
		decorate(&req.Header)
	}

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), resp.Body()...), resp.StatusCode(), nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case fasthttp.StatusTooManyRequests, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formArgs(kv ...string) *fasthttp.Args {
	args := &fasthttp.Args{}
	for i := 0; i+1 < len(kv); i += 2 {
		args.Set(kv[i], kv[i+1])
	}
	return args
}

// bare strips the kind prefix from a fullname such as t3_abc.
func bare(fullname string) string {
	if i := strings.IndexByte(fullname, '_'); i > 0 && i < 4 {
		return fullname[i+1:]
	}
	return fullname
}
