package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var (
	// ErrNoResponse means every attempt failed before a status was received.
	ErrNoResponse = errors.New("canvas: no response received")
	// ErrNewQuizzesDisabled is returned when the course has New Quizzes off.
	ErrNewQuizzesDisabled = errors.New("canvas: new quizzes disabled for course")
)

// Sleeper waits between retries. It returns early with ctx.Err() when the
// context is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

// Response is the status and raw body of one Canvas call.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Options configures a Client. Domain may be a bare host or a full URL.
type Options struct {
	Domain     string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Policy     RetryPolicy
	Sleep      Sleeper
	Logger     zerolog.Logger
}

// Client talks to the Canvas REST and New Quizzes APIs for one token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     RetryPolicy
	sleep      Sleeper
	logger     zerolog.Logger
}

func NewClient(opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		base = &http.Client{Timeout: timeout}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	httpClient := &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
			Base:   transport,
		},
	}

	policy := opts.Policy
	if policy.Delays == nil {
		policy.Delays = DefaultRetryPolicy().Delays
	}
	if len(policy.Encodings) == 0 {
		policy.Encodings = DefaultRetryPolicy().Encodings
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Client{
		baseURL:    BaseURL(opts.Domain),
		httpClient: httpClient,
		policy:     policy,
		sleep:      sleep,
		logger:     opts.Logger.With().Str("component", "canvas").Logger(),
	}
}

// BaseURL prefixes a bare Canvas host with https://.
func BaseURL(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request and reads the whole body.
func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read canvas response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) (*Response, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url(path, query), "", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, statusError("GET "+path, resp)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, method, path string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, c.url(path, nil), "application/json", bytes.NewReader(body))
}

func (c *Client) postForm(ctx context.Context, method, path string, form url.Values) (*Response, error) {
	return c.do(ctx, method, c.url(path, nil), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func statusError(op string, resp *Response) error {
	return fmt.Errorf("canvas %s: status %d: %s", op, resp.StatusCode, Snippet(resp.Body, 300))
}

// Snippet returns at most n bytes of a response body as valid UTF-8 text,
// cut on a character boundary and with NUL bytes removed, so it can be
// logged and stored in a TEXT column.
func Snippet(body []byte, n int) string {
	s := strings.ToValidUTF8(strings.ReplaceAll(string(body), "\x00", ""), "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// idString normalizes ids Canvas returns as either numbers or strings.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	}
	return ""
}
