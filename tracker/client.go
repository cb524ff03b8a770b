package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// DefaultTimeout is the per-attempt timeout applied by DefaultConfig.
const DefaultTimeout = 10 * time.Second

// Config configures a Client. Build one with DefaultConfig and adjust, or
// fill it by hand; NewClient validates either way.
type Config struct {
	// Endpoint is the collector URL, e.g. https://stats.example.com/matomo.php.
	Endpoint string
	// Method is the single-request HTTP method, GET (default) or POST.
	Method string
	// Timeout bounds each attempt. Must be positive.
	Timeout time.Duration
	// RetryMax is the number of extra attempts after the first. The
	// default 0 keeps the single-attempt delivery contract.
	RetryMax int
	// ForwardCookies attaches the inbound request cookies to the
	// outbound tracking request.
	ForwardCookies bool
}

func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint: endpoint,
		Method:   http.MethodGet,
		Timeout:  DefaultTimeout,
	}
}

func (c Config) validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ConfigError{Option: "endpoint", Reason: "must be an absolute URL"}
	}
	if c.Method != "" && c.Method != http.MethodGet && c.Method != http.MethodPost {
		return ConfigError{Option: "method", Reason: "must be GET or POST"}
	}
	if c.Timeout <= 0 {
		return ConfigError{Option: "timeout", Reason: "must be positive"}
	}
	if c.RetryMax < 0 {
		return ConfigError{Option: "retry max", Reason: "must not be negative"}
	}
	return nil
}

// Response is the collector's reply reduced to what callers inspect: the
// status code and any cookies echoed back. A non-2xx status is reported
// here, not as an error.
type Response struct {
	StatusCode int
	Cookies    map[string]string
}

// Client dispatches assembled tracking requests to one collector
// endpoint. Safe for concurrent use; the Visits it sends are not.
type Client struct {
	cfg    Config
	http   *retryablehttp.Client
	logger zerolog.Logger
}

// NewClient validates cfg and builds a dispatcher around it.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = leveledLogger{logger}

	return &Client{
		cfg:    cfg,
		http:   rc,
		logger: logger,
	}, nil
}

// Send finalizes the visit and issues one tracking request. Transport
// failures surface as DeliveryError; the collector's status code does
// not: callers inspect the Response themselves.
func (c *Client) Send(ctx context.Context, v *Visit) (*Response, error) {
	query := v.Finalize()

	var (
		req *retryablehttp.Request
		err error
	)
	if c.cfg.Method == http.MethodPost {
		req, err = retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(query))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		target := c.cfg.Endpoint
		if query != "" {
			target += "?" + query
		}
		req, err = retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	}
	if err != nil {
		return nil, DeliveryError{Endpoint: c.cfg.Endpoint, Err: err}
	}

	c.decorate(req, v.ctx)
	return c.do(req)
}

// Batch accumulates independently serialized hits for one bulk payload.
type Batch struct {
	queries []string
	token   string
}

// NewBatch starts a batch authenticated by tokenAuth; an empty token is
// omitted from the payload.
func NewBatch(tokenAuth string) *Batch {
	return &Batch{token: tokenAuth}
}

// Add finalizes the visit and appends its query to the batch.
func (b *Batch) Add(v *Visit) {
	b.AddQuery(v.Finalize())
}

// AddQuery appends an already-serialized query string, with or without a
// leading "?".
func (b *Batch) AddQuery(query string) {
	if !strings.HasPrefix(query, "?") {
		query = "?" + query
	}
	b.queries = append(b.queries, query)
}

func (b *Batch) Len() int {
	return len(b.queries)
}

type batchPayload struct {
	Requests  []string `json:"requests"`
	TokenAuth string   `json:"token_auth,omitempty"`
}

// SendBatch posts the accumulated hits as one JSON payload.
func (c *Client) SendBatch(ctx context.Context, b *Batch) (*Response, error) {
	if b.Len() == 0 {
		return nil, newValidationError("batch", "must contain at least one request")
	}

	body, err := json.Marshal(batchPayload{Requests: b.queries, TokenAuth: b.token})
	if err != nil {
		return nil, DeliveryError{Endpoint: c.cfg.Endpoint, Err: err}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, DeliveryError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	return c.do(req)
}

func (c *Client) do(req *retryablehttp.Request) (*Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, DeliveryError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return &Response{
		StatusCode: resp.StatusCode,
		Cookies:    parseSetCookies(resp.Header),
	}, nil
}

// decorate carries the inbound request identity outbound: user agent and
// language as headers, cookies when configured.
func (c *Client) decorate(req *retryablehttp.Request, trkCtx Context) {
	if trkCtx.UserAgent != "" {
		req.Header.Set("User-Agent", trkCtx.UserAgent)
	}
	if trkCtx.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", trkCtx.AcceptLanguage)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	if c.cfg.ForwardCookies {
		for name, value := range trkCtx.cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}
}

// parseSetCookies collects response cookies: header names matched
// case-insensitively, each value truncated at the first ';' and split as
// a single key/value pair.
func parseSetCookies(h http.Header) map[string]string {
	var cookies map[string]string
	for name, values := range h {
		if !strings.EqualFold(name, "Set-Cookie") {
			continue
		}
		for _, raw := range values {
			pair := raw
			if i := strings.IndexByte(pair, ';'); i >= 0 {
				pair = pair[:i]
			}
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			if cookies == nil {
				cookies = make(map[string]string)
			}
			cookies[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return cookies
}

// leveledLogger adapts zerolog to retryablehttp's LeveledLogger.
type leveledLogger struct {
	l zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.emit(l.l.Error(), msg, keysAndValues)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.emit(l.l.Warn(), msg, keysAndValues)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.emit(l.l.Info(), msg, keysAndValues)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.emit(l.l.Debug(), msg, keysAndValues)
}

func (l leveledLogger) emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			e = e.Interface(key, kv[i+1])
		}
	}
	e.Msg(msg)
}
