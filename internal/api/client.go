package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://www.premiumize.me/api"

	callTimeout   = 10 * time.Second
	retryInterval = time.Second
	maxAttempts   = 3

	defaultCallsPerSecond = 4
)

// Credentials is the resolved (id, secret) pair every call carries.
type Credentials struct {
	CustomerID string
	PIN        string
}

// Valid reports whether both halves are present.
func (c Credentials) Valid() bool {
	return c.CustomerID != "" && c.PIN != ""
}

// Recorder receives request-level metrics. Implemented by the telemetry
// package; a nil Recorder disables recording.
type Recorder interface {
	RecordAPIRequest(endpoint, outcome string, duration time.Duration)
	RecordAPIRetry(endpoint string)
}

// Client is the single entry point for all remote calls: it merges the
// fixed credential fields into every request, retries transient failures on
// a flat interval, and normalizes every outcome into an Envelope.
type Client struct {
	baseURL  string
	creds    Credentials
	token    string
	limiter  *rate.Limiter
	recorder Recorder

	mu     sync.Mutex
	hc     *http.Client
	closed bool
}

type Option func(*Client)

// WithToken switches authentication to an OAuth bearer token instead of the
// customer_id/pin form fields.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithHTTPClient injects a prebuilt HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithRateLimit overrides the default request rate cap.
func WithRateLimit(callsPerSecond float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(callsPerSecond), 1) }
}

func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		limiter: rate.NewLimiter(rate.Limit(defaultCallsPerSecond), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// session lazily builds and reuses one HTTP client for the process
// lifetime. Not safe for use after Close.
func (c *Client) session() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hc != nil {
		return c.hc
	}

	transport := otelhttp.NewTransport(http.DefaultTransport)

	if c.token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token})
		base := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: transport})
		c.hc = oauth2.NewClient(base, ts)
	} else {
		c.hc = &http.Client{Transport: transport}
	}

	return c.hc
}

// Close releases the underlying session. Called exactly once at shutdown.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true

	if c.hc != nil {
		c.hc.CloseIdleConnections()
	}
}

// call POSTs a form-encoded request to the given endpoint and returns the
// response envelope. Connection failures, timeouts and non-200 statuses are
// retried up to maxAttempts with a flat interval; decode failures are
// converted immediately. The returned envelope is never nil and no raw
// transport error escapes.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values) *Envelope {
	logger := logctx.LoggerFromContext(ctx).With("endpoint", endpoint)
	started := time.Now()

	env := c.doCall(ctx, endpoint, params)

	if c.recorder != nil {
		outcome := "ok"
		if !env.OK() {
			outcome = "error"
		}

		c.recorder.RecordAPIRequest(endpoint, outcome, time.Since(started))
	}

	if !env.OK() {
		logger.Debug("call returned error envelope", "code", env.ErrCode, "message", env.Message)
	}

	return env
}

func (c *Client) doCall(ctx context.Context, endpoint string, params url.Values) *Envelope {
	logger := logctx.LoggerFromContext(ctx).With("endpoint", endpoint)

	if err := c.limiter.Wait(ctx); err != nil {
		return syntheticEnvelope(err.Error())
	}

	form := url.Values{}
	if c.token == "" {
		form.Set("customer_id", c.creds.CustomerID)
		form.Set("pin", c.creds.PIN)
	}

	for k, vs := range params {
		for _, v := range vs {
			form.Add(k, v)
		}
	}

	body := form.Encode()

	operation := func() (*Envelope, error) {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(body))
		if err != nil {
			// request construction never depends on the network
			return syntheticEnvelope(err.Error()), nil
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.session().Do(req)
		if err != nil {
			logger.Warn("timeout, retrying...", "err", err)

			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logger.Error("non-200 response, retrying...", "status", resp.StatusCode)

			return nil, &Error{Endpoint: endpoint, Message: resp.Status}
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		env, err := decodeEnvelope(raw)
		if err != nil {
			// malformed responses are not transient: convert, don't retry
			logger.Error("malformed response", "err", err)

			return syntheticEnvelope(err.Error()), nil
		}

		return env, nil
	}

	env, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(retryInterval)),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, _ time.Duration) {
			if c.recorder != nil {
				c.recorder.RecordAPIRetry(endpoint)
			}
		}),
	)
	if err != nil {
		return syntheticEnvelope("timeout")
	}

	return env
}
