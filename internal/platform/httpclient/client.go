// Package httpclient - HTTP-клиент бота: логирование, маскирование токена
// в URL и повторы через pkg/retry. *Client подходит для bot.WithHTTPClient.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	stdhttp "net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"tgqueue/pkg/retry"
)

// Client wraps http.Client with logging and retries.
type Client struct {
	hc            *stdhttp.Client
	log           *slog.Logger
	retries       int
	baseBackoff   time.Duration
	maxBackoff    time.Duration
	headers       map[string]string
	urlRedactor   func(*url.URL) string
	retryNonIdem  bool
	maxReplayBody int64
	after         func(time.Duration) <-chan time.Time
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets request timeout. Для long polling он должен быть больше
// таймаута getUpdates.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetries enables n retries with exponential backoff and jitter.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if backoff > 0 {
			c.baseBackoff = backoff
		}
	}
}

// WithMaxBackoff limits exponential backoff growth.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			if c.headers == nil {
				c.headers = make(map[string]string)
			}
			c.headers[k] = v
		}
	}
}

// WithURLRedactor sets URL redactor for logs.
func WithURLRedactor(f func(*url.URL) string) Option {
	return func(c *Client) { c.urlRedactor = f }
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// WithRetryNonIdempotent allows retries for POST and PATCH on any retryable
// failure, not only on dial errors.
func WithRetryNonIdempotent(v bool) Option {
	return func(c *Client) { c.retryNonIdem = v }
}

// WithMaxReplayBodySize limits size of buffered body for retries (0 disables limit).
func WithMaxReplayBodySize(n int64) Option {
	return func(c *Client) { c.maxReplayBody = n }
}

// ErrReplayBodyTooLarge indicates request body exceeds replay limit.
var ErrReplayBodyTooLarge = errors.New("http: body too large for replay")

// New creates configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConns = 20
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second

	c := &Client{
		hc: &stdhttp.Client{
			Timeout:   70 * time.Second,
			Transport: tr,
		},
		log:           slog.Default(),
		baseBackoff:   200 * time.Millisecond,
		maxBackoff:    5 * time.Second,
		maxReplayBody: 1 << 20,
		after:         time.After,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var tokenInPath = regexp.MustCompile(`/bot[^/]+/`)

// RedactBotToken заменяет токен в пути Bot API (/bot<token>/method).
func RedactBotToken(u *url.URL) string {
	return tokenInPath.ReplaceAllString(u.Redacted(), "/bot***/")
}

func (c *Client) redactURL(u *url.URL) string {
	if c.urlRedactor != nil {
		return c.urlRedactor(u)
	}
	return RedactBotToken(u)
}

// retryAfter parses Retry-After header value.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := stdhttp.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// drainAndClose drains up to 512KB from body and closes it.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}

// statusError - ответ с кодом, который имеет смысл повторить.
type statusError struct {
	status     int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

func retryableStatus(code int) bool {
	switch code {
	case 408, 425, 429:
		return true
	}
	return code >= 500 && code != stdhttp.StatusNotImplemented
}

// isDialError сообщает, что запрос не ушел на сервер.
func isDialError(err error) bool {
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}

func idempotent(req *stdhttp.Request) bool {
	switch req.Method {
	case stdhttp.MethodGet, stdhttp.MethodHead, stdhttp.MethodOptions,
		stdhttp.MethodTrace, stdhttp.MethodPut, stdhttp.MethodDelete:
		return true
	}
	return req.Header.Get("Idempotency-Key") != ""
}

// Do sends HTTP request with logging and retries. The request context
// bounds all attempts.
func (c *Client) Do(req *stdhttp.Request) (*stdhttp.Response, error) {
	if err := c.makeReplayable(req); err != nil {
		return nil, err
	}
	ctx := req.Context()
	safe := idempotent(req) || c.retryNonIdem

	cfg := retry.Config{
		MaxAttempts:  c.retries + 1,
		InitialDelay: c.baseBackoff,
		MaxDelay:     max(c.maxBackoff, c.baseBackoff),
		Multiplier:   2,
		Jitter:       true,
		After:        c.after,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.log.Warn("http request retry",
				slog.String("method", req.Method),
				slog.String("url", c.redactURL(req.URL)),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
		},
	}

	var resp *stdhttp.Response
	attempt := 0
	err := retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		attempt++
		r, err := c.attempt(ctx, req, attempt)
		if err != nil {
			return err
		}
		if retryableStatus(r.StatusCode) && attempt <= c.retries && safe {
			delay := retryAfter(r.Header.Get("Retry-After"))
			drainAndClose(r.Body)
			return &statusError{status: r.StatusCode, retryAfter: delay}
		}
		resp = r
		return nil
	}, func(err error) bool {
		var se *statusError
		if errors.As(err, &se) {
			if se.retryAfter > 0 {
				c.wait(ctx, se.retryAfter)
			}
			return true
		}
		if !retry.DefaultRetryable(err) {
			return false
		}
		return safe || isDialError(err)
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, fmt.Errorf("%s %s: %w", req.Method, c.redactURL(req.URL), exhausted.LastError)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req *stdhttp.Request, attempt int) (*stdhttp.Response, error) {
	r := req.Clone(ctx)
	for k, v := range c.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	if r.GetBody != nil {
		body, err := r.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}

	start := time.Now()
	resp, err := c.hc.Do(r)
	dur := time.Since(start)
	u := c.redactURL(r.URL)
	if err != nil {
		// url.Error печатает полный URL вместе с токеном.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = u
		}
		c.log.Debug("http request error",
			slog.String("method", r.Method),
			slog.String("url", u),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		return nil, err
	}
	level := slog.LevelDebug
	if resp.StatusCode >= 500 {
		level = slog.LevelWarn
	}
	c.log.Log(ctx, level, "http request",
		slog.String("method", r.Method),
		slog.String("url", u),
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", dur),
		slog.Int("attempt", attempt),
	)
	return resp, nil
}

// makeReplayable буферизует тело, чтобы его можно было отправить повторно.
func (c *Client) makeReplayable(req *stdhttp.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	reader := io.Reader(req.Body)
	if c.maxReplayBody > 0 {
		reader = io.LimitReader(req.Body, c.maxReplayBody+1)
	}
	body, err := io.ReadAll(reader)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	if c.maxReplayBody > 0 && int64(len(body)) > c.maxReplayBody {
		return ErrReplayBodyTooLarge
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	req.Body, _ = req.GetBody()
	return nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) {
	if deadline, ok := ctx.Deadline(); ok {
		if rem := time.Until(deadline); d > rem {
			d = rem
		}
	}
	select {
	case <-c.after(d):
	case <-ctx.Done():
	}
}
