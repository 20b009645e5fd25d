// Package delivery posts batches of records to the HTTP listener with
// bounded retries and exponential backoff.
package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/szibis/logship/internal/compression"
	"github.com/szibis/logship/internal/logging"
)

const (
	// MaxRetries is the number of attempts per batch.
	MaxRetries = 3
	// InitialBackoff is the sleep after the first failed attempt. It doubles
	// after every further failure.
	InitialBackoff = 2000 * time.Millisecond

	defaultTimeout  = 10 * time.Second
	maxErrorMessage = 64 * 1024
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds the delivery client configuration.
type Config struct {
	// ListenerURL is the listener base URL (http or https).
	ListenerURL string
	// Token authenticates the account. Sent as a query parameter.
	Token string
	// Type is the stream type. Sent as a query parameter.
	Type string
	// ConnectTimeout bounds dialing (default: 10s).
	ConnectTimeout time.Duration
	// SocketTimeout bounds waiting for the response (default: 10s).
	SocketTimeout time.Duration
	// Compression of the request body.
	Compression compression.Config
	// MaxRetries overrides the attempt count (default: 3).
	MaxRetries int
	// InitialBackoff overrides the first backoff sleep (default: 2s).
	InitialBackoff time.Duration
	// HTTPClient replaces the client built from the timeouts.
	HTTPClient *http.Client
	// Sleep replaces the context-aware timer used between attempts.
	Sleep SleepFunc
}

// Client delivers batches to one listener URL.
type Client struct {
	cfg        Config
	url        string
	httpClient *http.Client
	sleep      SleepFunc
}

// BuildURL returns <listener>/?token=<token>&type=<type>.
func BuildURL(listener, token, typ string) (string, error) {
	u, err := url.Parse(listener)
	if err != nil {
		return "", fmt.Errorf("invalid listener url %q: %w", listener, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid listener url %q: want http(s)://host[:port]", listener)
	}
	q := url.Values{}
	q.Set("token", token)
	q.Set("type", typ)
	return strings.TrimRight(listener, "/") + "/?" + q.Encode(), nil
}

// New validates cfg and builds the HTTP client.
func New(cfg Config) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultTimeout
	}
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = InitialBackoff
	}

	endpoint, err := BuildURL(cfg.ListenerURL, cfg.Token, cfg.Type)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg, strings.HasPrefix(endpoint, "https://"))
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Client{
		cfg:        cfg,
		url:        endpoint,
		httpClient: httpClient,
		sleep:      sleep,
	}, nil
}

func newHTTPClient(cfg Config, secure bool) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.SocketTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if secure {
		transport.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if h2, err := http2.ConfigureTransports(transport); err == nil && h2 != nil {
			h2.ReadIdleTimeout = cfg.SocketTimeout
			h2.PingTimeout = cfg.ConnectTimeout
		}
	}

	return &http.Client{Transport: transport}
}

// URL returns the full request URL, token included.
func (c *Client) URL() string {
	return c.url
}

// Join concatenates payloads with a newline between consecutive records.
func Join(batch [][]byte) []byte {
	size := 0
	for _, p := range batch {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	for i, p := range batch {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, p...)
	}
	return buf
}

// Send delivers batch as one request body. It returns nil on 200, a
// non-retryable *Error on 400 or 401, and otherwise retries up to MaxRetries
// times with doubling backoff before returning an *Error wrapping
// ErrRetriesExhausted. Cancelling ctx aborts the current attempt or sleep.
func (c *Client) Send(ctx context.Context, batch [][]byte) error {
	payload := Join(batch)
	body := payload
	label := "none"
	if c.cfg.Compression.Type.Enabled() {
		compressed, err := compression.Compress(payload, c.cfg.Compression)
		if err != nil {
			return fmt.Errorf("failed to compress batch: %w", err)
		}
		body = compressed
		label = string(c.cfg.Compression.Type)
	}

	backoff := c.cfg.InitialBackoff
	var last *Error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		err := c.post(ctx, body)
		if err == nil {
			deliveryBytesTotal.WithLabelValues(label).Add(float64(len(body)))
			if label != "none" {
				deliveryBytesTotal.WithLabelValues("uncompressed").Add(float64(len(payload)))
			}
			deliveryBatchesTotal.WithLabelValues("success").Inc()
			logging.Debug("Successfully sent bulk to listener", logging.F(
				"type", c.cfg.Type,
				"size", len(body),
				"records", len(batch),
			))
			return nil
		}
		recordError(err.Type)
		if !err.IsRetryable() {
			deliveryBatchesTotal.WithLabelValues(string(err.Type)).Inc()
			return err
		}
		last = err

		if ctx.Err() != nil || attempt == c.cfg.MaxRetries {
			break
		}

		logging.Debug("Could not send log to listener, retrying", logging.F(
			"type", c.cfg.Type,
			"attempt", attempt,
			"max_attempts", c.cfg.MaxRetries,
			"sleep", backoff.String(),
			"error", err.Error(),
		))
		deliveryRetriesTotal.Inc()
		if serr := c.sleep(ctx, backoff); serr != nil {
			break
		}
		backoff *= 2
	}

	deliveryBatchesTotal.WithLabelValues("requeued").Inc()
	if cerr := ctx.Err(); cerr != nil {
		return &Error{
			Err:        fmt.Errorf("delivery interrupted: %w", errors.Join(cerr, last)),
			Type:       last.Type,
			StatusCode: last.StatusCode,
			Message:    last.Message,
		}
	}
	return &Error{
		Err:        fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, c.cfg.MaxRetries, last),
		Type:       last.Type,
		StatusCode: last.StatusCode,
		Message:    last.Message,
	}
}

// errSocketTimeout cancels an attempt whose listener stopped responding.
var errSocketTimeout = errors.New("socket timeout")

// readWatchdog cancels an attempt when no response bytes arrive within
// timeout. Every successful read rearms it.
type readWatchdog struct {
	body    io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *readWatchdog) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (c *Client) post(ctx context.Context, body []byte) *Error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	// Connect and header phases share the first window; the dialer and
	// transport also bound them for the default client.
	watchdog := time.AfterFunc(c.cfg.ConnectTimeout+c.cfg.SocketTimeout, func() {
		cancel(errSocketTimeout)
	})
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &Error{Err: fmt.Errorf("failed to create request: %w", err), Type: ErrorTypeUnknown}
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "text/plain")
	if encoding := c.cfg.Compression.Type.ContentEncoding(); encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	deliveryRequestsTotal.Inc()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(context.Cause(ctx), errSocketTimeout) {
			return &Error{Err: fmt.Errorf("failed to send request: %w: %v", errSocketTimeout, err), Type: ErrorTypeTimeout}
		}
		return &Error{Err: fmt.Errorf("failed to send request: %w", err), Type: classifyError(err)}
	}
	defer resp.Body.Close()

	watchdog.Reset(c.cfg.SocketTimeout)
	respBody := &readWatchdog{body: resp.Body, timer: watchdog, timeout: c.cfg.SocketTimeout}

	// The status decides the outcome; a stalled body is abandoned once the
	// watchdog fires.
	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, respBody)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(respBody, maxErrorMessage))
	_, _ = io.Copy(io.Discard, respBody)
	message := strings.TrimSpace(string(msg))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &Error{
		Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		Type:       classifyStatusCode(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
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
