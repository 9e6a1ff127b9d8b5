package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/danthegoodman1/Provisio/gologger"
	"github.com/danthegoodman1/Provisio/internal"
	"github.com/danthegoodman1/Provisio/tracing"
	"github.com/quic-go/quic-go/http3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/http2"
)

var (
	logger = gologger.NewLogger()

	// ErrTransport means the request never produced a usable response: retries ran out or the
	// caller gave up.
	ErrTransport = errors.New("transport failure")

	errRetryableStatus = errors.New("retryable status code")
)

type (
	Client struct {
		httpClient *http.Client
		schedule   []time.Duration
		timer      backoff.Timer
	}

	Options struct {
		// Timeout for a single attempt. Zero means 30 seconds.
		Timeout time.Duration

		// InsecureSkipVerify disables server certificate validation for this client only.
		// Local testing against self-signed portals.
		InsecureSkipVerify bool

		// HTTP3 talks QUIC to the portal instead of TCP.
		HTTP3 bool

		// Schedule overrides DefaultSchedule.
		Schedule []time.Duration

		// Timer overrides the backoff timer, tests use it to skip the waits.
		Timer backoff.Timer

		// HTTPClient replaces the client built from Timeout and InsecureSkipVerify.
		HTTPClient *http.Client
	}

	Response struct {
		StatusCode int
		Header     http.Header
		Body       []byte
	}
)

func New(opts Options) *Client {
	c := &Client{
		schedule: DefaultSchedule,
		timer:    opts.Timer,
	}
	if opts.Schedule != nil {
		c.schedule = opts.Schedule
	}

	if opts.HTTPClient != nil {
		c.httpClient = opts.HTTPClient
		return c
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var tlsConfig *tls.Config
	if opts.InsecureSkipVerify {
		logger.Warn().Msg("TLS certificate validation disabled for this transport client, do not use outside of local testing")
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if opts.HTTP3 {
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: &http3.Transport{TLSClientConfig: tlsConfig},
		}
		return c
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 4,
		TLSClientConfig:     tlsConfig,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		logger.Warn().Err(err).Msg("error configuring http2, continuing with http/1.1")
	}

	c.httpClient = &http.Client{
		Timeout:   timeout,
		Transport: tr,
	}
	return c
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (c *Client) Get(ctx context.Context, url, token string) (*Response, error) {
	return c.Send(ctx, http.MethodGet, url, token, nil)
}

func (c *Client) Post(ctx context.Context, url, token string, body []byte) (*Response, error) {
	return c.Send(ctx, http.MethodPost, url, token, body)
}

// Send performs the request, retrying connection failures and 408/500/502/503/504 on the
// client's schedule. Any other status is returned as-is, including 4xx.
func (c *Client) Send(ctx context.Context, method, url, token string, body []byte) (*Response, error) {
	ctx, span := tracing.Tracer.Start(ctx, "transport.Send")
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.url", url))

	var (
		res     *Response
		attempt int
	)
	op := func() error {
		attempt++
		req, err := buildRequest(ctx, method, url, token, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("error in buildRequest: %w", err))
		}

		r, err := c.do(req)
		if err != nil {
			internal.Metric_TransportAttempts.WithLabelValues("conn_error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		res = r
		if retryableStatus(r.StatusCode) {
			internal.Metric_TransportAttempts.WithLabelValues("retryable_status").Inc()
			return fmt.Errorf("status %d - body %s - %w", r.StatusCode, string(r.Body), errRetryableStatus)
		}
		internal.Metric_TransportAttempts.WithLabelValues("ok").Inc()
		return nil
	}

	notify := func(err error, wait time.Duration) {
		zerolog.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Str("url", url).Msgf("request failed, retrying in %s", wait)
	}

	b := backoff.WithContext(newFixedBackOff(c.schedule), ctx)
	err := backoff.RetryNotifyWithTimer(op, b, notify, c.timer)
	span.SetAttributes(attribute.Int("http.attempts", attempt))
	if err != nil {
		internal.Metric_TransportExhausted.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %s %s after %d attempts: %w", ErrTransport, method, url, attempt, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	return res, nil
}

// buildRequest creates a fresh request for every attempt so no state leaks between retries.
func buildRequest(ctx context.Context, method, url, token string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("error in http.NewRequestWithContext: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request) (*Response, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error in doing request: %w", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       resBody,
	}, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
