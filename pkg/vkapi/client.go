package vkapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/logger"
	"vkharvest/pkg/schedule"
)

// Options configures a Client
type Options struct {
	BaseURL string
	Version string
	Timeout time.Duration
	// Proxy routes every call through this egress; nil dials directly
	Proxy *url.URL
}

// Client issues procedure calls over one egress binding
type Client struct {
	httpClient *http.Client
	baseURL    string
	version    string
	headers    map[string]string
	logger     logger.Logger
}

// NewClient creates a client with its own transport. No connection is made.
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(opts.Proxy)
	}

	egress := "direct"
	if opts.Proxy != nil {
		egress = opts.Proxy.Host
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		baseURL: opts.BaseURL,
		version: opts.Version,
		headers: map[string]string{
			"User-Agent": "vkharvest/1.0",
			"Accept":     "application/json",
		},
		logger: log.WithField("egress", egress),
	}
}

// Close drops idle connections of the client's transport
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Call sends one batch to the procedure for m and parses the envelope.
// Transport failures, timeouts and non-200 statuses return a network or
// transient error; an undecodable body returns a parsing error.
func (c *Client) Call(ctx context.Context, m schedule.Method, batch schedule.Batch, token string) (*Envelope, error) {
	endpoint := Endpoint(c.baseURL, m)
	// The token must stay out of the URL; transport errors echo it.
	body := strings.NewReader(Params(m, batch, token, c.version).Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "create request", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	fields := map[string]interface{}{
		"method": m.String(),
		"batch":  len(batch),
	}
	start := time.Now()
	c.logger.DebugWithFields("sending procedure call", fields)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fields["duration"] = time.Since(start)
		c.logger.WithError(err).WarnWithFields("procedure call failed", fields)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "send request", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "read response body", err).WithCode(resp.StatusCode)
	}

	fields["status"] = resp.StatusCode
	fields["duration"] = time.Since(start)

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnWithFields("unexpected status", fields)
		return nil, errs.Newf(errs.ErrorTypeTransient, "unexpected status %d", resp.StatusCode).WithCode(resp.StatusCode)
	}

	env, err := ParseEnvelope(payload)
	if err != nil {
		fields["body_preview"] = preview(payload)
		c.logger.WithError(err).ErrorWithFields("failed to parse response", fields)
		return nil, err
	}

	fields["kind"] = env.Kind.String()
	c.logger.DebugWithFields("procedure call completed", fields)
	return env, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

