// Package transport posts search requests over HTTP with basic auth.
package transport

import (
	"context"
	"net/http"
	"time"

	errs "fasearch/pkg/errors"
	"fasearch/pkg/logger"

	"github.com/go-resty/resty/v2"
)

// Response is a raw search API reply. Status codes are not interpreted here.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Options configures a Client
type Options struct {
	Username  string
	Password  string
	Timeout   time.Duration
	UserAgent string
	Logger    logger.Logger
}

// Client is a resty-backed transport bound to one endpoint URL at a time
type Client struct {
	resty  *resty.Client
	url    string
	logger logger.Logger
}

// New creates a transport. Resty's own retries stay disabled; retrying is the
// caller's policy.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	rc := resty.New().
		SetBasicAuth(opts.Username, opts.Password).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Client{resty: rc, logger: log}
}

// SetURL points subsequent posts at url
func (c *Client) SetURL(url string) {
	c.url = url
}

// URL returns the current endpoint
func (c *Client) URL() string {
	return c.url
}

// HTTPClient exposes the underlying client, mainly so tests can intercept it
func (c *Client) HTTPClient() *http.Client {
	return c.resty.GetClient()
}

// Post sends body to the current URL. An error is returned only when no HTTP
// response was received; any status code comes back in the Response.
func (c *Client) Post(ctx context.Context, body []byte) (*Response, error) {
	if c.url == "" {
		return nil, &errs.Error{Type: errs.ErrorTypeConfig, Message: "transport URL not set"}
	}

	start := time.Now()
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.url)
	if err != nil {
		c.logger.WithError(err).WarnWithFields("Search API request failed", map[string]interface{}{
			"url": c.url,
		})
		return nil, errs.New(errs.ErrorTypeNetwork, err, "POST %s: %v", c.url, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		Duration:   time.Since(start),
	}
	logger.LogRequest(c.logger, http.MethodPost, c.url, out.StatusCode, len(out.Body), out.Duration)
	return out, nil
}
