// Package api talks to the job metrics service: token acquisition, authenticated
// metric fetches and the typed response schemas.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"hpc-job-metrics/internal/logging"
	"hpc-job-metrics/internal/model"
)

// WindowLayout is the format of the from/to query parameters.
const WindowLayout = "2006-01-02T15:04:05"

// Window optionally narrows a fetch to [From, To]. Zero values are omitted.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) query() url.Values {
	q := url.Values{}
	if !w.From.IsZero() {
		q.Set("from", w.From.Format(WindowLayout))
	}
	if !w.To.IsZero() {
		q.Set("to", w.To.Format(WindowLayout))
	}
	return q
}

// Client fetches job metrics with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
	log     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying retrying client.
func WithHTTPClient(c *retryablehttp.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// NewClient creates a client for baseURL (e.g. https://host/api) authenticating with token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = NewHTTPClient(30*time.Second, 0, c.log)
	}
	return c
}

// NewHTTPClient returns a retrying client that hands the final response back to the caller
// instead of replacing it with a "giving up" error, so HTTPError sees the real status.
func NewHTTPClient(timeout time.Duration, retryMax int, log zerolog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.HTTPClient.Timeout = timeout
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = logging.Leveled{Logger: log}
	return c
}

// URL returns the address of metricPath for job.
func (c *Client) URL(job model.JobRef, metricPath string, w Window) string {
	u := c.baseURL + "/metrics/" + url.PathEscape(job.Cluster) + "/" + url.PathEscape(job.JobID) + "/" + strings.TrimLeft(metricPath, "/")
	if q := w.query().Encode(); q != "" {
		u += "?" + q
	}
	return u
}

// Fetch GETs metricPath for job and decodes the JSON body into out.
// out may be any JSON target; typed endpoints use CapstorGlobal and GPUTemperature.
func (c *Client) Fetch(ctx context.Context, job model.JobRef, metricPath string, w Window, out any) error {
	endpoint := endpointLabel(metricPath)
	u := c.URL(job, metricPath, w)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		observe(endpoint, 0, start)
		return fmt.Errorf("GET %s: %w", u, err)
	}
	defer res.Body.Close()
	observe(endpoint, res.StatusCode, start)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return newHTTPError(res)
	}

	c.log.Debug().Str("url", u).Int("status", res.StatusCode).Dur("elapsed", time.Since(start)).Msg("fetched metrics")

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		metricSchemaErrors.WithLabelValues(endpoint).Inc()
		return schemaFromDecode(endpoint, err)
	}
	if v, ok := out.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			metricSchemaErrors.WithLabelValues(endpoint).Inc()
			return err
		}
	}
	return nil
}

// CapstorGlobal fetches the global filesystem metrics for job.
func (c *Client) CapstorGlobal(ctx context.Context, job model.JobRef, w Window) (*CapstorGlobal, error) {
	var resp CapstorGlobal
	if err := c.Fetch(ctx, job, PathCapstorGlobal, w, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GPUTemperature fetches GPU temperatures for job. A non-empty node restricts the
// response to that node.
func (c *Client) GPUTemperature(ctx context.Context, job model.JobRef, node string, w Window) (*GPUTemperature, error) {
	path := PathGPUTemperature
	if node != "" {
		path = url.PathEscape(node) + "/" + PathGPUTemperature
	}
	var resp GPUTemperature
	if err := c.Fetch(ctx, job, path, w, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// endpointLabel keeps metric label cardinality bounded when node ids are in the path.
func endpointLabel(metricPath string) string {
	if strings.HasSuffix(metricPath, PathGPUTemperature) {
		return PathGPUTemperature
	}
	return metricPath
}
