// Package apiclient provides typed access to the ClimaGrid HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/climagrid/internal/conf"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/httpclient"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/model"
	"github.com/tphakala/climagrid/internal/observability/metrics"
)

// Endpoint names used for metrics, logging and error context.
const (
	EndpointMetrics      = "metrics"
	EndpointGeocode      = "geocode"
	EndpointTimeseries   = "timeseries"
	EndpointObservations = "observations"
	EndpointHealth       = "healthz"
)

const (
	// maxBodySize caps how much of a response body is read.
	maxBodySize = 8 << 20

	requestIDHeader = "X-Request-ID"
)

// Client talks to the ClimaGrid API. Safe for concurrent use.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	http    *httpclient.Client
	cache   *cache.Cache // geocode results, nil when disabled
	log     logger.Logger
	metrics *metrics.ClientMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics records request counts and latencies into m.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates an API client for the configured base URL.
func New(settings *conf.APISettings, opts ...Option) (*Client, error) {
	if settings == nil {
		return nil, errors.Newf("api settings are required").
			Component("apiclient").
			Category(errors.CategoryConfiguration).
			Build()
	}

	base, err := url.Parse(settings.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errors.Newf("invalid API base URL %q", settings.BaseURL).
			Component("apiclient").
			Category(errors.CategoryConfiguration).
			Context("base_url", settings.BaseURL).
			Build()
	}

	httpConfig := &httpclient.Config{
		DefaultTimeout: settings.Timeout,
		UserAgent:      settings.UserAgent,
		RateLimit:      settings.RateLimit,
		Burst:          settings.Burst,
	}
	if settings.Timeout == 0 {
		// Requests end on cancellation only; a slow server is not an error.
		httpConfig.DefaultTimeout = httpclient.NoTimeout
		httpConfig.ResponseHeaderTimeout = httpclient.NoTimeout
	}

	c := &Client{
		baseURL: base,
		timeout: settings.Timeout,
		http:    httpclient.New(httpConfig),
		log: logger.Global().Module("apiclient"),
	}
	if settings.GeocodeCacheTTL > 0 {
		// No janitor goroutine: expired entries are dropped when read.
		c.cache = cache.New(settings.GeocodeCacheTTL, 0)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HTTPClient exposes the underlying *http.Client for transport mocking in tests.
func (c *Client) HTTPClient() *http.Client {
	return c.http.HTTPClient()
}

// Close releases idle connections and the geocode cache.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Flush()
	}
	c.http.Close()
}

// MetricCatalog fetches the raw metric catalog document.
func (c *Client) MetricCatalog(ctx context.Context) ([]byte, error) {
	return c.get(ctx, EndpointMetrics, "metrics", nil)
}

// Geocode looks up places matching query. A response that is not a JSON array
// yields an empty list.
func (c *Client) Geocode(ctx context.Context, query string, count int) ([]model.Location, error) {
	cacheKey := model.NormalizeName(query) + "|" + strconv.Itoa(count)
	if c.cache != nil {
		if cached, found := c.cache.Get(cacheKey); found {
			if locations, ok := cached.([]model.Location); ok {
				c.log.Trace("Geocode cache hit", logger.String("query", query))
				return slices.Clone(locations), nil
			}
		}
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("count", strconv.Itoa(count))

	body, err := c.get(ctx, EndpointGeocode, "geocode", params)
	if err != nil {
		return nil, err
	}

	locations := []model.Location{}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &locations); err != nil {
			return nil, c.parseError(EndpointGeocode, err)
		}
	}

	if c.cache != nil {
		c.cache.SetDefault(cacheKey, slices.Clone(locations))
	}
	return locations, nil
}

// Timeseries fetches a forecast series.
func (c *Client) Timeseries(ctx context.Context, q model.TimeseriesQuery) (*model.Series, error) {
	params := url.Values{}
	params.Set("metric", q.Metric)
	params.Set("latitude", formatFloat(q.Latitude))
	params.Set("longitude", formatFloat(q.Longitude))
	params.Set("hours", strconv.Itoa(q.Hours))
	params.Set("include_user_observations", strconv.FormatBool(q.IncludeUserObservations))

	body, err := c.get(ctx, EndpointTimeseries, "timeseries", params)
	if err != nil {
		return nil, err
	}

	var series model.Series
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, c.parseError(EndpointTimeseries, err)
	}
	return &series, nil
}

// SubmitObservation records a reading. Any 2xx response is a success; when the
// body cannot be decoded the submitted values are echoed back without an ID.
func (c *Client) SubmitObservation(ctx context.Context, obs model.NewObservation) (*model.Observation, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, c.endpointURL("observations", nil), obs)
	if err != nil {
		return nil, errors.New(err).
			Component("apiclient").
			Category(errors.CategoryValidation).
			Context("endpoint", EndpointObservations).
			Build()
	}

	body, err := c.do(ctx, EndpointObservations, req)
	if err != nil {
		return nil, err
	}

	var created model.Observation
	if err := json.Unmarshal(body, &created); err != nil {
		c.log.Debug("Observation accepted with undecodable body", logger.Error(err))
		return &model.Observation{
			Timestamp:    obs.Timestamp.UTC(),
			Metric:       obs.Metric,
			Value:        obs.Value,
			Latitude:     obs.Latitude,
			Longitude:    obs.Longitude,
			LocationName: obs.LocationName,
			Source:       obs.Source,
			Notes:        obs.Notes,
		}, nil
	}
	return &created, nil
}

// ListObservations lists community observations.
func (c *Client) ListObservations(ctx context.Context, q model.ObservationQuery) ([]model.Observation, error) {
	params := url.Values{}
	if q.Metric != "" {
		params.Set("metric", q.Metric)
	}
	if q.Latitude != nil && q.Longitude != nil {
		params.Set("latitude", formatFloat(*q.Latitude))
		params.Set("longitude", formatFloat(*q.Longitude))
	}
	if q.RadiusKm > 0 {
		params.Set("radius_km", formatFloat(q.RadiusKm))
	}
	if q.Hours > 0 {
		params.Set("hours", strconv.Itoa(q.Hours))
	}

	body, err := c.get(ctx, EndpointObservations, "observations", params)
	if err != nil {
		return nil, err
	}

	observations := []model.Observation{}
	if err := json.Unmarshal(body, &observations); err != nil {
		return nil, c.parseError(EndpointObservations, err)
	}
	return observations, nil
}

// Health checks that the API is reachable.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, EndpointHealth, "healthz", nil)
	return err
}

func (c *Client) endpointURL(path string, params url.Values) string {
	u := c.baseURL.JoinPath(path)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL(path, params), http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("apiclient").
			Category(errors.CategoryNetwork).
			Context("endpoint", endpoint).
			Build()
	}
	return c.do(ctx, endpoint, req)
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, endpoint string, req *http.Request) ([]byte, error) {
	requestID := logger.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logger.WithRequestID(ctx, requestID)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)

	log := c.log.WithContext(ctx).With(logger.String("endpoint", endpoint))
	log.Debug("API request", logger.String("url", logger.RedactSensitiveData(req.URL.String())))

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.metrics.RecordAPIRequest(endpoint, 0, time.Since(start))
		return nil, c.transportError(ctx, endpoint, requestID, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Debug("Failed to close response body", logger.Error(closeErr))
		}
	}()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	duration := time.Since(start)
	c.metrics.RecordAPIRequest(endpoint, resp.StatusCode, duration)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Detail:   extractDetail(body),
		}
		log.Warn("API request rejected",
			logger.Int("status", resp.StatusCode),
			logger.String("detail", logger.RedactSensitiveData(statusErr.Detail)),
			logger.Duration("duration", duration))
		return nil, errors.New(statusErr).
			Component("apiclient").
			Category(statusErr.ErrorCategory()).
			Context("endpoint", endpoint).
			Timing(endpoint, duration).
			Context("status_code", resp.StatusCode).
			Context("request_id", requestID).
			Build()
	}

	if readErr != nil {
		return nil, c.transportError(ctx, endpoint, requestID, readErr)
	}

	log.Debug("API request completed",
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)),
		logger.Duration("duration", duration))
	return body, nil
}

func (c *Client) transportError(ctx context.Context, endpoint, requestID string, err error) error {
	category := errors.CategoryNetwork
	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		category = errors.CategoryCancellation
	case errors.Is(err, context.Canceled):
		category = errors.CategoryCancellation
	case errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryTimeout
	}

	if category != errors.CategoryCancellation {
		c.log.Warn("API request failed",
			logger.String("endpoint", endpoint),
			logger.String("request_id", requestID),
			logger.String("error", logger.RedactSensitiveData(err.Error())))
	}

	return errors.New(err).
		Component("apiclient").
		Category(category).
		NetworkContext(c.baseURL.String(), c.timeout).
		Context("endpoint", endpoint).
		Context("request_id", requestID).
		Build()
}

func (c *Client) parseError(endpoint string, err error) error {
	c.log.Warn("Failed to decode API response", logger.String("endpoint", endpoint), logger.Error(err))
	return errors.New(fmt.Errorf("decode %s response: %w", endpoint, err)).
		Component("apiclient").
		Category(errors.CategoryParsing).
		Context("endpoint", endpoint).
		Build()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
