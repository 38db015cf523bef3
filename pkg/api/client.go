// Package api implements HTTP transport used by resources and managers to talk to a remote REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const RequestIdHeader = "X-Request-Id"

// Client is a transport used to access a remote API.
// All methods return decoded JSON body of the response: map[string]any, []any,
// json.Number, string, bool or nil.
type Client interface {
	Get(ctx context.Context, endpoint string) (any, error)
	Put(ctx context.Context, endpoint string, body any) (any, error)
	Post(ctx context.Context, endpoint string, body any) (any, error)
}

type RestApiClient struct {
	baseUrl    *url.URL
	httpClient *http.Client
	token      string

	logger  log.Logger
	limiter *rate.Limiter
	metrics *clientMetrics
}

// Option customises RestApiClient
type Option func(c *RestApiClient) error

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *RestApiClient) error {
		c.httpClient = httpClient
		return nil
	}
}

// WithBearerToken adds Authorization header to every request
func WithBearerToken(token string) Option {
	return func(c *RestApiClient) error {
		c.token = token
		return nil
	}
}

func WithLogger(logger log.Logger) Option {
	return func(c *RestApiClient) error {
		c.logger = logger
		return nil
	}
}

// WithRateLimit limits the rate of outgoing requests. Requests wait for their turn.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *RestApiClient) error {
		c.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

func NewRestApiClient(baseUrl string, options ...Option) (*RestApiClient, error) {
	parsed, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidBaseUrl, baseUrl, err)
	}

	client := &RestApiClient{
		baseUrl:    parsed,
		httpClient: &http.Client{},
		logger:     log.NewNopLogger(),
	}

	for _, option := range options {
		if err := option(client); err != nil {
			return nil, err
		}
	}

	return client, nil
}

func (c *RestApiClient) Get(ctx context.Context, endpoint string) (any, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

func (c *RestApiClient) Put(ctx context.Context, endpoint string, body any) (any, error) {
	return c.do(ctx, http.MethodPut, endpoint, body)
}

func (c *RestApiClient) Post(ctx context.Context, endpoint string, body any) (any, error) {
	return c.do(ctx, http.MethodPost, endpoint, body)
}

// MakeUrl constructs fully qualified URL of the given endpoint
func (c *RestApiClient) MakeUrl(endpoint string) (*url.URL, error) {
	return urlForPath(c.baseUrl, endpoint)
}

func (c *RestApiClient) do(ctx context.Context, method, endpoint string, body any) (any, error) {
	targetApi, err := c.MakeUrl(endpoint)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if method != http.MethodGet {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body for %v %v: %w", method, endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	request, err := http.NewRequestWithContext(ctx, method, targetApi.String(), reader)
	if err != nil {
		return nil, err
	}
	request.Header.Add("Accept", "application/json")
	if reader != nil {
		request.Header.Add("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.token))
	}
	requestId := uuid.NewString()
	request.Header.Add(RequestIdHeader, requestId)

	started := time.Now()
	resp, err := c.httpClient.Do(request)
	elapsed := time.Since(started)
	if err != nil {
		c.metrics.observe(method, "error", elapsed)
		level.Debug(c.logger).Log("msg", "request failed", "method", method, "url", targetApi, "requestId", requestId, "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	c.metrics.observe(method, strconv.Itoa(resp.StatusCode), elapsed)
	level.Debug(c.logger).Log("msg", "request", "method", method, "url", targetApi, "requestId", requestId, "status", resp.StatusCode, "duration", elapsed)

	if !isSuccess(resp.StatusCode) {
		return nil, readApiError(resp)
	}

	return parseResponse(resp.Body)
}

func parseResponse(body io.Reader) (any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var result any
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return result, nil
}

var duplicateSlashes = regexp.MustCompile(`/{2,}`)

func urlForPath(baseUrl *url.URL, endpoint string) (*url.URL, error) {
	// Leading slashes are stripped so that "//path" is not parsed as a host
	ref, err := url.Parse("/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	apiPath := strings.TrimRight(baseUrl.Path, "/") + ref.Path

	// baseUrl.JoinPath(path) would clean the path and drop a trailing slash
	return &url.URL{
		Scheme:   baseUrl.Scheme,
		Opaque:   baseUrl.Opaque,
		User:     baseUrl.User,
		Host:     baseUrl.Host,
		Path:     duplicateSlashes.ReplaceAllString(apiPath, "/"),
		RawQuery: ref.RawQuery,
	}, nil
}
