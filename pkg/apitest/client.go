// Package apitest provides transports for testing code built on top of repose
// without a real API server.
package apitest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/sre-norns/repose/pkg/api"
	"github.com/stretchr/testify/require"
)

// ErrUnexpectedRequest is returned for a request no response has been registered for
var ErrUnexpectedRequest = fmt.Errorf("unexpected request")

// Request is a record of a single call made through the Client
type Request struct {
	Method   string
	Endpoint string
	Body     any

	// Matched is false if the request had no registered response
	Matched bool
}

type responseKey struct {
	method   string
	endpoint string
}

type response struct {
	data any
	err  error
}

// Client is an api.Client serving registered responses and recording every request made
type Client struct {
	mu        sync.Mutex
	responses map[responseKey]response
	requests  []Request
}

var _ api.Client = (*Client)(nil)

func NewClient() *Client {
	return &Client{
		responses: make(map[responseKey]response),
	}
}

func keyFor(method, endpoint string) responseKey {
	return responseKey{
		method:   strings.ToUpper(method),
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// AddResponse registers data to be returned for every call to the method and endpoint
func (c *Client) AddResponse(method, endpoint string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.responses[keyFor(method, endpoint)] = response{data: data}
}

// AddError registers an error status to be returned for every call to the method and endpoint
func (c *Client) AddError(method, endpoint string, statusCode int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if message == "" {
		message = http.StatusText(statusCode)
	}
	c.responses[keyFor(method, endpoint)] = response{err: &api.ErrorResponse{
		Code:    statusCode,
		Message: message,
	}}
}

// Requests returns a copy of all requests made so far
func (c *Client) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]Request, len(c.requests))
	copy(result, c.requests)
	return result
}

// RequestCount returns number of requests made so far
func (c *Client) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.requests)
}

func (c *Client) Get(ctx context.Context, endpoint string) (any, error) {
	return c.request(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) Put(ctx context.Context, endpoint string, body any) (any, error) {
	return c.request(ctx, http.MethodPut, endpoint, body)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any) (any, error) {
	return c.request(ctx, http.MethodPost, endpoint, body)
}

func (c *Client) request(ctx context.Context, method, endpoint string, body any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyFor(method, endpoint)
	resp, ok := c.responses[key]
	c.requests = append(c.requests, Request{
		Method:   key.method,
		Endpoint: key.endpoint,
		Body:     body,
		Matched:  ok,
	})
	if !ok {
		return nil, fmt.Errorf("%w: %v %v", ErrUnexpectedRequest, key.method, key.endpoint)
	}

	return resp.data, resp.err
}

// AssertCall registers responseData for the method and endpoint, runs fn and
// asserts that fn made exactly one request matching the method and endpoint.
// Request body is compared too, unless expectedBody is nil.
func (c *Client) AssertCall(t testing.TB, method, endpoint string, expectedBody, responseData any, fn func()) {
	t.Helper()

	c.AddResponse(method, endpoint, responseData)
	initialLen := c.RequestCount()

	fn()

	requests := c.Requests()
	require.Greater(t, len(requests), initialLen, "no request was made")
	require.Equal(t, initialLen+1, len(requests), "too many requests were made")

	got := requests[initialLen]
	want := keyFor(method, endpoint)
	require.Equal(t, want.method, got.Method, "methods did not match")
	require.Equal(t, want.endpoint, got.Endpoint, "endpoints did not match")
	if expectedBody != nil {
		require.Equal(t, expectedBody, got.Body, "request data did not match")
	}
}
