package gort

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	defaultClientTimeout = 10 * time.Second
	defaultMaxRetries    = 3
	defaultBackoffFactor = 2.0
)

// RequestDecorator mutates an outgoing request before it is sent.
//
// Decorators run on every attempt, in the order they are configured,
// so that authentication data or tracing headers survive retries.
type RequestDecorator func(req *http.Request) error

// ResponseObserver inspects every response received by a Client,
// including the failed ones.
//
// Observers run before the response body is consumed
// and must not consume it themselves.
type ResponseObserver interface {
	Observe(res *http.Response)
}

// ClientConfig holds the configuration for a throttled HTTP client.
type ClientConfig struct {

	// Throttler is the required throttler that will pace and retry
	// every request sent through the client.
	Throttler RequestThrottler

	// HTTPClient is the underlying HTTP client.
	// When not specified, a client with a 10 seconds timeout is used.
	HTTPClient *http.Client

	// MaxRetries is the number of additional attempts allowed after
	// a failed one.
	// When not specified, a default value of 3 is assumed
	// (up to 4 total attempts).
	MaxRetries int

	// DisableRetries makes the client fail on the first error,
	// regardless of MaxRetries.
	DisableRetries bool

	// BackoffFactor is the base of the exponential backoff applied
	// between attempts when the server did not dictate a retry delay.
	// When not specified, a default value of 2 is assumed.
	BackoffFactor float64

	// Decorators are applied to every outgoing request, on every attempt.
	Decorators []RequestDecorator

	// ResponseObservers receive every response for inspection,
	// ex. to track the quota headers returned by the server.
	ResponseObservers []ResponseObserver

	// you can pass your custom logger if you'd like to
	// but it's not required
	Logger Logger
}

// Client is a throttled HTTP client.
//
// Every request sent through it is paced by the configured throttler
// and transparently retried on transient failures, honoring the
// retry delays dictated by the server.
type Client struct {
	throttler     RequestThrottler
	httpClient    *http.Client
	maxRetries    int
	backoffFactor float64
	decorators    []RequestDecorator
	observers     []ResponseObserver
	logger        Logger
}

// NewClient returns a Client built with the specified configuration.
//
// A non-nil error is returned in case of invalid configuration.
func NewClient(config *ClientConfig) (*Client, error) {
	if config.Throttler == nil {
		return nil, &ConfigurationError{
			Param:  "Throttler",
			Reason: "is required",
		}
	}

	effectiveLogger := config.Logger
	if effectiveLogger == nil {
		effectiveLogger = &defaultLogger{}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultClientTimeout,
		}
	}

	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		return nil, &ConfigurationError{
			Param:  "MaxRetries",
			Reason: fmt.Sprintf("should be zero or positive (given: %v)", config.MaxRetries),
		}
	}
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	if config.DisableRetries {
		maxRetries = 0
	}

	backoffFactor := config.BackoffFactor
	if backoffFactor < 0 {
		return nil, &ConfigurationError{
			Param:  "BackoffFactor",
			Reason: fmt.Sprintf("should be greater than 0 (given: %v)", config.BackoffFactor),
		}
	}
	if backoffFactor == 0 {
		backoffFactor = defaultBackoffFactor
	}

	return &Client{
		throttler:     config.Throttler,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		backoffFactor: backoffFactor,
		decorators:    config.Decorators,
		observers:     config.ResponseObservers,
		logger:        effectiveLogger,
	}, nil
}

// Get performs a throttled GET request.
func (c *Client) Get(url string) (*http.Response, error) {
	return c.Do(http.MethodGet, url, "", nil)
}

// Delete performs a throttled DELETE request.
func (c *Client) Delete(url string) (*http.Response, error) {
	return c.Do(http.MethodDelete, url, "", nil)
}

// Post performs a throttled POST request with the given body.
func (c *Client) Post(url string, contentType string, body []byte) (*http.Response, error) {
	return c.Do(http.MethodPost, url, contentType, body)
}

// Put performs a throttled PUT request with the given body.
func (c *Client) Put(url string, contentType string, body []byte) (*http.Response, error) {
	return c.Do(http.MethodPut, url, contentType, body)
}

// Patch performs a throttled PATCH request with the given body.
func (c *Client) Patch(url string, contentType string, body []byte) (*http.Response, error) {
	return c.Do(http.MethodPatch, url, contentType, body)
}

// Do performs a throttled request with the given method.
//
// The body bytes are wrapped in a fresh reader on every attempt,
// so retried requests always resend the full payload.
//
// Responses with a status code below 400 are returned with their body
// untouched, ready for the caller to consume. Failing responses are
// drained, closed and converted to *RequestError: transient failures
// are retried according to the client configuration, everything else
// is returned as is.
func (c *Client) Do(method string, url string, contentType string, body []byte) (*http.Response, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, &ConfigurationError{
			Param:  "method",
			Reason: fmt.Sprintf("unsupported HTTP method (given: %v)", method),
		}
	}

	var response *http.Response

	err := c.throttler.Execute(func(attempt int) error {
		res, err := c.attempt(method, url, contentType, body)
		if err != nil {
			return err
		}
		response = res
		return nil
	}, c.maxRetries, c.backoffFactor)

	if err != nil {
		return nil, err
	}

	return response, nil
}

// attempt performs a single request attempt, converting failures
// to the error types understood by the retry policy.
func (c *Client) attempt(method string, url string, contentType string, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		// a request that cannot even be built will never succeed,
		// no matter how many times it is retried.
		return nil, &ConfigurationError{
			Param:  "url",
			Reason: fmt.Sprintf("cannot build a request for %q: %v", url, err),
		}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for _, decorator := range c.decorators {
		if err := decorator(req); err != nil {
			return nil, fmt.Errorf("error decorating request: %w", err)
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		// transport-level failure: no response, no status code.
		return nil, &RequestError{
			Err: err,
		}
	}

	for _, observer := range c.observers {
		observer.Observe(res)
	}

	if res.StatusCode < 400 {
		return res, nil
	}

	// the attempt failed: consume the response
	// and convert it to a RequestError.
	defer res.Body.Close()
	resBody, readErr := io.ReadAll(res.Body)
	if readErr != nil {
		resBody = nil
	}

	requestError := &RequestError{
		StatusCode: res.StatusCode,
		Body:       resBody,
	}

	if retryIn, ok := parseRetryAfter(res.Header.Get("Retry-After")); ok {
		requestError.RetryInAvailable = true
		requestError.RetryIn = retryIn
	}

	return nil, requestError
}

// parseRetryAfter interprets a Retry-After header value, accepting
// both the delta-seconds and the HTTP-date forms.
//
// A date in the past yields a zero wait, not a missing one:
// the server did dictate a delay, it just already expired.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}

// HeaderDecorator returns a RequestDecorator setting a fixed header
// on every outgoing request.
func HeaderDecorator(key string, value string) RequestDecorator {
	return func(req *http.Request) error {
		req.Header.Set(key, value)
		return nil
	}
}

// QueryDecorator returns a RequestDecorator adding a fixed query
// parameter to every outgoing request, preserving the existing ones.
//
// It is useful for APIs that authenticate through a token
// query parameter.
func QueryDecorator(key string, value string) RequestDecorator {
	return func(req *http.Request) error {
		q := req.URL.Query()
		q.Set(key, value)
		req.URL.RawQuery = q.Encode()
		return nil
	}
}
