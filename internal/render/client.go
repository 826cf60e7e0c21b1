package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxPages is the largest page count accepted from the converter.
const DefaultMaxPages = 2000

// Static errors for render client operations.
var (
	// ErrBaseURLRequired is returned when the converter base URL is not provided.
	ErrBaseURLRequired = errors.New("render: converter base URL is required")
	// ErrConversionFailed is returned when the converter rejects or fails a package.
	ErrConversionFailed = errors.New("render: conversion failed")
	// ErrDownloadFailed is returned when a rendered page image cannot be downloaded.
	ErrDownloadFailed = errors.New("render: download failed")
	// ErrInvalidResponse is returned when the converter answers with an unusable body.
	ErrInvalidResponse = errors.New("render: invalid converter response")
	// ErrImageTooLarge is returned when a page image exceeds the configured limit.
	ErrImageTooLarge = errors.New("render: image too large")
)

// Client defines the interface for interacting with the conversion service.
type Client interface {
	// Submit uploads the package once and returns the page count and download locators.
	Submit(ctx context.Context, filename string, data []byte) (Conversion, error)

	// Fetch downloads one rendered page image.
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// HTTPClient is the HTTP implementation of the Client interface.
type HTTPClient struct {
	baseURL         *url.URL
	httpClient      *http.Client
	convertTimeout  time.Duration
	downloadTimeout time.Duration
	maxImageBytes   int64
	maxPages        int
	maxRetries      int
	baseBackoff     time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithConvertTimeout bounds the duration of a single Submit call.
func WithConvertTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.convertTimeout = d
	}
}

// WithDownloadTimeout bounds the duration of a single Fetch call.
func WithDownloadTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.downloadTimeout = d
	}
}

// WithMaxImageBytes limits the size of a downloaded page image.
func WithMaxImageBytes(n int64) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxImageBytes = n
	}
}

// WithMaxPages limits the page count a conversion may report.
func WithMaxPages(n int) ClientOption {
	return func(hc *HTTPClient) {
		if n > 0 {
			hc.maxPages = n
		}
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
// The default is zero: every call is attempted exactly once.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new conversion service HTTP client.
// The client holds no state between calls besides its configuration.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("render: invalid base URL %q", baseURL)
	}

	c := &HTTPClient{
		baseURL:         u,
		httpClient:      &http.Client{},
		convertTimeout:  5 * time.Minute,
		downloadTimeout: 30 * time.Second,
		maxImageBytes:   64 << 20,
		maxPages:        DefaultMaxPages,
		baseBackoff:     500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Submit uploads the package to the converter's /convert endpoint.
// Any transport failure, non-2xx status or unusable body is reported as
// ErrConversionFailed, carrying the converter's own error message when present.
func (c *HTTPClient) Submit(ctx context.Context, filename string, data []byte) (Conversion, error) {
	body, contentType, err := multipartBody(filename, data)
	if err != nil {
		return Conversion{}, fmt.Errorf("%w: build request: %v", ErrConversionFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.convertTimeout)
	defer cancel()

	respBody, err := c.doRequestWithRetry(ctx, http.MethodPost, c.resolve("/convert"), body, contentType, 0)
	if err != nil {
		return Conversion{}, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	var resp convertResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Conversion{}, fmt.Errorf("%w: %w: %v", ErrConversionFailed, ErrInvalidResponse, err)
	}
	if resp.TotalPages < 0 {
		return Conversion{}, fmt.Errorf("%w: %w: negative page count %d", ErrConversionFailed, ErrInvalidResponse, resp.TotalPages)
	}
	if resp.TotalPages > c.maxPages {
		return Conversion{}, fmt.Errorf("%w: %w: page count %d exceeds limit %d", ErrConversionFailed, ErrInvalidResponse, resp.TotalPages, c.maxPages)
	}

	return Conversion{
		PageCount:     resp.TotalPages,
		ImageLocators: resp.ImageDownloadURLs,
	}, nil
}

// Fetch downloads one page image. Failures are reported as ErrDownloadFailed.
func (c *HTTPClient) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" {
		return nil, fmt.Errorf("%w: empty locator", ErrDownloadFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	data, err := c.doRequestWithRetry(ctx, http.MethodGet, c.resolve(locator), nil, "", c.maxImageBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body for %s", ErrDownloadFailed, locator)
	}
	return data, nil
}

// resolve turns a locator into an absolute URL against the base address.
func (c *HTTPClient) resolve(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.IsAbs() {
		return locator
	}
	if !strings.HasPrefix(locator, "/") {
		locator = "/" + locator
	}
	return c.baseURL.String() + locator
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
// With maxRetries at zero it is a single attempt.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, contentType string, limit int64) ([]byte, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("render: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		data, err := c.doRequest(ctx, method, url, body, contentType, limit)
		if err == nil {
			return data, nil
		}

		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	if c.maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("render: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request and returns the response body.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, contentType string, limit int64) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("render: create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("render: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	respBody, err := io.ReadAll(reader)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("render: read response: %w", err)}
	}
	if limit > 0 && int64(len(respBody)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, limit)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("status %d: %s", resp.StatusCode, errorDetail(respBody))
		// 5xx and 429 are transient
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: err}
		}
		return nil, err
	}

	return respBody, nil
}

// errorDetail extracts the converter's error message, falling back to the raw body.
func errorDetail(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	if s == "" {
		return "unknown error"
	}
	return s
}

// multipartBody encodes the package as the "file" field of a multipart form.
func multipartBody(filename string, data []byte) ([]byte, string, error) {
	if filename == "" {
		filename = "presentation.pptx"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
