/*
The httpclient package is a thin wrapper around net/http for the library's
side-channel requests (the stream existence probe). It reports non-2xx
responses as a typed HTTPError so callers can branch on the status class, and
can optionally retry with an exponential backoff until the context is
cancelled.
*/
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/lanepoint/kioskstream/logger"
)

const (
	httpTimeout = time.Second * 30
)

type HTTPOptions struct {
	Endpoint string
	Body     io.Reader
	Headers  http.Header
	Params   url.Values
}

type HttpClient struct {
	logger *logger.Logger

	backoffParams *backoff.ExponentialBackOff

	targetUrl string
	body      io.Reader
	headers   http.Header
	params    url.Values
}

func New(
	logger *logger.Logger,
	serviceUrl string,
	options HTTPOptions,
) (*HttpClient, error) {

	if options.Endpoint != "" {
		combo, err := url.ParseRequestURI(serviceUrl)
		if err != nil {
			return nil, err
		}
		combo.Path = path.Join(combo.Path, options.Endpoint)
		serviceUrl = combo.String()
	}

	if options.Headers == nil {
		options.Headers = http.Header{}
	}

	if options.Params == nil {
		options.Params = url.Values{}
	}

	return &HttpClient{
		logger:    logger,
		targetUrl: serviceUrl,
		body:      options.Body,
		headers:   options.Headers,
		params:    options.Params,
	}, nil
}

func NewWithBackoff(
	logger *logger.Logger,
	serviceUrl string,
	options HTTPOptions,
) (*HttpClient, error) {
	client, err := New(logger, serviceUrl, options)
	if err != nil {
		return nil, err
	}

	backoffParams := backoff.NewExponentialBackOff()
	backoffParams.MaxInterval = 15 * time.Minute
	backoffParams.MaxElapsedTime = 72 * time.Hour

	client.backoffParams = backoffParams
	return client, nil
}

func (h *HttpClient) Get(ctx context.Context) (*http.Response, error) {
	return h.execute(http.MethodGet, ctx)
}

func (h *HttpClient) Head(ctx context.Context) (*http.Response, error) {
	return h.execute(http.MethodHead, ctx)
}

func (h *HttpClient) Post(ctx context.Context) (*http.Response, error) {
	return h.execute(http.MethodPost, ctx)
}

func (h *HttpClient) execute(method string, ctx context.Context) (*http.Response, error) {
	// If there is no backoff, then only execute the request once
	if h.backoffParams == nil {
		return h.request(method, ctx)
	}

	// Keep looping through our ticker, waiting for it to tell us when to retry
	ticker := backoff.NewTicker(h.backoffParams)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled before successful http response")
		case _, ok := <-ticker.C:
			if !ok {
				return nil, fmt.Errorf("failed to get successful http response after %s", h.backoffParams.MaxElapsedTime.Round(time.Second))
			}

			response, err := h.request(method, ctx)
			if err == nil {
				return response, nil
			}

			// Client-class errors won't improve with retrying
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
				return response, err
			}

			h.logger.Errorf("retrying in %s: %s", h.backoffParams.NextBackOff().Round(time.Second), err)
		}
	}
}

func (h *HttpClient) request(method string, ctx context.Context) (*http.Response, error) {
	client := http.Client{
		Timeout: httpTimeout,
	}

	request, err := http.NewRequestWithContext(ctx, method, h.targetUrl, h.body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	request.Header = h.headers

	// Add params to request URL
	request.URL.RawQuery = h.params.Encode()

	response, err := client.Do(request)
	if err != nil {
		return response, fmt.Errorf("%s request failed: %w", method, err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return response, &HTTPError{
			StatusCode: response.StatusCode,
			Status:     response.Status,
			Method:     method,
			Url:        h.targetUrl,
		}
	}

	return response, nil
}
