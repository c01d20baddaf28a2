package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lysyi3m/rss-sync/internal/registry"
)

const maxBodySize = 20 << 20

var ErrBodyTooLarge = errors.New("response body exceeds size limit")

type FetcherConfig struct {
	UserAgent        string
	BrowserUserAgent string
	Timeout          time.Duration
	Retries          int
	RetryInterval    time.Duration
	MaxBodySize      int64
}

type Fetcher struct {
	httpClient *http.Client
	cfg        FetcherConfig
}

func NewFetcher(httpClient *http.Client, cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = maxBodySize
	}
	return &Fetcher{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

// Fetch downloads the feed at def.URL. Unless force is set the request is
// conditional on validators; a 304 answer is returned as a Response with no
// error. Any other non-2xx status, transport failure or timeout comes back
// as a *FetchError. Transient failures are retried within the timeout.
func (f *Fetcher) Fetch(ctx context.Context, def registry.Definition, validators Validators, force bool) (*Response, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var resp *Response
	operation := func() error {
		var err error
		resp, err = f.do(timeoutCtx, def.URL, def, validators, force)
		if err == nil {
			return nil
		}
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && retryable(fetchErr) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.cfg.RetryInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.cfg.Retries)), timeoutCtx))
	if err != nil {
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			err = &FetchError{URL: def.URL, Err: err}
		}
		return nil, err
	}

	return resp, nil
}

// Get downloads an arbitrary page with the request profile of def, without
// validators or retries.
func (f *Fetcher) Get(ctx context.Context, rawURL string, def registry.Definition) (*Response, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	return f.do(timeoutCtx, rawURL, def, Validators{}, true)
}

func (f *Fetcher) do(ctx context.Context, rawURL string, def registry.Definition, validators Validators, force bool) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	f.applyProfile(req, def)

	if !force {
		if validators.Etag != "" {
			req.Header.Set("If-None-Match", validators.Etag)
		}
		if validators.LastModified != "" {
			req.Header.Set("If-Modified-Since", validators.LastModified)
		}
	}

	httpResp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer httpResp.Body.Close()

	resp := &Response{
		URL:          rawURL,
		StatusCode:   httpResp.StatusCode,
		Etag:         httpResp.Header.Get("ETag"),
		LastModified: httpResp.Header.Get("Last-Modified"),
		ContentType:  httpResp.Header.Get("Content-Type"),
	}

	if httpResp.StatusCode == http.StatusNotModified {
		// some servers omit validators on 304
		if resp.Etag == "" {
			resp.Etag = validators.Etag
		}
		if resp.LastModified == "" {
			resp.LastModified = validators.LastModified
		}
		return resp, nil
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 64<<10))
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", httpResp.Status),
		}
	}

	resp.Body, err = io.ReadAll(io.LimitReader(httpResp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if int64(len(resp.Body)) > f.cfg.MaxBodySize {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.cfg.MaxBodySize)}
	}

	return resp, nil
}

// applyProfile sets the user agent and accept headers, then the per-feed
// header overrides on top.
func (f *Fetcher) applyProfile(req *http.Request, def registry.Definition) {
	if def.FakeBrowser {
		req.Header.Set("User-Agent", f.cfg.BrowserUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	} else {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, text/html;q=0.8, */*;q=0.5")
	}

	for name, values := range def.Headers() {
		req.Header.Del(name)
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
}

// retryable reports transient failures: no response at all, 429 and 5xx.
func retryable(err *FetchError) bool {
	switch {
	case errors.Is(err.Err, ErrBodyTooLarge):
		return false
	case err.StatusCode == 0:
		return true
	case err.StatusCode == http.StatusTooManyRequests:
		return true
	case err.StatusCode >= 500:
		return true
	}
	return false
}
