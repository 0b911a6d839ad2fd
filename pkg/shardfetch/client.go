// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package shardfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher opens a streaming body for a remote file.
//
// size is the announced length in bytes, or -1 when unknown. The caller
// closes body. Implementations must abort when ctx is canceled.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (body io.ReadCloser, size int64, err error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (io.ReadCloser, int64, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	return f(ctx, url)
}

// HTTPFetcher fetches files with plain GET requests. It sends no
// authentication and no Range header. It never retries on its own; the
// fetch loop owns the retry policy.
type HTTPFetcher struct {
	client  *resty.Client
	timeout time.Duration
}

// NewHTTPFetcher builds an HTTPFetcher from settings.
func NewHTTPFetcher(cfg Settings) (*HTTPFetcher, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	c := resty.NewWithClient(NewHTTPClient(timeout)).SetRetryCount(0)
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &HTTPFetcher{client: c, timeout: timeout}, nil
}

// NewHTTPClient creates an HTTP client whose timeouts cover connection
// setup and response headers only. Wrap bodies with NewStallReader to bound
// stalls during the transfer. Other transports reuse it.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// Fetch issues GET url and returns the response body.
func (h *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	ctx, cancel := context.WithCancel(ctx)

	resp, err := h.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		cancel()
		return nil, 0, err
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		if body != nil {
			body.Close()
		}
		cancel()
		return nil, 0, &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status(), URL: url}
	}

	size := int64(-1)
	if resp.RawResponse != nil {
		size = resp.RawResponse.ContentLength
	}
	return NewStallReader(body, h.timeout, cancel), size, nil
}

// stallReader cancels the request when no bytes arrive for timeout.
type stallReader struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	stalled atomic.Bool
	cancel  context.CancelFunc
}

// NewStallReader wraps a response body. When no bytes arrive for timeout it
// calls cancel, which must abort the request owning rc; reads then fail with
// ErrStalled. Close stops the watchdog and calls cancel. A zero timeout
// disables the watchdog.
func NewStallReader(rc io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) io.ReadCloser {
	s := &stallReader{rc: rc, timeout: timeout, cancel: cancel}
	if timeout > 0 {
		s.timer = time.AfterFunc(timeout, func() {
			s.stalled.Store(true)
			cancel()
		})
	}
	return s
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	if n > 0 && s.timer != nil {
		s.timer.Reset(s.timeout)
	}
	if err != nil && err != io.EOF && s.stalled.Load() {
		err = fmt.Errorf("%w: no data for %s", ErrStalled, s.timeout)
	}
	return n, err
}

func (s *stallReader) Close() error {
	if s.timer != nil {
		s.timer.Stop()
	}
	err := s.rc.Close()
	s.cancel()
	return err
}
