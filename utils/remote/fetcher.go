// Package remote downloads HCA files over HTTP.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"haruki-hca/config"
)

const defaultUserAgent = "HarukiHCA"

// ErrNotFound is returned for a 404 response.
var ErrNotFound = errors.New("remote file not found")

// Fetcher downloads files, retrying on transport errors and 5xx responses.
type Fetcher struct {
	client     *resty.Client
	attempts   int
	retryDelay time.Duration
}

func NewFetcher(cfg config.RemoteConfig) *Fetcher {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	client := resty.New()
	client.
		SetRetryCount(0).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}).
		SetHeader("Accept", "*/*").
		SetHeader("User-Agent", userAgent)
	if cfg.Proxy != "" {
		client.SetProxy(cfg.Proxy)
	}

	return &Fetcher{client: client, attempts: 4, retryDelay: time.Second}
}

// Fetch returns the body of url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		resp, err := f.client.R().
			SetContext(ctx).
			Get(url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		switch code := resp.StatusCode(); {
		case code >= 500:
			lastErr = fmt.Errorf("server error: %s", resp.Status())
		case code == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		case code >= 400:
			return nil, fmt.Errorf("request rejected: %s", resp.Status())
		default:
			return resp.Body(), nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", f.attempts, lastErr)
	}
	return nil, errors.New("request failed after retries")
}
