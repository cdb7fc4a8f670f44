package edge

import (
	"context"
	"io"
	"net/http"
)

// Fetcher performs the actual network call. *http.Client satisfies it.
type Fetcher interface {
	Do(r *http.Request) (*http.Response, error)
}

// Key normalizes a request into its cache key: method-independent URL with
// the fragment stripped. Relative URLs (same-origin traffic through the
// proxy) key on path and query only, so the key does not change when the
// upstream origin moves.
func Key(r *http.Request) string {
	u := *r.URL
	u.Fragment = ""
	if u.Host == "" {
		return u.RequestURI()
	}
	return u.String()
}

// CacheFirst serves from cache when possible; otherwise fetches and stores
// a successful response on the way back. A fetch failure with no cached
// copy propagates to the caller.
func CacheFirst(ctx context.Context, cache Cache, fetch Fetcher, r *http.Request) (*CachedResponse, error) {
	key := Key(r)
	if hit, ok := cache.Match(ctx, r.Method, key); ok {
		return hit, nil
	}

	resp, err := fetch.Do(r)
	if err != nil {
		return nil, err
	}

	cached, err := drain(resp)
	if err != nil {
		return nil, err
	}

	if cacheable(r.Method, cached.Status) {
		// Cache writes never fail the request.
		_ = cache.Put(ctx, r.Method, key, cached)
	}
	return cached, nil
}

// NetworkFirst prefers the network and stores successful responses; on
// network failure it falls back to the cached copy for the exact request,
// then to the cached shell document when shellURL is non-empty. With no
// fallback available the original network error propagates.
func NetworkFirst(ctx context.Context, cache Cache, fetch Fetcher, r *http.Request, shellURL string) (*CachedResponse, error) {
	key := Key(r)

	resp, fetchErr := fetch.Do(r)
	if fetchErr == nil {
		cached, err := drain(resp)
		if err == nil {
			if cacheable(r.Method, cached.Status) {
				_ = cache.Put(ctx, r.Method, key, cached)
			}
			return cached, nil
		}
		fetchErr = err
	}

	if hit, ok := cache.Match(ctx, r.Method, key); ok {
		return hit, nil
	}
	if shellURL != "" {
		if hit, ok := cache.Match(ctx, http.MethodGet, shellURL); ok {
			return hit, nil
		}
	}
	return nil, fetchErr
}

func cacheable(method string, status int) bool {
	return method == http.MethodGet && status >= 200 && status < 300
}

func drain(resp *http.Response) (*CachedResponse, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &CachedResponse{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}
