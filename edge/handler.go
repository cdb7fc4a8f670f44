package edge

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// Handler fronts the application origin with the classified caching
// disciplines and keeps the shell reachable offline.
type Handler struct {
	classifier *Classifier
	store      *Store
	fetch      Fetcher
	shellURL   string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	class := h.classifier.Classify(r)

	switch class {
	case ClassBypass:
		h.passthrough(w, r)
		return
	case ClassStaticAsset:
		h.respond(w, r, class)(CacheFirst(ctx, h.store, h.fetch, r))
	case ClassNavigation:
		h.respond(w, r, class)(NetworkFirst(ctx, h.store, h.fetch, r, h.shellURL))
	default:
		h.respond(w, r, class)(NetworkFirst(ctx, h.store, h.fetch, r, ""))
	}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, class Class) func(*CachedResponse, error) {
	return func(resp *CachedResponse, err error) {
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).
				Str("class", class.String()).
				Str("url", Key(r)).
				Msg("request failed with no cached fallback")
			http.Error(w, "upstream unreachable", http.StatusBadGateway)
			return
		}
		for name, values := range resp.Header {
			w.Header()[name] = values
		}
		w.WriteHeader(resp.Status)
		_, _ = w.Write(resp.Body)
	}
}

// passthrough forwards the request without touching the cache at all.
func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request) {
	resp, err := h.fetch.Do(r)
	if err != nil {
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		w.Header()[name] = values
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// Install pre-populates a generation with the shell resources. Failures
// are logged, never fatal; a missing precache entry just means a network
// fetch later.
func (h *Handler) Install(ctx context.Context, generation string, urls []string) {
	for _, rawURL := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("url", rawURL).Msg("precache url invalid")
			continue
		}
		resp, err := h.fetch.Do(req)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("url", rawURL).Msg("precache fetch failed")
			continue
		}
		cached, err := drain(resp)
		if err != nil || !cacheable(http.MethodGet, cached.Status) {
			zerolog.Ctx(ctx).Warn().Str("url", rawURL).Msg("precache response not storable")
			continue
		}
		if err := h.store.PutInto(ctx, generation, http.MethodGet, Key(req), cached); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("url", rawURL).Msg("precache store failed")
		}
	}
}

// Precache bulk-loads URLs into the live generation (the CACHE_URLS
// control message).
func (h *Handler) Precache(ctx context.Context, urls []string) {
	h.Install(ctx, h.store.Generation(), urls)
}

// Activate makes the given generation live and drops all others (the
// SKIP_WAITING control message).
func (h *Handler) Activate(ctx context.Context, generation string) error {
	return h.store.Activate(ctx, generation)
}

func (h *Handler) Generation() string {
	return h.store.Generation()
}

// originFetcher rewrites relative request URLs onto the application
// origin before hitting the network; absolute URLs pass through as-is.
type originFetcher struct {
	origin *url.URL
	client *http.Client
}

func (f *originFetcher) Do(r *http.Request) (*http.Response, error) {
	out := r.Clone(r.Context())
	out.RequestURI = ""
	if out.URL.Scheme == "" {
		out.URL.Scheme = f.origin.Scheme
	}
	if out.URL.Host == "" {
		out.URL.Host = f.origin.Host
		out.Host = f.origin.Host
	}
	return f.client.Do(out)
}

func NewOriginFetcher(appOrigin string, client *http.Client) (Fetcher, error) {
	origin, err := url.Parse(appOrigin)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &originFetcher{
		origin: origin,
		client: client,
	}, nil
}

func NewHandler(classifier *Classifier, store *Store, fetch Fetcher, shellURL string) *Handler {
	return &Handler{
		classifier: classifier,
		store:      store,
		fetch:      fetch,
		shellURL:   shellURL,
	}
}
