package edge

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

type Class int

const (
	// ClassBypass requests must reach the network untouched; caching a
	// cross-origin call would break its credential and CORS semantics.
	ClassBypass Class = iota
	ClassStaticAsset
	ClassNavigation
	ClassDefault
)

func (c Class) String() string {
	switch c {
	case ClassBypass:
		return "bypass"
	case ClassStaticAsset:
		return "static"
	case ClassNavigation:
		return "navigation"
	default:
		return "default"
	}
}

var assetExtensions = map[string]struct{}{
	".js": {}, ".mjs": {}, ".css": {}, ".map": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".otf": {},
	".mp3": {}, ".mp4": {}, ".webm": {}, ".ogg": {}, ".wav": {},
	".wasm": {}, ".json": {}, ".txt": {}, ".webmanifest": {},
}

// Classifier sorts requests into the caching disciplines. Precedence:
// cross-origin passthrough, then static assets, then navigations, then
// everything else.
type Classifier struct {
	appHost      string
	allowedHosts map[string]struct{}
	apiPrefixes  []string
}

func (c *Classifier) Classify(r *http.Request) Class {
	ext := strings.ToLower(path.Ext(r.URL.Path))
	_, isAsset := assetExtensions[ext]

	host := requestHost(r)
	if host != "" && host != c.appHost {
		if _, allowed := c.allowedHosts[host]; !allowed && !isAsset {
			return ClassBypass
		}
	}

	if isAsset {
		return ClassStaticAsset
	}

	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return ClassNavigation
	}
	if r.URL.Path == "/" || strings.HasSuffix(r.URL.Path, ".html") || strings.HasSuffix(r.URL.Path, ".htm") {
		return ClassNavigation
	}
	if ext == "" && !c.isAPIPath(r.URL.Path) {
		return ClassNavigation
	}

	return ClassDefault
}

func (c *Classifier) isAPIPath(p string) bool {
	for _, prefix := range c.apiPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// requestHost is empty for relative URLs, which count as same-origin.
func requestHost(r *http.Request) string {
	if r.URL.Host != "" {
		return strings.ToLower(r.URL.Host)
	}
	return ""
}

func NewClassifier(appOrigin string, allowedHosts, apiPrefixes []string) (*Classifier, error) {
	origin, err := url.Parse(appOrigin)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, host := range allowedHosts {
		allowed[strings.ToLower(host)] = struct{}{}
	}

	if len(apiPrefixes) == 0 {
		apiPrefixes = []string{"/api/"}
	}

	return &Classifier{
		appHost:      strings.ToLower(origin.Host),
		allowedHosts: allowed,
		apiPrefixes:  apiPrefixes,
	}, nil
}
