package web

import (
	"net"
	"net/url"
	"strings"
	"time"
)

// Hit is one web search result.
type Hit struct {
	Title       string
	URL         string
	Content     string
	Score       float64
	PublishedAt *time.Time
}

// NormalizeURL returns the dedupe key for a URL: lowercase scheme and host,
// default port dropped, path without trailing slash, no query or fragment.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		host = net.JoinHostPort(host, port)
	}
	return scheme + "://" + host + strings.TrimRight(u.EscapedPath(), "/")
}

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// Dedupe merges per-phrasing result lists, keeping the first occurrence of each
// normalized URL. Order is phrasing order, then rank within a phrasing.
func Dedupe(lists [][]Hit) []Hit {
	seen := make(map[string]struct{})
	out := make([]Hit, 0)
	for _, hits := range lists {
		for _, h := range hits {
			key := NormalizeURL(h.URL)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}
