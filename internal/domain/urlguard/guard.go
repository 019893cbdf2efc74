package urlguard

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	platformerrors "guardian-shell/internal/platform/errors"
)

// Policy is the static navigation policy for top-frame loads.
type Policy struct {
	AllowedSchemes     []string
	AllowedDomains     []string
	DeniedDomains      []string
	DeniedPathPrefixes []string
}

// Guard decides whether content may replace the main document.
// Subresource loads never reach it.
type Guard struct {
	schemes  map[string]struct{}
	allowed  []string
	denied   []string
	prefixes []string
}

func New(p Policy) *Guard {
	g := &Guard{schemes: make(map[string]struct{}, len(p.AllowedSchemes))}
	for _, s := range p.AllowedSchemes {
		g.schemes[strings.ToLower(strings.TrimSuffix(s, ":"))] = struct{}{}
	}
	g.allowed = normalizeDomains(p.AllowedDomains)
	g.denied = normalizeDomains(p.DeniedDomains)
	for _, prefix := range p.DeniedPathPrefixes {
		prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
		if prefix == "" {
			continue
		}
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		g.prefixes = append(g.prefixes, strings.ToLower(prefix))
	}
	return g
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.ToLower(strings.Trim(strings.TrimSpace(d), "."))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Check returns nil when rawURL may load in the top frame, otherwise a
// KindNavigationDenied error naming the rule that rejected it.
func (g *Guard) Check(rawURL string) error {
	if rawURL == "about:blank" {
		return nil
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" {
		return deny(rawURL, "unparseable url")
	}
	scheme := strings.ToLower(u.Scheme)
	if _, ok := g.schemes[scheme]; !ok {
		return deny(rawURL, fmt.Sprintf("scheme %q is not allowed", scheme))
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return deny(rawURL, "missing host")
	}
	if d, ok := matchSuffix(host, g.denied); ok {
		return deny(rawURL, fmt.Sprintf("host matches denied domain %s", d))
	}
	if _, ok := matchSuffix(host, g.allowed); !ok {
		return deny(rawURL, fmt.Sprintf("host %s is not an allowed domain", host))
	}

	// Prefix rules see the decoded path with dot segments and doubled
	// slashes collapsed.
	clean := strings.ToLower(path.Clean("/" + u.Path))
	for _, prefix := range g.prefixes {
		if clean == prefix || strings.HasPrefix(clean, prefix+"/") {
			return deny(rawURL, fmt.Sprintf("path %s is reserved for the host app", prefix))
		}
	}
	return nil
}

// Allowed is Check reduced to a boolean.
func (g *Guard) Allowed(rawURL string) bool {
	return g.Check(rawURL) == nil
}

// matchSuffix reports whether host is one of domains or a subdomain of one.
func matchSuffix(host string, domains []string) (string, bool) {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}

func deny(rawURL, reason string) error {
	return platformerrors.New(platformerrors.KindNavigationDenied, "urlguard.check",
		fmt.Sprintf("navigation to %s blocked: %s", rawURL, reason))
}
