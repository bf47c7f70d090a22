package classifier

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
	"unicode"

	"linkedge/internal/domain"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind is the classification of an inbound request
type Kind int

const (
	// KindApp is traffic for the dashboard's own hosts; it never reaches
	// the link resolver
	KindApp Kind = iota
	// KindLink is a short-link request: a domain plus a key segment
	KindLink
	// KindRoot is a request to a known (or unknown) domain with no key
	KindRoot
	// KindNotLink is a path that was never meant for the resolver
	// (reserved prefixes, static-asset lookalikes) and must 404
	KindNotLink
)

func (k Kind) String() string {
	switch k {
	case KindApp:
		return "app"
	case KindLink:
		return "link"
	case KindRoot:
		return "root"
	default:
		return "not_link"
	}
}

// Target is the tagged result of classification.
// Key is already normalized and is only set for KindLink.
type Target struct {
	Kind   Kind
	Domain string
	Key    string
}

// ReservedKeys lets the classifier consult the reputation/reserved-key
// config without depending on it directly
type ReservedKeys interface {
	IsReservedKey(key string) bool
}

// reservedPrefixes are path prefixes owned by infrastructure, not links.
// Traffic under them must 404 before the resolver ever sees it.
var reservedPrefixes = map[string]bool{
	"api":         true,
	"_next":       true,
	"_static":     true,
	"static":      true,
	"assets":      true,
	"favicon.ico": true,
	"robots.txt":  true,
	"sitemap.xml": true,
	".well-known": true,
}

// assetExtensions are file extensions that look like static assets.
// Scrapers request these constantly; sending them to the resolver would
// fill the cache with tombstones for garbage keys.
var assetExtensions = map[string]bool{
	".css": true, ".js": true, ".map": true, ".ico": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".webp": true, ".woff": true, ".woff2": true, ".ttf": true,
	".xml": true, ".txt": true, ".json": true, ".php": true,
}

// Classifier parses an inbound host+path into a Target
type Classifier struct {
	appDomains           map[string]bool
	defaultDomains       map[string]bool
	caseSensitiveDomains map[string]bool
	reserved             ReservedKeys
}

// New creates a classifier from the configured domain sets.
// reserved may be nil when no reserved-key source is wired (tests).
func New(appDomains, defaultDomains, caseSensitiveDomains []string, reserved ReservedKeys) *Classifier {
	return &Classifier{
		appDomains:           toSet(appDomains),
		defaultDomains:       toSet(defaultDomains),
		caseSensitiveDomains: toSet(caseSensitiveDomains),
		reserved:             reserved,
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = true
	}
	return set
}

// Classify turns the Host header and request path into a Target.
// Returns domain.ErrInvalidRequest for hosts/keys that are malformed beyond
// classification; those never reach the resolver.
func (c *Classifier) Classify(host, requestPath string) (Target, error) {
	hostname := normalizeHost(host)
	if hostname == "" {
		return Target{}, fmt.Errorf("empty host: %w", domain.ErrInvalidRequest)
	}

	// The dashboard's own hosts (and localhost/preview aliases) are app
	// traffic regardless of path
	if c.appDomains[hostname] || c.isAppAlias(hostname) {
		return Target{Kind: KindApp, Domain: hostname}, nil
	}

	segment, rest := firstSegment(requestPath)
	if segment == "" {
		// No key segment: root request. Unknown domains still classify
		// as Root; the resolver decides what a root request means.
		return Target{Kind: KindRoot, Domain: hostname}, nil
	}

	// Multi-segment paths are not short links
	if rest != "" {
		return Target{Kind: KindNotLink, Domain: hostname}, nil
	}

	if reservedPrefixes[strings.ToLower(segment)] {
		return Target{Kind: KindNotLink, Domain: hostname}, nil
	}
	if assetExtensions[strings.ToLower(path.Ext(segment))] {
		return Target{Kind: KindNotLink, Domain: hostname}, nil
	}
	if c.reserved != nil && c.reserved.IsReservedKey(strings.ToLower(segment)) {
		return Target{Kind: KindNotLink, Domain: hostname}, nil
	}

	key, err := c.NormalizeKey(hostname, segment)
	if err != nil {
		return Target{}, err
	}

	return Target{Kind: KindLink, Domain: hostname, Key: key}, nil
}

// NormalizeKey applies the per-domain key rules:
//
//   - Keys are percent-decoded first, so /caf%C3%A9 and /café are one key.
//   - On our default domains and on ordinary custom domains, keys are
//     case-insensitive and diacritics are stripped, so "CAFÉ" and "cafe"
//     resolve identically. Two keys differing only in case or accents can
//     never be distinct links; this is an anti-phishing measure.
//   - On the case-sensitive allowlist, keys are kept byte-exact.
func (c *Classifier) NormalizeKey(hostname, rawKey string) (string, error) {
	key, err := url.PathUnescape(rawKey)
	if err != nil {
		return "", fmt.Errorf("undecodable key %q: %w", rawKey, domain.ErrInvalidRequest)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("empty key: %w", domain.ErrInvalidRequest)
	}

	if c.caseSensitiveDomains[hostname] {
		return key, nil
	}

	return foldKey(key), nil
}

// IsDefaultDomain reports whether the host is one of our own short domains
func (c *Classifier) IsDefaultDomain(hostname string) bool {
	return c.defaultDomains[hostname]
}

// isAppAlias matches localhost and loopback hosts used by local development
// and preview deployments
func (c *Classifier) isAppAlias(hostname string) bool {
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

// foldKey lowercases the key and strips combining marks
// (NFD decompose, drop Mn runes, NFC recompose)
func foldKey(key string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(key))
	if err != nil {
		// Fold failure leaves a valid UTF-8 lowercased key; resolve with that
		return strings.ToLower(key)
	}
	return folded
}

// normalizeHost strips the port and a leading "www." and lowercases
func normalizeHost(host string) string {
	hostname := strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(hostname); err == nil {
		hostname = h
	}
	return strings.TrimPrefix(hostname, "www.")
}

// firstSegment splits the request path into its first segment and the rest
func firstSegment(requestPath string) (string, string) {
	trimmed := strings.Trim(requestPath, "/")
	if trimmed == "" {
		return "", ""
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i], trimmed[i+1:]
	}
	return trimmed, ""
}
