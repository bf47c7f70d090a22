package domain

import (
	"errors"
	"net/http"
	"time"
)

// Link represents a short link in our system, keyed by its (domain, key)
// pair. This is our "domain model" - it carries the denormalized record the
// edge needs to answer a request without touching the dashboard's tables.
//
// The (domain, key) pair is globally unique and immutable once created;
// key rotation is modeled as delete+create upstream.
type Link struct {
	ID           string     // UUID for internal identification
	Domain       string     // Short domain (e.g., "lnk.sh")
	Key          string     // The short identifier (e.g., "github")
	URL          string     // The destination URL to redirect to
	PasswordHash *string    // bcrypt hash; nil = not password-protected
	ExpiresAt    *time.Time // Optional expiration time (pointer = nullable)
	ExpiredURL   *string    // Where to send traffic after expiration (nil = 410)
	Archived     bool       // Archived links never redirect
	Proxy        bool       // Serve destination in an iframe (cloaking)
	OGTitle      string     // Open Graph metadata for cloaked pages
	OGDescription string
	OGImage      string
	IOS          *string           // Deep-link destination for iOS user agents
	Android      *string           // Deep-link destination for Android user agents
	Geo          map[string]string // ISO country code -> override destination
	RedirectCode int               // 301/302/307/308; zero value means default

	// Link-level UTM tags, appended to the destination on every redirect.
	// A parameter already present in the destination URL itself still wins.
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string
	WorkspaceID  string            // Owning workspace (external collaborator)
	PublicStats  bool              // Whether the stats page is public
	CreatedAt    time.Time
}

// Outcome sentinels surfaced by the resolver and reputation filter.
// The decision engine is the only place these map to HTTP responses.
var (
	ErrNotFound       = errors.New("link not found")
	ErrExpired        = errors.New("link has expired")
	ErrArchived       = errors.New("link is archived")
	ErrBlocked        = errors.New("destination is blocked")
	ErrTransient      = errors.New("backing store unavailable")
	ErrInvalidRequest = errors.New("malformed domain or key")
)

// DefaultRedirectStatus preserves method and body semantics across the hop.
const DefaultRedirectStatus = http.StatusTemporaryRedirect

// IsExpired reports whether the link has passed its expiration time.
// A nil ExpiresAt means the link never expires.
func (l *Link) IsExpired() bool {
	if l.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*l.ExpiresAt)
}

// HasPassword reports whether the link is password-protected.
func (l *Link) HasPassword() bool {
	return l.PasswordHash != nil && *l.PasswordHash != ""
}

// RedirectStatus returns the HTTP status to use for a plain redirect.
// Only the four redirect codes are honored; anything else falls back to
// the 307 default so a bad row can never downgrade to a non-redirect.
func (l *Link) RedirectStatus() int {
	switch l.RedirectCode {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return l.RedirectCode
	}
	return DefaultRedirectStatus
}

// UTMTags returns the link's configured UTM parameters, skipping empty ones.
func (l *Link) UTMTags() map[string]string {
	tags := make(map[string]string, 5)
	for name, value := range map[string]string{
		"utm_source":   l.UTMSource,
		"utm_medium":   l.UTMMedium,
		"utm_campaign": l.UTMCampaign,
		"utm_term":     l.UTMTerm,
		"utm_content":  l.UTMContent,
	} {
		if value != "" {
			tags[name] = value
		}
	}
	return tags
}

// GeoTarget returns the override destination for a country code, if any.
func (l *Link) GeoTarget(country string) (string, bool) {
	if len(l.Geo) == 0 || country == "" {
		return "", false
	}
	target, ok := l.Geo[country]
	return target, ok && target != ""
}
