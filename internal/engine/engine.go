package engine

import (
	"errors"

	"linkedge/internal/domain"
	"linkedge/internal/metrics"
	"linkedge/internal/reputation"

	"golang.org/x/crypto/bcrypt"
)

// Reputation is the destination-checking capability the engine needs
type Reputation interface {
	Check(rawURL string) reputation.Verdict
}

// Engine is the redirect decision state machine. It turns a resolved link
// plus request context into exactly one Decision; it performs no I/O beyond
// the in-memory reputation snapshot, so it stays on the hot path.
type Engine struct {
	reputation Reputation
}

// New creates a decision engine
func New(rep Reputation) *Engine {
	return &Engine{reputation: rep}
}

// Decide runs the state machine over a resolved link.
//
// State order, first terminal state wins:
//
//	archived -> expired -> password -> geo override -> device deep link
//	-> cloak -> plain redirect
//
// Password verification gates all later states: a protected link never
// leaks its geo override, deep link, or destination before the password
// is verified.
//
// The reputation check runs against the final destination immediately
// before any state that would serve it. Takedowns must beat stale link
// records, so even a well-formed, unexpired link to a blocked destination
// renders the block page.
func (e *Engine) Decide(link *domain.Link, req RequestContext) Decision {
	if link.Archived {
		return e.done(Decision{Kind: DecisionGone, Domain: link.Domain, Key: link.Key})
	}

	if link.IsExpired() {
		if link.ExpiredURL != nil && *link.ExpiredURL != "" {
			return e.serveDestination(link, *link.ExpiredURL, req, false)
		}
		return e.done(Decision{Kind: DecisionGone, Domain: link.Domain, Key: link.Key})
	}

	if link.HasPassword() {
		if req.PasswordAttempt == "" {
			return e.done(Decision{
				Kind:   DecisionPasswordWall,
				Link:   link,
				Domain: link.Domain,
				Key:    link.Key,
			})
		}
		if bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(req.PasswordAttempt)) != nil {
			return e.done(Decision{
				Kind:          DecisionPasswordWall,
				Link:          link,
				Domain:        link.Domain,
				Key:           link.Key,
				WrongPassword: true,
			})
		}
		// Verified; fall through to the remaining states
	}

	destination := link.URL
	if target, ok := link.GeoTarget(req.Country); ok {
		destination = target
	}

	// OS-specific deep links only fire for the matching mobile OS; the
	// interstitial falls back to the web destination by client-side timer
	// (the server cannot observe whether the app opened)
	switch req.OS {
	case "ios":
		if link.IOS != nil && *link.IOS != "" {
			return e.serveDeepLink(link, *link.IOS, destination, req)
		}
	case "android":
		if link.Android != nil && *link.Android != "" {
			return e.serveDeepLink(link, *link.Android, destination, req)
		}
	}

	return e.serveDestination(link, destination, req, link.Proxy)
}

// DecideRoot handles a request with no key segment. A domain with no
// configured root target is a valid, if unconfigured, state: it renders
// the placeholder page, never a 404.
// d may be nil for domains unknown to the platform.
func (e *Engine) DecideRoot(d *domain.Domain, slug string, req RequestContext) Decision {
	if d == nil || !d.HasRootRedirect() {
		return e.done(Decision{Kind: DecisionPlaceholder, Domain: slug})
	}

	destination := *d.RootURL
	if e.blocked(destination) {
		return e.done(Decision{Kind: DecisionBlock, Domain: slug})
	}

	return e.done(Decision{
		Kind:   DecisionRedirect,
		URL:    mergeQuery(destination, req.Query),
		Status: domain.DefaultRedirectStatus,
		Domain: slug,
	})
}

// DecideFailure maps resolver outcomes that carry no link to a Decision.
// This keeps the engine as the single place where outcomes become
// responses; the HTTP layer never interprets resolver errors itself.
func (e *Engine) DecideFailure(err error, slug, key string) Decision {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return e.done(Decision{Kind: DecisionNotFound, Domain: slug, Key: key})
	case errors.Is(err, domain.ErrInvalidRequest):
		return e.done(Decision{Kind: DecisionNotFound, Domain: slug, Key: key})
	default:
		// Transient store failure: serve the generic error page, and
		// never let it masquerade as a cacheable not-found
		return e.done(Decision{Kind: DecisionError, Domain: slug, Key: key})
	}
}

// serveDestination finishes the state machine for a concrete destination:
// block check, UTM merge, then cloak or plain redirect.
func (e *Engine) serveDestination(link *domain.Link, destination string, req RequestContext, cloak bool) Decision {
	if e.blocked(destination) {
		return e.done(Decision{Kind: DecisionBlock, Domain: link.Domain, Key: link.Key})
	}

	// Precedence: destination's own query > link-level UTM tags > inbound
	final := mergeQuery(applyUTMTags(destination, link.UTMTags()), req.Query)

	if cloak {
		return e.done(Decision{
			Kind:        DecisionCloak,
			URL:         final,
			Link:        link,
			Domain:      link.Domain,
			Key:         link.Key,
			RecordClick: true,
		})
	}

	return e.done(Decision{
		Kind:        DecisionRedirect,
		URL:         final,
		Status:      link.RedirectStatus(),
		Link:        link,
		Domain:      link.Domain,
		Key:         link.Key,
		RecordClick: true,
	})
}

func (e *Engine) serveDeepLink(link *domain.Link, appURL, webDestination string, req RequestContext) Decision {
	// Both legs are checked: a blocked destination must not be reachable
	// through the app URI either
	if e.blocked(webDestination) || e.blocked(appURL) {
		return e.done(Decision{Kind: DecisionBlock, Domain: link.Domain, Key: link.Key})
	}

	return e.done(Decision{
		Kind:        DecisionDeepLink,
		AppURL:      appURL,
		URL:         mergeQuery(applyUTMTags(webDestination, link.UTMTags()), req.Query),
		Link:        link,
		Domain:      link.Domain,
		Key:         link.Key,
		RecordClick: true,
	})
}

func (e *Engine) blocked(destination string) bool {
	if e.reputation == nil {
		return false
	}
	verdict := e.reputation.Check(destination)
	if verdict == reputation.Blocked {
		metrics.BlockedDestinationsTotal.Inc()
		return true
	}
	return false
}

func (e *Engine) done(d Decision) Decision {
	metrics.RecordDecision(d.Kind.String())
	return d
}
