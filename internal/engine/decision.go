package engine

import (
	"net/url"

	"linkedge/internal/domain"
)

// DecisionKind enumerates every response the edge can produce.
// The renderer is the single consumer; adding a response kind means adding
// a case here and a branch there, nowhere else.
type DecisionKind int

const (
	// DecisionRedirect is a plain HTTP redirect to Decision.URL
	DecisionRedirect DecisionKind = iota
	// DecisionPasswordWall serves the password-entry page
	DecisionPasswordWall
	// DecisionDeepLink serves the interstitial that tries the native app
	// URI and falls back to the web destination client-side
	DecisionDeepLink
	// DecisionCloak serves the destination inside an iframe, keeping the
	// short URL in the address bar
	DecisionCloak
	// DecisionPlaceholder serves the domain placeholder page
	DecisionPlaceholder
	// DecisionBlock serves the block page; the destination never leaks
	DecisionBlock
	// DecisionNotFound is a plain 404
	DecisionNotFound
	// DecisionGone is a 410 for archived or expired links
	DecisionGone
	// DecisionError is the generic failure page for transient errors
	DecisionError
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionRedirect:
		return "redirect"
	case DecisionPasswordWall:
		return "password"
	case DecisionDeepLink:
		return "deeplink"
	case DecisionCloak:
		return "cloak"
	case DecisionPlaceholder:
		return "placeholder"
	case DecisionBlock:
		return "block"
	case DecisionNotFound:
		return "not_found"
	case DecisionGone:
		return "gone"
	default:
		return "error"
	}
}

// Decision is the tagged result of the redirect engine: one concrete HTTP
// response, ready for the renderer.
type Decision struct {
	Kind   DecisionKind
	URL    string // destination for Redirect/Cloak; app URI fallback target for DeepLink
	Status int    // HTTP status for Redirect

	// DeepLink fields
	AppURL string // native-app URI the interstitial tries first

	// Page context
	Link          *domain.Link // for cloak OG metadata and password wall
	Domain        string       // for placeholder and password pages
	Key           string
	WrongPassword bool // password wall: show the "incorrect password" notice

	// RecordClick marks decisions that count as an admitted resolution;
	// only those feed the click recorder
	RecordClick bool
}

// RequestContext is the request-derived input to the decision engine:
// everything the state machine needs, already parsed, with no net/http
// dependency so tests can construct it directly.
type RequestContext struct {
	Query           url.Values // inbound query string (UTM passthrough source)
	Country         string     // ISO country code from the edge geo headers
	OS              string     // "ios", "android", or ""
	Device          string     // "desktop", "mobile", "tablet"
	PasswordAttempt string     // from ?pw= or the wall form POST; empty = none
	Bot             bool
}
