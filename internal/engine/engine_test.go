package engine

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"linkedge/internal/domain"
	"linkedge/internal/reputation"
	"linkedge/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ==================== HELPERS ====================

func newTestEngine() *Engine {
	rep := reputation.NewStatic(
		[]string{"malware.example.com"},
		[]string{"phishing-term"},
		[]string{"allowed.example.com"},
		nil,
		logger.New("error"),
	)
	return New(rep)
}

func testLink(dest string) *domain.Link {
	return &domain.Link{
		ID:     "11111111-1111-1111-1111-111111111111",
		Domain: "lnk.sh",
		Key:    "github",
		URL:    dest,
	}
}

func strptr(s string) *string { return &s }

// ==================== TERMINAL STATES ====================

func TestDecide_PlainRedirect(t *testing.T) {
	e := newTestEngine()

	d := e.Decide(testLink("https://github.com/example"), RequestContext{})

	assert.Equal(t, DecisionRedirect, d.Kind)
	assert.Equal(t, "https://github.com/example", d.URL)
	assert.Equal(t, http.StatusTemporaryRedirect, d.Status)
	assert.True(t, d.RecordClick)
}

func TestDecide_PerLinkRedirectStatus(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com")
	link.RedirectCode = http.StatusMovedPermanently

	d := e.Decide(link, RequestContext{})
	assert.Equal(t, http.StatusMovedPermanently, d.Status)

	// A bogus code can never downgrade to a non-redirect
	link.RedirectCode = 200
	d = e.Decide(link, RequestContext{})
	assert.Equal(t, http.StatusTemporaryRedirect, d.Status)
}

func TestDecide_ArchivedAlwaysGone(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com") // destination is perfectly valid
	link.Archived = true

	d := e.Decide(link, RequestContext{})
	assert.Equal(t, DecisionGone, d.Kind)
	assert.Empty(t, d.URL)
	assert.False(t, d.RecordClick)
}

func TestDecide_Expired(t *testing.T) {
	e := newTestEngine()

	past := time.Now().Add(-time.Hour)
	link := testLink("https://example.com")
	link.ExpiresAt = &past

	d := e.Decide(link, RequestContext{})
	assert.Equal(t, DecisionGone, d.Kind)
}

func TestDecide_ExpiredWithExpirationPage(t *testing.T) {
	e := newTestEngine()

	past := time.Now().Add(-time.Hour)
	link := testLink("https://example.com")
	link.ExpiresAt = &past
	link.ExpiredURL = strptr("https://example.com/expired")

	d := e.Decide(link, RequestContext{})
	assert.Equal(t, DecisionRedirect, d.Kind)
	assert.Equal(t, "https://example.com/expired", d.URL)
}

// ==================== PASSWORD GATE ====================

func TestDecide_PasswordWall(t *testing.T) {
	e := newTestEngine()

	hash, err := bcrypt.GenerateFromPassword([]byte("abc"), bcrypt.MinCost)
	require.NoError(t, err)

	link := testLink("https://example.com/secret-destination")
	link.PasswordHash = strptr(string(hash))

	// No credential: wall, and the destination must not leak
	d := e.Decide(link, RequestContext{})
	assert.Equal(t, DecisionPasswordWall, d.Kind)
	assert.Empty(t, d.URL)
	assert.False(t, d.RecordClick)

	// Wrong credential: wall again, flagged
	d = e.Decide(link, RequestContext{PasswordAttempt: "wrong"})
	assert.Equal(t, DecisionPasswordWall, d.Kind)
	assert.True(t, d.WrongPassword)

	// Correct credential: proceed to the redirect
	d = e.Decide(link, RequestContext{PasswordAttempt: "abc"})
	assert.Equal(t, DecisionRedirect, d.Kind)
	assert.Equal(t, "https://example.com/secret-destination", d.URL)
	assert.True(t, d.RecordClick)
}

func TestDecide_PasswordGatesDeepLink(t *testing.T) {
	e := newTestEngine()

	hash, err := bcrypt.GenerateFromPassword([]byte("abc"), bcrypt.MinCost)
	require.NoError(t, err)

	link := testLink("https://example.com")
	link.PasswordHash = strptr(string(hash))
	link.IOS = strptr("myapp://open")

	// Password verification gates all later states: an iOS request
	// without the credential still sees the wall, not the deep link
	d := e.Decide(link, RequestContext{OS: "ios"})
	assert.Equal(t, DecisionPasswordWall, d.Kind)

	d = e.Decide(link, RequestContext{OS: "ios", PasswordAttempt: "abc"})
	assert.Equal(t, DecisionDeepLink, d.Kind)
	assert.Equal(t, "myapp://open", d.AppURL)
}

// ==================== TARGETING ====================

func TestDecide_GeoOverride(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com/global")
	link.Geo = map[string]string{"DE": "https://example.de/lokal"}

	d := e.Decide(link, RequestContext{Country: "DE"})
	assert.Equal(t, DecisionRedirect, d.Kind)
	assert.Equal(t, "https://example.de/lokal", d.URL)

	d = e.Decide(link, RequestContext{Country: "FR"})
	assert.Equal(t, "https://example.com/global", d.URL)
}

func TestDecide_DeepLinkPerOS(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com/web")
	link.IOS = strptr("myapp://ios")
	link.Android = strptr("intent://android")

	d := e.Decide(link, RequestContext{OS: "ios"})
	assert.Equal(t, DecisionDeepLink, d.Kind)
	assert.Equal(t, "myapp://ios", d.AppURL)
	assert.Equal(t, "https://example.com/web", d.URL)

	d = e.Decide(link, RequestContext{OS: "android"})
	assert.Equal(t, "intent://android", d.AppURL)

	// Desktop never sees the interstitial
	d = e.Decide(link, RequestContext{})
	assert.Equal(t, DecisionRedirect, d.Kind)
}

func TestDecide_Cloak(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com/page")
	link.Proxy = true
	link.OGTitle = "Example"

	d := e.Decide(link, RequestContext{})
	assert.Equal(t, DecisionCloak, d.Kind)
	assert.Equal(t, "https://example.com/page", d.URL)
	assert.True(t, d.RecordClick)
}

// ==================== REPUTATION ====================

func TestDecide_BlockedDestinationNeverServed(t *testing.T) {
	e := newTestEngine()

	// The link record is well-formed and unexpired, but the destination
	// has been taken down; the block page wins
	d := e.Decide(testLink("https://malware.example.com/payload"), RequestContext{})
	assert.Equal(t, DecisionBlock, d.Kind)
	assert.Empty(t, d.URL)
	assert.False(t, d.RecordClick)
}

func TestDecide_BlockedGeoOverrideDestination(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com/ok")
	link.Geo = map[string]string{"US": "https://malware.example.com/us"}

	// The override target is checked, not just the base URL
	d := e.Decide(link, RequestContext{Country: "US"})
	assert.Equal(t, DecisionBlock, d.Kind)
}

func TestDecide_AllowlistBeatsBlockedTerm(t *testing.T) {
	e := newTestEngine()

	d := e.Decide(testLink("https://allowed.example.com/phishing-term"), RequestContext{})
	assert.Equal(t, DecisionRedirect, d.Kind)
}

// ==================== UTM PASSTHROUGH ====================

func TestDecide_UTMPassthrough(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com?utm_medium=email")
	inbound := url.Values{"utm_source": []string{"foo"}}

	d := e.Decide(link, RequestContext{Query: inbound})
	require.Equal(t, DecisionRedirect, d.Kind)

	parsed, err := url.Parse(d.URL)
	require.NoError(t, err)
	query := parsed.Query()

	// Both parameters survive; nothing is silently dropped
	assert.Equal(t, "foo", query.Get("utm_source"))
	assert.Equal(t, "email", query.Get("utm_medium"))
}

func TestDecide_UTMDestinationWins(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com?utm_source=newsletter")
	inbound := url.Values{"utm_source": []string{"override-attempt"}}

	d := e.Decide(link, RequestContext{Query: inbound})
	parsed, err := url.Parse(d.URL)
	require.NoError(t, err)

	// The destination's own parameter is never overwritten
	assert.Equal(t, "newsletter", parsed.Query().Get("utm_source"))
}

func TestDecide_LinkUTMTags(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com?utm_source=builder")
	link.UTMMedium = "social"
	link.UTMSource = "link-level" // loses to the destination's own value

	d := e.Decide(link, RequestContext{Query: url.Values{"utm_campaign": []string{"spring"}}})
	parsed, err := url.Parse(d.URL)
	require.NoError(t, err)
	query := parsed.Query()

	assert.Equal(t, "builder", query.Get("utm_source"))
	assert.Equal(t, "social", query.Get("utm_medium"))
	assert.Equal(t, "spring", query.Get("utm_campaign"))
}

func TestDecide_InternalParamsNotForwarded(t *testing.T) {
	e := newTestEngine()

	link := testLink("https://example.com")
	inbound := url.Values{"pw": []string{"secret"}}

	d := e.Decide(link, RequestContext{Query: inbound})
	assert.False(t, strings.Contains(d.URL, "secret"))
}

// ==================== ROOT DECISIONS ====================

func TestDecideRoot_Placeholder(t *testing.T) {
	e := newTestEngine()

	// No configured root target is a valid state: placeholder, not 404
	d := e.DecideRoot(&domain.Domain{Slug: "custom.example.com"}, "custom.example.com", RequestContext{})
	assert.Equal(t, DecisionPlaceholder, d.Kind)

	// Unknown domain: same
	d = e.DecideRoot(nil, "unknown.example.org", RequestContext{})
	assert.Equal(t, DecisionPlaceholder, d.Kind)
}

func TestDecideRoot_ConfiguredRedirect(t *testing.T) {
	e := newTestEngine()

	d := e.DecideRoot(&domain.Domain{
		Slug:    "acme.link",
		RootURL: strptr("https://acme.com"),
	}, "acme.link", RequestContext{})

	assert.Equal(t, DecisionRedirect, d.Kind)
	assert.Equal(t, "https://acme.com", d.URL)
}

// ==================== FAILURE MAPPING ====================

func TestDecideFailure(t *testing.T) {
	e := newTestEngine()

	d := e.DecideFailure(domain.ErrNotFound, "lnk.sh", "nope")
	assert.Equal(t, DecisionNotFound, d.Kind)

	d = e.DecideFailure(domain.ErrTransient, "lnk.sh", "github")
	assert.Equal(t, DecisionError, d.Kind)

	d = e.DecideFailure(domain.ErrInvalidRequest, "lnk.sh", "%%%")
	assert.Equal(t, DecisionNotFound, d.Kind)
}
