package clicks

import (
	"net/http"
	"strings"

	"linkedge/internal/domain"

	"github.com/mileusna/useragent"
)

// DeviceInfo is the parsed user-agent surface the decision engine and the
// click event both consume.
type DeviceInfo struct {
	OS      string // "ios", "android", or ""
	Device  string // "desktop", "mobile", "tablet"
	Browser string
	OSName  string
	Bot     bool
}

// ParseUserAgent classifies the User-Agent header
func ParseUserAgent(uaHeader string) DeviceInfo {
	ua := useragent.Parse(uaHeader)

	info := DeviceInfo{
		Browser: ua.Name,
		OSName:  ua.OS,
		Bot:     ua.Bot,
	}

	switch {
	case ua.Mobile:
		info.Device = "mobile"
	case ua.Tablet:
		info.Device = "tablet"
	default:
		info.Device = "desktop"
	}

	switch ua.OS {
	case useragent.IOS:
		info.OS = "ios"
	case useragent.Android:
		info.OS = "android"
	}

	return info
}

// FromRequest fills a click event with request metadata: client IP,
// edge-provided geo headers, device/browser/OS, referrer, and the UTM
// parameters captured from the inbound query string.
func FromRequest(event *domain.ClickEvent, r *http.Request, info DeviceInfo) *domain.ClickEvent {
	event.IP = ClientIP(r)
	event.Referrer = r.Referer()

	event.Device = info.Device
	event.Browser = info.Browser
	event.OS = info.OSName
	event.Bot = info.Bot

	// Geo comes from trusted edge headers set by the fronting proxy; the
	// handler never does an IP lookup on the hot path
	event.Country = codeHeader(r, "X-Geo-Country", "CF-IPCountry")
	event.City = geoHeader(r, "X-Geo-City")
	event.Region = geoHeader(r, "X-Geo-Region")
	event.Continent = codeHeader(r, "X-Geo-Continent")

	query := r.URL.Query()
	event.UTMSource = query.Get("utm_source")
	event.UTMMedium = query.Get("utm_medium")
	event.UTMCampaign = query.Get("utm_campaign")
	event.UTMTerm = query.Get("utm_term")
	event.UTMContent = query.Get("utm_content")

	return event
}

// ClientIP extracts the client IP address from the request.
// Handles X-Forwarded-For header for proxies/load balancers.
func ClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if ips := strings.Split(forwarded, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// Fall back to RemoteAddr, dropping the port if present
	ip := r.RemoteAddr
	if colonIndex := strings.LastIndex(ip, ":"); colonIndex != -1 {
		ip = ip[:colonIndex]
	}
	return ip
}

// CountryFromRequest returns the edge-provided country code, if any
func CountryFromRequest(r *http.Request) string {
	return codeHeader(r, "X-Geo-Country", "CF-IPCountry")
}

func geoHeader(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// codeHeader normalizes ISO codes to upper case; "XX" means unknown
func codeHeader(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Header.Get(name); v != "" && v != "XX" {
			return strings.ToUpper(v)
		}
	}
	return ""
}
