package engine

import (
	"net/url"
)

// internalParams are consumed by the edge itself and never forwarded to
// the destination.
var internalParams = map[string]bool{
	"pw": true,
}

// applyUTMTags appends the link's configured UTM parameters to the
// destination. A parameter the destination URL already sets wins over the
// link-level tag.
func applyUTMTags(destination string, tags map[string]string) string {
	if len(tags) == 0 {
		return destination
	}

	parsed, err := url.Parse(destination)
	if err != nil {
		return destination
	}

	query := parsed.Query()
	changed := false
	for name, value := range tags {
		if query.Has(name) {
			continue
		}
		query.Set(name, value)
		changed = true
	}

	if !changed {
		return destination
	}

	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// mergeQuery merges the inbound query string into the destination URL.
// A destination-defined parameter of the same name wins: inbound values are
// only appended where the destination doesn't already set them, so a UTM
// campaign baked into the link can't be clobbered by the request. Nothing
// is silently dropped otherwise.
func mergeQuery(destination string, inbound url.Values) string {
	if len(inbound) == 0 {
		return destination
	}

	parsed, err := url.Parse(destination)
	if err != nil {
		// An unparseable destination is served as stored
		return destination
	}

	query := parsed.Query()
	changed := false
	for name, values := range inbound {
		if internalParams[name] || query.Has(name) || len(values) == 0 {
			continue
		}
		query[name] = values
		changed = true
	}

	if !changed {
		return destination
	}

	parsed.RawQuery = query.Encode()
	return parsed.String()
}
