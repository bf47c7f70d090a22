package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClickEvent is an immutable fact recorded once per admitted request.
// It is consumed asynchronously by the analytics pipeline (external
// collaborator); the edge never blocks on it and never mutates it.
//
// The event carries its own UUID so downstream aggregation can deduplicate
// under at-least-once delivery.
type ClickEvent struct {
	ID        string    // UUID, assigned at creation
	Timestamp time.Time // When the click occurred
	LinkID    string    // Resolved link identity
	Domain    string
	Key       string
	URL       string // Final destination the client was sent to

	// Request metadata
	IP        string
	Country   string // IP-derived geo, from trusted edge headers
	City      string
	Region    string
	Continent string
	Device    string // desktop / mobile / tablet
	Browser   string
	OS        string
	Referrer  string
	Bot       bool

	// UTM parameters captured from the inbound query string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string
}

// NewClickEvent creates a click event for a resolved link.
func NewClickEvent(link *Link, destination string) *ClickEvent {
	return &ClickEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		LinkID:    link.ID,
		Domain:    link.Domain,
		Key:       link.Key,
		URL:       destination,
	}
}
