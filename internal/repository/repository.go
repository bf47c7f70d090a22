package repository

import (
	"context"

	"linkedge/internal/domain"
)

// LinkStore is the read interface over the link source of truth.
// The dashboard (an external collaborator) owns the write side; the edge
// only reads, and only on cache miss.
//
// Implementations must return domain.ErrNotFound (wrapped or bare) when no
// row matches, so the resolver can tell "confirmed absent" (tombstone it)
// apart from "store unavailable" (never tombstone that).
type LinkStore interface {
	// FindByDomainAndKey retrieves a link by its identity pair.
	// The key is already normalized by the classifier.
	FindByDomainAndKey(ctx context.Context, linkDomain, key string) (*domain.Link, error)
}

// DomainStore is the read interface over registered short domains.
type DomainStore interface {
	// Find retrieves a domain record by its slug
	Find(ctx context.Context, slug string) (*domain.Domain, error)
}

// ClickStore is the durable analytics sink. Append-only: events are
// inserted exactly as emitted and never updated.
type ClickStore interface {
	// Insert appends a click event
	Insert(ctx context.Context, event *domain.ClickEvent) error
}
