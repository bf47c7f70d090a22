package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkedge/internal/cache"
	"linkedge/internal/domain"
	"linkedge/internal/repository"
	"linkedge/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Cache is the cache-tier capability the resolver needs.
// An interface here (rather than *cache.Cache) lets tests substitute an
// in-memory fake with controllable TTL and outcomes.
type Cache interface {
	GetLink(ctx context.Context, linkDomain, key string) (*domain.Link, cache.Outcome, error)
	SetLink(ctx context.Context, link *domain.Link) error
	SetLinkTombstone(ctx context.Context, linkDomain, key string) error
	InvalidateLink(ctx context.Context, linkDomain, key string) error

	GetDomain(ctx context.Context, slug string) (*domain.Domain, cache.Outcome, error)
	SetDomain(ctx context.Context, d *domain.Domain) error
	SetDomainTombstone(ctx context.Context, slug string) error
	InvalidateDomain(ctx context.Context, slug string) error
}

// Resolver resolves (domain, key) pairs and domain slugs against the cache
// tier with fallback to the source of truth.
//
// Failure semantics: a transient source-of-truth error surfaces as
// domain.ErrTransient and is never cached. Only a confirmed "no such row"
// becomes a tombstone; caching a transient error would wrongly persist a
// false not-found for the whole negative-TTL window.
type Resolver struct {
	cache   Cache
	links   repository.LinkStore
	domains repository.DomainStore
	timeout time.Duration
	log     *logger.Logger

	// Concurrent misses for the same key collapse into one source-of-truth
	// query; a hot key whose cache entry just expired would otherwise
	// stampede the database
	linkFlight   singleflight.Group
	domainFlight singleflight.Group
}

// New creates a resolver.
// timeout caps each source-of-truth lookup; the hot path must not hang on
// a slow database when it can serve a generic failure instead.
func New(c Cache, links repository.LinkStore, domains repository.DomainStore, timeout time.Duration, log *logger.Logger) *Resolver {
	return &Resolver{
		cache:   c,
		links:   links,
		domains: domains,
		timeout: timeout,
		log:     log.WithComponent("resolver"),
	}
}

// ResolveLink resolves (domain, key) to a link.
// Returns domain.ErrNotFound when the key is confirmed absent and
// domain.ErrTransient when the source of truth could not answer.
func (r *Resolver) ResolveLink(ctx context.Context, linkDomain, key string) (*domain.Link, error) {
	link, outcome, err := r.cache.GetLink(ctx, linkDomain, key)
	if err != nil {
		// A broken cache degrades to source-of-truth reads; it must not
		// take down resolution
		r.log.Warn("cache read failed", "domain", linkDomain, "key", key, "error", err)
	}
	switch outcome {
	case cache.Hit:
		return link, nil
	case cache.Tombstone:
		return nil, fmt.Errorf("%s/%s: %w", linkDomain, key, domain.ErrNotFound)
	}

	flightKey := linkDomain + "/" + key
	result, err, _ := r.linkFlight.Do(flightKey, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		found, lookupErr := r.links.FindByDomainAndKey(lookupCtx, linkDomain, key)
		if lookupErr != nil {
			if errors.Is(lookupErr, domain.ErrNotFound) {
				r.populateLinkTombstone(linkDomain, key)
				return nil, lookupErr
			}
			return nil, fmt.Errorf("link lookup: %v: %w", lookupErr, domain.ErrTransient)
		}

		r.populateLink(found)
		return found, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*domain.Link), nil
}

// ResolveDomain resolves a domain slug to its record, with the same cache
// and failure semantics as ResolveLink.
func (r *Resolver) ResolveDomain(ctx context.Context, slug string) (*domain.Domain, error) {
	d, outcome, err := r.cache.GetDomain(ctx, slug)
	if err != nil {
		r.log.Warn("cache read failed", "domain", slug, "error", err)
	}
	switch outcome {
	case cache.Hit:
		return d, nil
	case cache.Tombstone:
		return nil, fmt.Errorf("%s: %w", slug, domain.ErrNotFound)
	}

	result, err, _ := r.domainFlight.Do(slug, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		found, lookupErr := r.domains.Find(lookupCtx, slug)
		if lookupErr != nil {
			if errors.Is(lookupErr, domain.ErrNotFound) {
				r.populateDomainTombstone(slug)
				return nil, lookupErr
			}
			return nil, fmt.Errorf("domain lookup: %v: %w", lookupErr, domain.ErrTransient)
		}

		r.populateDomain(found)
		return found, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*domain.Domain), nil
}

// InvalidateLink drops the cache entry for a link. Write paths (external
// collaborators) call this synchronously before acknowledging a mutation.
func (r *Resolver) InvalidateLink(ctx context.Context, linkDomain, key string) error {
	return r.cache.InvalidateLink(ctx, linkDomain, key)
}

// InvalidateDomain drops the cache entry for a domain record
func (r *Resolver) InvalidateDomain(ctx context.Context, slug string) error {
	return r.cache.InvalidateDomain(ctx, slug)
}

// Cache population runs off the request path: the response does not wait
// for the cache write, and a failed write only costs a future miss.

func (r *Resolver) populateLink(link *domain.Link) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.cache.SetLink(ctx, link); err != nil {
			r.log.Warn("failed to cache link", "domain", link.Domain, "key", link.Key, "error", err)
		}
	}()
}

func (r *Resolver) populateLinkTombstone(linkDomain, key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.cache.SetLinkTombstone(ctx, linkDomain, key); err != nil {
			r.log.Warn("failed to cache tombstone", "domain", linkDomain, "key", key, "error", err)
		}
	}()
}

func (r *Resolver) populateDomain(d *domain.Domain) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.cache.SetDomain(ctx, d); err != nil {
			r.log.Warn("failed to cache domain", "domain", d.Slug, "error", err)
		}
	}()
}

func (r *Resolver) populateDomainTombstone(slug string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.cache.SetDomainTombstone(ctx, slug); err != nil {
			r.log.Warn("failed to cache domain tombstone", "domain", slug, "error", err)
		}
	}()
}
