package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkedge/internal/domain"
	"linkedge/internal/metrics"
	"linkedge/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// linkRepository is the PostgreSQL implementation of repository.LinkStore
// The lowercase name means it's private to this package
type linkRepository struct {
	db *pgxpool.Pool
}

// NewLinkRepository creates a new PostgreSQL link repository
func NewLinkRepository(db *pgxpool.Pool) repository.LinkStore {
	return &linkRepository{db: db}
}

// FindByDomainAndKey retrieves a link by its (domain, key) identity.
// Archived links are still returned: archiving is a decision-engine state
// (it must yield a 410, not a cacheable "not found" tombstone).
func (r *linkRepository) FindByDomainAndKey(ctx context.Context, linkDomain, key string) (*domain.Link, error) {
	start := time.Now()
	defer func() {
		metrics.DatabaseQueryDuration.WithLabelValues("find_link").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT id, domain, key, url, password_hash, expires_at, expired_url,
		       archived, proxy, og_title, og_description, og_image,
		       ios_url, android_url, geo_targets, redirect_code,
		       utm_source, utm_medium, utm_campaign, utm_term, utm_content,
		       workspace_id, public_stats, created_at
		FROM links
		WHERE domain = $1 AND key = $2
	`

	link := &domain.Link{}

	err := r.db.QueryRow(ctx, query, linkDomain, key).Scan(
		&link.ID,
		&link.Domain,
		&link.Key,
		&link.URL,
		&link.PasswordHash, // pgx handles NULL -> nil conversion automatically
		&link.ExpiresAt,
		&link.ExpiredURL,
		&link.Archived,
		&link.Proxy,
		&link.OGTitle,
		&link.OGDescription,
		&link.OGImage,
		&link.IOS,
		&link.Android,
		&link.Geo, // jsonb column scans into map[string]string
		&link.RedirectCode,
		&link.UTMSource,
		&link.UTMMedium,
		&link.UTMCampaign,
		&link.UTMTerm,
		&link.UTMContent,
		&link.WorkspaceID,
		&link.PublicStats,
		&link.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", linkDomain, key, domain.ErrNotFound)
		}
		metrics.DatabaseErrorsTotal.WithLabelValues("find_link").Inc()
		return nil, fmt.Errorf("failed to find link: %w", err)
	}

	return link, nil
}

// InitDB initializes the database connection pool
// This is called once at application startup
func InitDB(ctx context.Context, dsn string, maxConns, minConns int, maxLifetime time.Duration) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Configure connection pool settings
	config.MaxConns = int32(maxConns)
	config.MinConns = int32(minConns)
	config.MaxConnLifetime = maxLifetime
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
