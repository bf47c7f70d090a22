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

// domainRepository is the PostgreSQL implementation of repository.DomainStore
type domainRepository struct {
	db *pgxpool.Pool
}

// NewDomainRepository creates a new PostgreSQL domain repository
func NewDomainRepository(db *pgxpool.Pool) repository.DomainStore {
	return &domainRepository{db: db}
}

// Find retrieves a domain record by its slug
func (r *domainRepository) Find(ctx context.Context, slug string) (*domain.Domain, error) {
	start := time.Now()
	defer func() {
		metrics.DatabaseQueryDuration.WithLabelValues("find_domain").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT id, slug, verified, is_primary, root_url, workspace_id
		FROM domains
		WHERE slug = $1
	`

	d := &domain.Domain{}

	err := r.db.QueryRow(ctx, query, slug).Scan(
		&d.ID,
		&d.Slug,
		&d.Verified,
		&d.Primary,
		&d.RootURL,
		&d.WorkspaceID,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", slug, domain.ErrNotFound)
		}
		metrics.DatabaseErrorsTotal.WithLabelValues("find_domain").Inc()
		return nil, fmt.Errorf("failed to find domain: %w", err)
	}

	return d, nil
}
