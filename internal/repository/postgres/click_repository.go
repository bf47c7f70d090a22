package postgres

import (
	"context"
	"fmt"
	"time"

	"linkedge/internal/domain"
	"linkedge/internal/metrics"
	"linkedge/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

// clickRepository is the PostgreSQL implementation of the analytics sink.
// The click_events table is append-only; aggregation happens downstream.
type clickRepository struct {
	db *pgxpool.Pool
}

// NewClickRepository creates a new PostgreSQL click repository
func NewClickRepository(db *pgxpool.Pool) repository.ClickStore {
	return &clickRepository{db: db}
}

// Insert appends a click event.
// ON CONFLICT DO NOTHING on the event UUID makes redelivery harmless:
// the recorder is at-least-once and may retry an event that was already
// committed before a transient failure.
func (r *clickRepository) Insert(ctx context.Context, event *domain.ClickEvent) error {
	start := time.Now()
	defer func() {
		metrics.DatabaseQueryDuration.WithLabelValues("insert_click").Observe(time.Since(start).Seconds())
	}()

	query := `
		INSERT INTO click_events (
			id, ts, link_id, domain, key, url,
			ip, country, city, region, continent,
			device, browser, os, referrer, bot,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21
		) ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Exec(
		ctx,
		query,
		event.ID,
		event.Timestamp,
		event.LinkID,
		event.Domain,
		event.Key,
		event.URL,
		event.IP,
		event.Country,
		event.City,
		event.Region,
		event.Continent,
		event.Device,
		event.Browser,
		event.OS,
		event.Referrer,
		event.Bot,
		event.UTMSource,
		event.UTMMedium,
		event.UTMCampaign,
		event.UTMTerm,
		event.UTMContent,
	)

	if err != nil {
		metrics.DatabaseErrorsTotal.WithLabelValues("insert_click").Inc()
		return fmt.Errorf("failed to insert click event: %w", err)
	}

	return nil
}
