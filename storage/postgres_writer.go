package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"secondhand-aggregator/models"
)

// pgxPool is the part of *pgxpool.Pool the writer needs.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// PostgresWriter archives every listing that was shown to a caller. The
// archive is write-only from the aggregator's point of view.
type PostgresWriter struct {
	pool pgxPool
}

func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresWriter{pool: pool}, nil
}

func (w *PostgresWriter) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS listings (
	id BIGSERIAL PRIMARY KEY,
	listing_id TEXT NOT NULL,
	source TEXT NOT NULL,
	title TEXT NOT NULL,
	price NUMERIC(12,2),
	price_text TEXT,
	currency TEXT,
	condition TEXT,
	location TEXT,
	posted_at TEXT,
	image_url TEXT,
	url TEXT NOT NULL UNIQUE,
	description_preview TEXT,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price);
CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source);
`

func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO listings (listing_id, source, title, price, price_text, currency, condition, location, posted_at, image_url, url, description_preview)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	price = EXCLUDED.price,
	price_text = EXCLUDED.price_text,
	condition = EXCLUDED.condition,
	location = EXCLUDED.location,
	image_url = EXCLUDED.image_url,
	description_preview = EXCLUDED.description_preview,
	last_seen = NOW();
`

// WriteBatch upserts listings keyed by URL and returns how many rows were sent.
func (w *PostgresWriter) WriteBatch(ctx context.Context, listings []models.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	enqueued := 0
	for _, l := range listings {
		title := strings.TrimSpace(l.Title)
		url := strings.TrimSpace(l.URL)
		if title == "" || url == "" {
			continue
		}

		batch.Queue(upsertSQL,
			l.ID,
			l.SourceID,
			title,
			l.PriceValue,
			strings.TrimSpace(l.PriceText),
			l.Currency,
			l.ConditionText,
			strings.TrimSpace(l.LocationText),
			l.PostedAtText,
			l.ImageURL,
			url,
			l.DescriptionPreview,
		)
		enqueued++
	}

	if enqueued == 0 {
		return 0, nil
	}

	results := w.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < enqueued; i++ {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("batch upsert failed at row %d: %w", i, err)
		}
	}
	return enqueued, nil
}

// PruneOlderThan deletes listings not seen for the given age.
func (w *PostgresWriter) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := w.pool.Exec(ctx, `DELETE FROM listings WHERE last_seen < $1`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("prune listings: %w", err)
	}
	return tag.RowsAffected(), nil
}
