package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate runs database migrations
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	// Create migrations table
	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	// Run migrations
	migrations := []migration{
		{version: 1, name: "initial_schema", up: migrateV1},
		{version: 2, name: "scored_products", up: migrateV2},
		{version: 3, name: "scored_products_rank_fields", up: migrateV3},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *SQLiteDB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	// Check if migration already applied
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil // Already applied
	}

	// Start transaction
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Run migration
	if err := m.up(ctx, tx); err != nil {
		return err
	}

	// Record migration
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1 creates the crawl engine schema
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		// Crawl jobs
		`CREATE TABLE IF NOT EXISTS crawl_jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			config_json TEXT NOT NULL,
			progress_json TEXT NOT NULL,
			error TEXT,
			created_at INTEGER DEFAULT (strftime('%s', 'now')),
			started_at INTEGER,
			completed_at INTEGER
		)`,

		// Crawl queue. UNIQUE(job_id, url) makes enqueue idempotent within
		// a job; next_attempt_at is NULL for immediately ready items.
		`CREATE TABLE IF NOT EXISTS crawl_queue (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			url TEXT NOT NULL,
			url_type TEXT NOT NULL,
			keyword TEXT,
			priority INTEGER NOT NULL DEFAULT 2,
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			next_attempt_at INTEGER,
			created_at INTEGER DEFAULT (strftime('%s', 'now')),
			submitted_at INTEGER,
			completed_at INTEGER,
			error_message TEXT,
			UNIQUE(job_id, url)
		)`,

		// Exclusion rules
		`CREATE TABLE IF NOT EXISTS exclusion_rules (
			id TEXT PRIMARY KEY,
			rule_type TEXT NOT NULL,
			value TEXT NOT NULL,
			reason TEXT,
			created_at INTEGER DEFAULT (strftime('%s', 'now')),
			UNIQUE(rule_type, value)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_crawl_queue_ready ON crawl_queue(job_id, status, next_attempt_at)`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_queue_job_status ON crawl_queue(job_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_queue_status ON crawl_queue(status, submitted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_jobs_status ON crawl_jobs(status)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}

	return nil
}

// migrateV2 creates the scored products store. source_product_id uniqueness
// is what makes the dedup index and at-most-one-record-per-product hold.
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS scored_products (
			id TEXT PRIMARY KEY,
			source_product_id TEXT NOT NULL,
			name TEXT NOT NULL,
			crawl_job_id TEXT,
			source TEXT NOT NULL,
			source_url TEXT,
			product_cost REAL NOT NULL DEFAULT 0,
			shipping_cost REAL NOT NULL DEFAULT 0,
			selling_price REAL NOT NULL DEFAULT 0,
			category TEXT,
			estimated_cpc REAL DEFAULT 0,
			monthly_search_volume INTEGER DEFAULT 0,
			weight_grams REAL DEFAULT 0,
			shipping_days_min INTEGER DEFAULT 0,
			shipping_days_max INTEGER DEFAULT 0,
			warehouse_country TEXT,
			supplier_name TEXT,
			inventory_count INTEGER DEFAULT 0,
			cogs REAL DEFAULT 0,
			gross_margin REAL DEFAULT 0,
			net_margin REAL DEFAULT 0,
			max_cpc REAL DEFAULT 0,
			cpc_buffer REAL DEFAULT 0,
			passed_filters INTEGER NOT NULL DEFAULT 0,
			rejection_reasons TEXT,
			created_at INTEGER DEFAULT (strftime('%s', 'now'))
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_scored_products_source_id ON scored_products(source_product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scored_products_job ON scored_products(crawl_job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scored_products_passed ON scored_products(passed_filters)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}

	return nil
}

// migrateV3 adds ranking fields to scored products
func migrateV3(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`ALTER TABLE scored_products ADD COLUMN points REAL DEFAULT 0`,
		`ALTER TABLE scored_products ADD COLUMN rank_score REAL DEFAULT 0`,
		`ALTER TABLE scored_products ADD COLUMN recommendation TEXT`,
		`CREATE INDEX IF NOT EXISTS idx_scored_products_rank ON scored_products(rank_score)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}

	return nil
}
