package recalc

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		mail TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		verification_code TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		reimbursement_percentage REAL NOT NULL,
		max_reimbursement REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS claims (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users (id),
		total_cost REAL NOT NULL DEFAULT 0,
		total_reimbursement REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id UUID PRIMARY KEY,
		claim_id UUID NOT NULL REFERENCES claims (id),
		category_id UUID NOT NULL REFERENCES categories (id),
		cost REAL NOT NULL,
		reimbursement REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users (id),
		kind TEXT NOT NULL,
		recipient TEXT NOT NULL,
		code TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		sent_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_claims_user ON claims (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_claims_status ON claims (status)`,
	`CREATE INDEX IF NOT EXISTS idx_items_claim ON items (claim_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications (status)`,
	`CREATE INDEX IF NOT EXISTS idx_users_verification_code ON users (verification_code)`,
}

// Migrate creates the schema. Statements are idempotent so startup can
// run this unconditionally.
func Migrate(ctx context.Context, db *bun.DB) error {
	for _, stmt := range migrationStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "migration failed").
				WithMetadata(map[string]any{"statement": stmt})
		}
	}
	return nil
}
