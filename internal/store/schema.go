package store

import (
	"context"
	"fmt"
)

// Schema is applied idempotently at startup. Five tables, plus the trigram
// extension used by fuzzy customer search when available.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		wa_id            TEXT PRIMARY KEY,
		customer_name    TEXT,
		age              INT,
		age_recorded_at  TIMESTAMPTZ,
		is_blocked       BOOLEAN NOT NULL DEFAULT FALSE,
		is_favorite      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id            BIGSERIAL PRIMARY KEY,
		wa_id         TEXT NOT NULL,
		date          DATE NOT NULL,
		time_slot     TEXT NOT NULL,
		type          INT NOT NULL DEFAULT 0,
		status        TEXT NOT NULL DEFAULT 'active',
		cancelled_at  TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_slot ON reservations (date, time_slot, status)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_wa_status ON reservations (wa_id, status)`,
	`CREATE TABLE IF NOT EXISTS conversation (
		id       BIGSERIAL PRIMARY KEY,
		wa_id    TEXT NOT NULL,
		role     TEXT NOT NULL,
		message  TEXT NOT NULL,
		date     DATE NOT NULL,
		time     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversation_wa ON conversation (wa_id)`,
	`CREATE TABLE IF NOT EXISTS vacation_periods (
		id          BIGSERIAL PRIMARY KEY,
		start_date  DATE NOT NULL,
		end_date    DATE NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		CHECK (start_date <= end_date)
	)`,
	`CREATE TABLE IF NOT EXISTS inbound_queue (
		id          BIGSERIAL PRIMARY KEY,
		message_id  TEXT,
		wa_id       TEXT,
		payload     JSONB NOT NULL,
		status      TEXT NOT NULL DEFAULT 'pending',
		attempts    INT NOT NULL DEFAULT 0,
		locked_at   TIMESTAMPTZ,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_inbound_queue_message_id ON inbound_queue (message_id) WHERE message_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_inbound_queue_status ON inbound_queue (status, created_at)`,
}

// Optional statements are attempted once and ignored on failure (the trigram
// extension needs superuser on some hosts).
var optionalStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	`CREATE INDEX IF NOT EXISTS idx_customers_name_trgm ON customers USING gin (lower(customer_name) gin_trgm_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_customers_wa_trgm ON customers USING gin (lower(wa_id) gin_trgm_ops)`,
}

// ApplySchema creates the tables and indexes if they do not exist.
func ApplySchema(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: apply schema: %w", err)
		}
	}
	for _, stmt := range optionalStatements {
		_, _ = db.Exec(ctx, stmt)
	}
	return nil
}
