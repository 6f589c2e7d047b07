package postgres

import "context"

// migrate applies the schema on startup. Statements are idempotent so a
// restart against an existing database is a no-op.
func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id          text PRIMARY KEY,
			title       text NOT NULL,
			author      text NOT NULL DEFAULT '',
			price_cents bigint NOT NULL DEFAULT 0,
			stock       integer NOT NULL DEFAULT 0,
			active      boolean NOT NULL DEFAULT true,
			created_at  timestamptz NOT NULL DEFAULT now(),
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id         text PRIMARY KEY,
			book_id    text NOT NULL REFERENCES books(id),
			date       text NOT NULL,
			delta      integer NOT NULL,
			note       text NOT NULL DEFAULT '',
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_book ON stock_movements (book_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS distributors (
			id         text PRIMARY KEY,
			name       text NOT NULL,
			phone      text NOT NULL DEFAULT '',
			area       text NOT NULL DEFAULT '',
			notes      text NOT NULL DEFAULT '',
			active     boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS trips (
			id             text PRIMARY KEY,
			date           text NOT NULL,
			distributor_id text NOT NULL REFERENCES distributors(id),
			group_name     text NOT NULL DEFAULT '',
			status         text NOT NULL,
			remarks        text NOT NULL DEFAULT '',
			cash_cents     bigint NOT NULL DEFAULT 0,
			online_cents   bigint NOT NULL DEFAULT 0,
			created_at     timestamptz NOT NULL DEFAULT now(),
			updated_at     timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_date ON trips (date)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_distributor ON trips (distributor_id)`,
		`CREATE TABLE IF NOT EXISTS trip_items (
			trip_id               text NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
			book_id               text NOT NULL REFERENCES books(id),
			position              integer NOT NULL DEFAULT 0,
			quantity_out          integer NOT NULL DEFAULT 0,
			quantity_return       integer NOT NULL DEFAULT 0,
			quantity_sold         integer,
			amount_returned_cents bigint NOT NULL DEFAULT 0,
			difference_reason     text NOT NULL DEFAULT '',
			PRIMARY KEY (trip_id, book_id)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id             text PRIMARY KEY,
			actor_username text NOT NULL DEFAULT '',
			actor_role     text NOT NULL DEFAULT '',
			action         text NOT NULL,
			entity_type    text NOT NULL DEFAULT '',
			entity_id      text NOT NULL DEFAULT '',
			detail         text NOT NULL DEFAULT '',
			created_at     timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS app_users (
			username   text PRIMARY KEY,
			password   text NOT NULL,
			role       text NOT NULL DEFAULT 'staff',
			active     boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
