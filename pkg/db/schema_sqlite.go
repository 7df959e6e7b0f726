package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors pkg/migrate/migrations for the embedded sqlite mode.
// The plpgsql immutability triggers become RAISE(ABORT) triggers.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  kind TEXT NOT NULL CHECK (kind IN ('EARN', 'MATURE', 'REDEEM', 'REVERSE', 'EXPIRE', 'BONUS')),
  points INTEGER NOT NULL CHECK (points <> 0),
  status TEXT NOT NULL CHECK (status IN ('POSTED', 'AVAILABLE', 'REDEEMED', 'EXPIRED')),
  related_video_id TEXT,
  related_creator_id TEXT,
  related_entry_id TEXT,
  redemption_id TEXT,
  content_category TEXT,
  multiplier INTEGER,
  idempotency_key TEXT,
  posted_at DATETIME NOT NULL,
  available_at DATETIME,
  expires_at DATETIME,
  status_changed_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS ix_ledger_entries_user_status ON ledger_entries (user_id, status)`,
	`CREATE INDEX IF NOT EXISTS ix_ledger_entries_status_available_at ON ledger_entries (status, available_at)`,
	`CREATE INDEX IF NOT EXISTS ix_ledger_entries_status_expires_at ON ledger_entries (status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS ix_ledger_entries_user_posted_at ON ledger_entries (user_id, posted_at, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_idempotency ON ledger_entries (user_id, kind, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_immutable
  BEFORE UPDATE OF points, kind, posted_at, user_id ON ledger_entries
  BEGIN SELECT RAISE(ABORT, 'ledger entry is immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_no_delete
  BEFORE DELETE ON ledger_entries
  BEGIN SELECT RAISE(ABORT, 'ledger entries cannot be deleted'); END`,
	`CREATE TABLE IF NOT EXISTS wallets (
  user_id TEXT PRIMARY KEY,
  pending_points INTEGER NOT NULL DEFAULT 0 CHECK (pending_points >= 0),
  available_points INTEGER NOT NULL DEFAULT 0 CHECK (available_points >= 0),
  total_earned INTEGER NOT NULL DEFAULT 0,
  total_redeemed INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  archived_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS redemption_requests (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  points_requested INTEGER NOT NULL CHECK (points_requested > 0),
  method TEXT NOT NULL,
  destination TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  provider_reference TEXT,
  failure_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  completed_at DATETIME
)`,
	`CREATE INDEX IF NOT EXISTS ix_redemption_requests_user_created ON redemption_requests (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS ledger_allocations (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  redemption_id TEXT NOT NULL,
  redeem_entry_id TEXT NOT NULL,
  credit_entry_id TEXT NOT NULL,
  points INTEGER NOT NULL CHECK (points > 0),
  created_at DATETIME
)`,
	`CREATE INDEX IF NOT EXISTS ix_ledger_allocations_credit_entry ON ledger_allocations (credit_entry_id)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
)`,
	`CREATE INDEX IF NOT EXISTS ix_outbox_events_aggregate ON outbox_events (aggregate_type, aggregate_id, event_type)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
)`,
}

// EnsureSQLiteSchema creates the ledger schema on a sqlite connection.
func EnsureSQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn.Dialector.Name() != "sqlite" {
		return fmt.Errorf("sqlite schema requested for %s driver", conn.Dialector.Name())
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("bootstrapping sqlite schema: %w", err)
		}
	}
	return nil
}
