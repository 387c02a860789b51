package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for the sqlite driver used in
// local runs and tests. Enum columns become TEXT with CHECK constraints; the
// partial unique indexes are kept verbatim since sqlite supports them.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS affiliates (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('partner','reseller')),
		owner_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		contact_email TEXT NOT NULL,
		contact_phone TEXT,
		payout_method TEXT NOT NULL DEFAULT 'bank_transfer',
		payout_details TEXT,
		commission_type TEXT,
		commission_value NUMERIC,
		currency TEXT NOT NULL DEFAULT 'USD',
		status TEXT NOT NULL,
		status_reason TEXT,
		approved_at DATETIME,
		suspended_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (kind, owner_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		reseller_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		partner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		price_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS affiliate_audit_logs (
		id TEXT PRIMARY KEY,
		affiliate_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT,
		reason TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS commission_assignments (
		id TEXT PRIMARY KEY,
		affiliate_id TEXT NOT NULL,
		source_type TEXT NOT NULL CHECK (source_type IN ('listing','tenant')),
		source_id TEXT NOT NULL,
		commission_type TEXT NOT NULL CHECK (commission_type IN ('percent','fixed')),
		commission_value NUMERIC NOT NULL,
		currency TEXT,
		effective_from DATETIME NOT NULL,
		effective_to DATETIME,
		ended_reason TEXT,
		created_by TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_commission_assignments_active_source
		ON commission_assignments (source_type, source_id) WHERE effective_to IS NULL`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		tenant_id TEXT NOT NULL,
		listing_id TEXT,
		amount_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_at DATETIME,
		commission_affiliate_id TEXT,
		commission_assignment_id TEXT,
		commission_cents INTEGER,
		platform_revenue_cents INTEGER,
		split_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		affiliate_id TEXT NOT NULL,
		period_start DATETIME,
		period_end DATETIME,
		gross_revenue_cents INTEGER NOT NULL,
		commission_earned_cents INTEGER NOT NULL,
		adjustments_cents INTEGER NOT NULL,
		net_payable_cents INTEGER NOT NULL CHECK (net_payable_cents > 0),
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		entry_count INTEGER NOT NULL,
		approved_at DATETIME,
		approved_by TEXT,
		paid_at DATETIME,
		payout_method TEXT,
		payout_reference TEXT,
		voided_at DATETIME,
		void_reason TEXT,
		disbursing_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payouts_outstanding_affiliate
		ON payouts (affiliate_id) WHERE status IN ('owed','approved')`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		affiliate_id TEXT NOT NULL,
		invoice_id TEXT,
		assignment_id TEXT,
		payout_id TEXT,
		type TEXT NOT NULL CHECK (type IN ('earned','adjustment','payout')),
		amount_cents INTEGER NOT NULL,
		gross_cents INTEGER NOT NULL DEFAULT 0,
		commission_cents INTEGER NOT NULL DEFAULT 0,
		net_cents INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		actor_id TEXT,
		reason TEXT,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_earned_invoice
		ON ledger_entries (affiliate_id, invoice_id) WHERE type = 'earned'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_payout
		ON ledger_entries (payout_id) WHERE type = 'payout'`,
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_no_update
		BEFORE UPDATE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_no_delete
		BEFORE DELETE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END`,
	`CREATE TABLE IF NOT EXISTS payout_entries (
		payout_id TEXT NOT NULL,
		ledger_entry_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		released_at DATETIME,
		PRIMARY KEY (payout_id, ledger_entry_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payout_entries_unreleased_entry
		ON payout_entries (ledger_entry_id) WHERE released_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// ApplySQLiteSchema creates the ledger schema on a sqlite connection.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
