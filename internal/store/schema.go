/**
 * @description
 * Idempotent schema bootstrap for the payout-service tables. Executed at
 * startup so a fresh database is usable without a separate migration step.
 * The check constraints on earnings_summaries back up the domain-level
 * invariant: buckets never go negative and reserved money never exceeds
 * lifetime earnings.
 */

package store

import "context"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS payout_settings (
    id INT PRIMARY KEY CHECK (id = 1),
    minimum_payout_amount BIGINT NOT NULL DEFAULT 0,
    platform_fee_percentage DOUBLE PRECISION NOT NULL DEFAULT 10,
    automatic_payouts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    require_admin_approval BOOLEAN NOT NULL DEFAULT TRUE,
    payout_methods TEXT[] NOT NULL DEFAULT ARRAY['bank_transfer'],
    supported_currencies TEXT[] NOT NULL DEFAULT ARRAY['USD'],
    payout_schedule TEXT NOT NULL DEFAULT 'weekly',
    withdrawal_fee BIGINT NOT NULL DEFAULT 0,
    early_payout_fee BIGINT NOT NULL DEFAULT 0,
    max_retry_attempts INT NOT NULL DEFAULT 3,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_by TEXT
);
INSERT INTO payout_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS payout_accounts (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    user_type TEXT NOT NULL,
    method TEXT NOT NULL,
    account_details JSONB NOT NULL DEFAULT '{}'::jsonb,
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    currency TEXT NOT NULL,
    verification_notes TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS payout_accounts_user_method_active
    ON payout_accounts (user_id, method) WHERE is_active;

CREATE TABLE IF NOT EXISTS earnings_summaries (
    user_id UUID PRIMARY KEY,
    user_type TEXT NOT NULL,
    total_earnings BIGINT NOT NULL DEFAULT 0 CHECK (total_earnings >= 0),
    total_paid_out BIGINT NOT NULL DEFAULT 0 CHECK (total_paid_out >= 0),
    pending_balance BIGINT NOT NULL DEFAULT 0 CHECK (pending_balance >= 0),
    available_balance BIGINT NOT NULL DEFAULT 0 CHECK (available_balance >= 0),
    on_hold_balance BIGINT NOT NULL DEFAULT 0 CHECK (on_hold_balance >= 0),
    currency TEXT NOT NULL DEFAULT 'USD',
    last_updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (available_balance + pending_balance + on_hold_balance <= total_earnings)
);

CREATE TABLE IF NOT EXISTS payout_transactions (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    user_type TEXT NOT NULL,
    account_id UUID NOT NULL REFERENCES payout_accounts(id),
    amount BIGINT NOT NULL CHECK (amount > 0),
    platform_fee BIGINT NOT NULL DEFAULT 0,
    net_amount BIGINT NOT NULL DEFAULT 0,
    currency TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    description TEXT,
    notes TEXT,
    related_booking_ids UUID[] NOT NULL DEFAULT '{}',
    admin_id TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processed_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS payout_transactions_user_created
    ON payout_transactions (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS payout_transactions_status
    ON payout_transactions (status);

CREATE TABLE IF NOT EXISTS payout_disputes (
    id UUID PRIMARY KEY,
    payout_id UUID NOT NULL REFERENCES payout_transactions(id),
    user_id UUID NOT NULL,
    user_type TEXT NOT NULL,
    reason TEXT NOT NULL,
    amount BIGINT NOT NULL,
    currency TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    resolution TEXT,
    resolved_by TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS payout_disputes_open_per_payout
    ON payout_disputes (payout_id) WHERE status IN ('open', 'under_review');

CREATE TABLE IF NOT EXISTS booking_payments (
    booking_id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    user_type TEXT NOT NULL,
    amount BIGINT NOT NULL CHECK (amount > 0),
    currency TEXT NOT NULL,
    paid_at TIMESTAMPTZ NOT NULL,
    earnings_processed BOOLEAN NOT NULL DEFAULT FALSE,
    processed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS booking_payments_unprocessed
    ON booking_payments (user_id) WHERE NOT earnings_processed;
`

// EnsureSchema creates the payout tables if they do not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schemaDDL)
	return err
}
