/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all SQL for payout settings, payout accounts,
 * earnings summaries, payout transactions, disputes, and booking-payment
 * earnings credits.
 *
 * Ledger consistency relies on two mechanisms:
 *   - every bucket move locks the user's earnings_summaries row with
 *     `SELECT ... FOR UPDATE`, so concurrent moves on the same user are
 *     serialized while different users never contend, and
 *   - status updates are guarded with `WHERE status = $expected`, so a lost
 *     race surfaces as ErrStatusConflict instead of a double-applied move.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sailhaven/payout-service/internal/domain"
)

var (
	ErrSettingsNotFound    = errors.New("payout settings not found")
	ErrAccountNotFound     = errors.New("payout account not found")
	ErrSummaryNotFound     = errors.New("earnings summary not found")
	ErrPayoutNotFound      = errors.New("payout transaction not found")
	ErrDisputeNotFound     = errors.New("payout dispute not found")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrAlreadyProcessed    = errors.New("operation already processed")
	ErrStatusConflict      = errors.New("payout status changed concurrently")
	ErrDuplicateAccount    = errors.New("payout account already exists for this user and method")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// querier abstracts pgxpool.Pool and pgx.Tx so summary helpers can run inside
// or outside an explicit transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetPayoutSettings returns the singleton platform payout policy row.
func (r *PostgresRepository) GetPayoutSettings(ctx context.Context) (*domain.PayoutSettings, error) {
	var s domain.PayoutSettings
	query := `
		SELECT minimum_payout_amount, platform_fee_percentage, automatic_payouts_enabled,
		       require_admin_approval, payout_methods, supported_currencies, payout_schedule,
		       withdrawal_fee, early_payout_fee, max_retry_attempts, updated_at, updated_by
		FROM payout_settings
		WHERE id = 1
	`
	err := r.db.QueryRow(ctx, query).Scan(
		&s.MinimumPayoutAmount, &s.PlatformFeePercentage, &s.AutomaticPayoutsEnabled,
		&s.RequireAdminApproval, &s.PayoutMethods, &s.SupportedCurrencies, &s.PayoutSchedule,
		&s.WithdrawalFee, &s.EarlyPayoutFee, &s.MaxRetryAttempts, &s.UpdatedAt, &s.UpdatedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return &s, nil
}

// UpdatePayoutSettings replaces the singleton settings row wholesale.
func (r *PostgresRepository) UpdatePayoutSettings(ctx context.Context, s *domain.PayoutSettings) error {
	query := `
		INSERT INTO payout_settings (
			id, minimum_payout_amount, platform_fee_percentage, automatic_payouts_enabled,
			require_admin_approval, payout_methods, supported_currencies, payout_schedule,
			withdrawal_fee, early_payout_fee, max_retry_attempts, updated_at, updated_by
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11)
		ON CONFLICT (id) DO UPDATE SET
			minimum_payout_amount = EXCLUDED.minimum_payout_amount,
			platform_fee_percentage = EXCLUDED.platform_fee_percentage,
			automatic_payouts_enabled = EXCLUDED.automatic_payouts_enabled,
			require_admin_approval = EXCLUDED.require_admin_approval,
			payout_methods = EXCLUDED.payout_methods,
			supported_currencies = EXCLUDED.supported_currencies,
			payout_schedule = EXCLUDED.payout_schedule,
			withdrawal_fee = EXCLUDED.withdrawal_fee,
			early_payout_fee = EXCLUDED.early_payout_fee,
			max_retry_attempts = EXCLUDED.max_retry_attempts,
			updated_at = NOW(),
			updated_by = EXCLUDED.updated_by
	`
	_, err := r.db.Exec(ctx, query,
		s.MinimumPayoutAmount, s.PlatformFeePercentage, s.AutomaticPayoutsEnabled,
		s.RequireAdminApproval, s.PayoutMethods, s.SupportedCurrencies, s.PayoutSchedule,
		s.WithdrawalFee, s.EarlyPayoutFee, s.MaxRetryAttempts, s.UpdatedBy,
	)
	return err
}

// ---------------------------------------------------------------------------
// Payout accounts
// ---------------------------------------------------------------------------

// CreatePayoutAccount inserts a new (unverified) payout destination account.
func (r *PostgresRepository) CreatePayoutAccount(ctx context.Context, a *domain.PayoutAccount) error {
	details, err := json.Marshal(a.AccountDetails)
	if err != nil {
		return fmt.Errorf("failed to encode account details: %w", err)
	}
	query := `
		INSERT INTO payout_accounts (id, user_id, user_type, method, account_details,
			is_verified, is_active, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err = r.db.Exec(ctx, query, a.ID, a.UserID, a.UserType, a.Method, details,
		a.IsVerified, a.IsActive, a.Currency)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAccount
		}
		return err
	}
	return nil
}

func scanPayoutAccount(row pgx.Row) (*domain.PayoutAccount, error) {
	var a domain.PayoutAccount
	var details []byte
	err := row.Scan(&a.ID, &a.UserID, &a.UserType, &a.Method, &details,
		&a.IsVerified, &a.IsActive, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &a.AccountDetails); err != nil {
			return nil, fmt.Errorf("failed to decode account details: %w", err)
		}
	}
	return &a, nil
}

const payoutAccountColumns = `id, user_id, user_type, method, account_details,
	is_verified, is_active, currency, created_at, updated_at`

// FindPayoutAccountByID retrieves a payout account by its id.
func (r *PostgresRepository) FindPayoutAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.PayoutAccount, error) {
	query := `SELECT ` + payoutAccountColumns + ` FROM payout_accounts WHERE id = $1`
	return scanPayoutAccount(r.db.QueryRow(ctx, query, accountID))
}

// FindPayoutAccount retrieves the active account for a (user, method) pair.
func (r *PostgresRepository) FindPayoutAccount(ctx context.Context, userID uuid.UUID, method string) (*domain.PayoutAccount, error) {
	query := `SELECT ` + payoutAccountColumns + ` FROM payout_accounts
		WHERE user_id = $1 AND method = $2 AND is_active = TRUE`
	return scanPayoutAccount(r.db.QueryRow(ctx, query, userID, method))
}

// FindPayoutAccountsByUserID lists all active accounts belonging to a user.
func (r *PostgresRepository) FindPayoutAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.PayoutAccount, error) {
	query := `SELECT ` + payoutAccountColumns + ` FROM payout_accounts
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.PayoutAccount
	for rows.Next() {
		a, err := scanPayoutAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// SetPayoutAccountVerification marks an account verified or unverified.
func (r *PostgresRepository) SetPayoutAccountVerification(ctx context.Context, accountID uuid.UUID, verified bool, notes *string) error {
	query := `
		UPDATE payout_accounts
		SET is_verified = $2, verification_notes = COALESCE($3, verification_notes), updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, accountID, verified, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeactivatePayoutAccount retires an account. Accounts are never deleted so
// historical payouts keep a valid reference.
func (r *PostgresRepository) DeactivatePayoutAccount(ctx context.Context, accountID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payout_accounts SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Earnings summary
// ---------------------------------------------------------------------------

const earningsSummaryColumns = `user_id, user_type, total_earnings, total_paid_out,
	pending_balance, available_balance, on_hold_balance, currency, last_updated_at`

func scanEarningsSummary(row pgx.Row) (*domain.EarningsSummary, error) {
	var s domain.EarningsSummary
	err := row.Scan(&s.UserID, &s.UserType, &s.TotalEarnings, &s.TotalPaidOut,
		&s.PendingBalance, &s.AvailableBalance, &s.OnHoldBalance, &s.Currency, &s.LastUpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSummaryNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindEarningsSummary retrieves a user's earnings summary.
func (r *PostgresRepository) FindEarningsSummary(ctx context.Context, userID uuid.UUID) (*domain.EarningsSummary, error) {
	query := `SELECT ` + earningsSummaryColumns + ` FROM earnings_summaries WHERE user_id = $1`
	return scanEarningsSummary(r.db.QueryRow(ctx, query, userID))
}

// GetOrCreateEarningsSummary lazily creates a zeroed summary on first touch.
func (r *PostgresRepository) GetOrCreateEarningsSummary(ctx context.Context, userID uuid.UUID, userType domain.UserType, currency string) (*domain.EarningsSummary, error) {
	query := `
		INSERT INTO earnings_summaries (user_id, user_type, total_earnings, total_paid_out,
			pending_balance, available_balance, on_hold_balance, currency, last_updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, 0, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + earningsSummaryColumns
	return scanEarningsSummary(r.db.QueryRow(ctx, query, userID, userType, currency))
}

// lockEarningsSummary reads a user's summary with FOR UPDATE inside tx.
// All bucket moves go through this lock, which serializes concurrent
// mutations on the same user.
func lockEarningsSummary(ctx context.Context, q querier, userID uuid.UUID) (*domain.EarningsSummary, error) {
	query := `SELECT ` + earningsSummaryColumns + ` FROM earnings_summaries WHERE user_id = $1 FOR UPDATE`
	return scanEarningsSummary(q.QueryRow(ctx, query, userID))
}

// writeEarningsSummary persists the mutated buckets after the domain-level
// invariant check passed.
func writeEarningsSummary(ctx context.Context, q querier, s *domain.EarningsSummary) error {
	if err := s.CheckInvariant(); err != nil {
		return err
	}
	query := `
		UPDATE earnings_summaries
		SET total_earnings = $2, total_paid_out = $3, pending_balance = $4,
		    available_balance = $5, on_hold_balance = $6, last_updated_at = NOW()
		WHERE user_id = $1
	`
	_, err := q.Exec(ctx, query, s.UserID, s.TotalEarnings, s.TotalPaidOut,
		s.PendingBalance, s.AvailableBalance, s.OnHoldBalance)
	return err
}

// applyBucketMove applies the named ledger movement to a locked summary.
func applyBucketMove(s *domain.EarningsSummary, move BucketMove, amount int64) error {
	switch move {
	case MoveNone:
		return nil
	case MoveSettle:
		return s.Settle(amount)
	case MoveRelease:
		return s.Release(amount)
	case MoveHold:
		return s.Hold(amount)
	case MoveUnholdToPending:
		return s.UnholdToPending(amount)
	case MoveUnholdToAvailable:
		return s.UnholdToAvailable(amount)
	default:
		return fmt.Errorf("unknown bucket move %q", move)
	}
}

// ---------------------------------------------------------------------------
// Payout transactions
// ---------------------------------------------------------------------------

const payoutColumns = `id, user_id, user_type, account_id, amount, platform_fee, net_amount,
	currency, status, description, notes, related_booking_ids, admin_id,
	created_at, processed_at, completed_at`

func scanPayout(row pgx.Row) (*domain.PayoutTransaction, error) {
	var p domain.PayoutTransaction
	err := row.Scan(&p.ID, &p.UserID, &p.UserType, &p.AccountID, &p.Amount, &p.PlatformFee,
		&p.NetAmount, &p.Currency, &p.Status, &p.Description, &p.Notes, &p.RelatedBookingIDs,
		&p.AdminID, &p.CreatedAt, &p.ProcessedAt, &p.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePayoutAtomic reserves the payout amount against the user's available
// balance and inserts the transaction record in one database transaction. On
// an insufficient balance nothing is persisted and ErrInsufficientBalance is
// returned.
func (r *PostgresRepository) CreatePayoutAtomic(ctx context.Context, p *domain.PayoutTransaction) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	summary, err := lockEarningsSummary(ctx, tx, p.UserID)
	if err != nil {
		return err
	}
	if summary.AvailableBalance < p.Amount {
		return ErrInsufficientBalance
	}
	if err := summary.Reserve(p.Amount); err != nil {
		return ErrInsufficientBalance
	}
	if err := writeEarningsSummary(ctx, tx, summary); err != nil {
		return fmt.Errorf("failed to reserve balance: %w", err)
	}

	insert := `
		INSERT INTO payout_transactions (id, user_id, user_type, account_id, amount,
			platform_fee, net_amount, currency, status, description, notes,
			related_booking_ids, admin_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
	`
	_, err = tx.Exec(ctx, insert, p.ID, p.UserID, p.UserType, p.AccountID, p.Amount,
		p.PlatformFee, p.NetAmount, p.Currency, p.Status, p.Description, p.Notes,
		p.RelatedBookingIDs, p.AdminID)
	if err != nil {
		return fmt.Errorf("failed to insert payout transaction: %w", err)
	}

	return tx.Commit(ctx)
}

// FindPayoutByID retrieves a payout transaction by its id.
func (r *PostgresRepository) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutTransaction, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_transactions WHERE id = $1`
	return scanPayout(r.db.QueryRow(ctx, query, payoutID))
}

// ListPayouts returns payout transactions matching the filter, newest first.
func (r *PostgresRepository) ListPayouts(ctx context.Context, f domain.TransactionFilter) ([]domain.PayoutTransaction, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_transactions WHERE 1=1`
	args := []any{}
	n := 0
	if f.UserID != nil {
		n++
		query += fmt.Sprintf(" AND user_id = $%d", n)
		args = append(args, *f.UserID)
	}
	if f.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, *f.Status)
	}
	if f.From != nil {
		n++
		query += fmt.Sprintf(" AND created_at >= $%d", n)
		args = append(args, *f.From)
	}
	if f.To != nil {
		n++
		query += fmt.Sprintf(" AND created_at < $%d", n)
		args = append(args, *f.To)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	n++
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.PayoutTransaction
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

// TransitionPayoutStatus moves a payout between statuses and applies the
// matching bucket move in one database transaction. The status update is
// guarded on the expected current status; zero rows affected means a
// concurrent transition won the race and ErrStatusConflict is returned
// without any ledger movement committing.
func (r *PostgresRepository) TransitionPayoutStatus(ctx context.Context, payoutID uuid.UUID, from, to domain.PayoutStatus, move BucketMove, adminID string, notes *string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := transitionPayoutStatusTx(ctx, tx, payoutID, from, to, move, adminID, notes); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// transitionPayoutStatusTx is the shared transition body, also used inside
// the dispute open/resolve transactions.
func transitionPayoutStatusTx(ctx context.Context, tx pgx.Tx, payoutID uuid.UUID, from, to domain.PayoutStatus, move BucketMove, adminID string, notes *string) error {
	var userID uuid.UUID
	var amount int64
	lock := `SELECT user_id, amount FROM payout_transactions WHERE id = $1 AND status = $2 FOR UPDATE`
	err := tx.QueryRow(ctx, lock, payoutID, from).Scan(&userID, &amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Distinguish missing row from a lost race.
			var exists bool
			if checkErr := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM payout_transactions WHERE id = $1)`, payoutID,
			).Scan(&exists); checkErr == nil && !exists {
				return ErrPayoutNotFound
			}
			return ErrStatusConflict
		}
		return err
	}

	if move != MoveNone {
		summary, err := lockEarningsSummary(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := applyBucketMove(summary, move, amount); err != nil {
			return err
		}
		if err := writeEarningsSummary(ctx, tx, summary); err != nil {
			return fmt.Errorf("failed to apply ledger move: %w", err)
		}
	}

	update := `
		UPDATE payout_transactions
		SET status = $2,
		    admin_id = $3,
		    notes = COALESCE($4, notes),
		    processed_at = CASE WHEN $2 = 'processing' THEN NOW() ELSE processed_at END,
		    completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status = $5
	`
	tag, err := tx.Exec(ctx, update, payoutID, to, adminID, notes, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ---------------------------------------------------------------------------
// Disputes
// ---------------------------------------------------------------------------

const disputeColumns = `id, payout_id, user_id, user_type, reason, amount, currency,
	status, resolution, resolved_by, created_at, resolved_at`

func scanDispute(row pgx.Row) (*domain.PayoutDispute, error) {
	var d domain.PayoutDispute
	err := row.Scan(&d.ID, &d.PayoutID, &d.UserID, &d.UserType, &d.Reason, &d.Amount,
		&d.Currency, &d.Status, &d.Resolution, &d.ResolvedBy, &d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return &d, nil
}

// OpenDisputeAtomic inserts the dispute, forces the parent payout to on_hold,
// and moves the reserved amount into the on-hold bucket, all in one database
// transaction.
func (r *PostgresRepository) OpenDisputeAtomic(ctx context.Context, d *domain.PayoutDispute, payoutFrom domain.PayoutStatus) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	note := fmt.Sprintf("dispute %s opened: %s", d.ID, d.Reason)
	if err := transitionPayoutStatusTx(ctx, tx, d.PayoutID, payoutFrom, domain.StatusOnHold, MoveHold, "", &note); err != nil {
		return err
	}

	insert := `
		INSERT INTO payout_disputes (id, payout_id, user_id, user_type, reason, amount,
			currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err = tx.Exec(ctx, insert, d.ID, d.PayoutID, d.UserID, d.UserType, d.Reason,
		d.Amount, d.Currency, d.Status)
	if err != nil {
		return fmt.Errorf("failed to insert dispute: %w", err)
	}

	return tx.Commit(ctx)
}

// FindDisputeByID retrieves a dispute by its id.
func (r *PostgresRepository) FindDisputeByID(ctx context.Context, disputeID uuid.UUID) (*domain.PayoutDispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM payout_disputes WHERE id = $1`
	return scanDispute(r.db.QueryRow(ctx, query, disputeID))
}

// FindOpenDisputeByPayoutID returns the unresolved dispute for a payout, if any.
func (r *PostgresRepository) FindOpenDisputeByPayoutID(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutDispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM payout_disputes
		WHERE payout_id = $1 AND status IN ('open', 'under_review')`
	return scanDispute(r.db.QueryRow(ctx, query, payoutID))
}

// ResolveDisputeAtomic applies the three resolution effects as one unit:
// claim the dispute row, move the held amount, and force the parent payout's
// status. The guarded dispute update is the completion marker, so re-running
// a resolution returns ErrAlreadyProcessed without moving funds again.
func (r *PostgresRepository) ResolveDisputeAtomic(ctx context.Context, disputeID uuid.UUID, outcome domain.DisputeStatus, resolution string, resolvedBy string, move BucketMove, payoutTo domain.PayoutStatus) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var payoutID uuid.UUID
	claim := `
		UPDATE payout_disputes
		SET status = $2, resolution = $3, resolved_by = $4, resolved_at = NOW()
		WHERE id = $1 AND status IN ('open', 'under_review')
		RETURNING payout_id
	`
	err = tx.QueryRow(ctx, claim, disputeID, outcome, resolution, resolvedBy).Scan(&payoutID)
	if err != nil {
		if err == pgx.ErrNoRows {
			var exists bool
			if checkErr := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM payout_disputes WHERE id = $1)`, disputeID,
			).Scan(&exists); checkErr == nil && !exists {
				return ErrDisputeNotFound
			}
			return ErrAlreadyProcessed
		}
		return err
	}

	note := fmt.Sprintf("dispute %s %s: %s", disputeID, outcome, resolution)
	if err := transitionPayoutStatusTx(ctx, tx, payoutID, domain.StatusOnHold, payoutTo, move, resolvedBy, &note); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindResolvedDisputesWithHeldPayouts returns disputes already marked
// resolved whose parent payout is still on_hold. A non-empty result means a
// resolution was applied outside ResolveDisputeAtomic (for example by an
// older release) and needs re-driving.
func (r *PostgresRepository) FindResolvedDisputesWithHeldPayouts(ctx context.Context) ([]domain.PayoutDispute, error) {
	query := `
		SELECT d.id, d.payout_id, d.user_id, d.user_type, d.reason, d.amount, d.currency,
		       d.status, d.resolution, d.resolved_by, d.created_at, d.resolved_at
		FROM payout_disputes d
		JOIN payout_transactions p ON p.id = d.payout_id
		WHERE d.status IN ('resolved', 'rejected') AND p.status = 'on_hold'
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []domain.PayoutDispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	return disputes, rows.Err()
}

// ---------------------------------------------------------------------------
// Earnings calculation
// ---------------------------------------------------------------------------

// RecordBookingPayment stores a completed booking payment for later earnings
// processing. Replayed events are absorbed by the booking id conflict clause.
func (r *PostgresRepository) RecordBookingPayment(ctx context.Context, p domain.BookingPayment) error {
	query := `
		INSERT INTO booking_payments (booking_id, user_id, user_type, amount, currency,
			paid_at, earnings_processed)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		ON CONFLICT (booking_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, p.BookingID, p.UserID, p.UserType, p.Amount, p.Currency, p.PaidAt)
	return err
}

// FindUnprocessedBookingPayments returns completed booking payments whose
// earnings have not been credited yet, oldest first.
func (r *PostgresRepository) FindUnprocessedBookingPayments(ctx context.Context, userID *uuid.UUID, limit int) ([]domain.BookingPayment, error) {
	query := `
		SELECT booking_id, user_id, user_type, amount, currency, paid_at, earnings_processed
		FROM booking_payments
		WHERE earnings_processed = FALSE
	`
	args := []any{}
	if userID != nil {
		query += ` AND user_id = $1`
		args = append(args, *userID)
	}
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` ORDER BY paid_at LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.BookingPayment
	for rows.Next() {
		var p domain.BookingPayment
		if err := rows.Scan(&p.BookingID, &p.UserID, &p.UserType, &p.Amount, &p.Currency,
			&p.PaidAt, &p.Processed); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CreditBookingEarningsAtomic flips the booking payment's processed flag and
// credits the user's summary in one database transaction. The guarded flag
// update is the idempotency key: a booking already processed returns
// ErrAlreadyProcessed with no summary change.
func (r *PostgresRepository) CreditBookingEarningsAtomic(ctx context.Context, payment domain.BookingPayment, creditAmount int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	mark := `
		UPDATE booking_payments
		SET earnings_processed = TRUE, processed_at = NOW()
		WHERE booking_id = $1 AND earnings_processed = FALSE
	`
	tag, err := tx.Exec(ctx, mark, payment.BookingID)
	if err != nil {
		return fmt.Errorf("failed to mark booking processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}

	upsert := `
		INSERT INTO earnings_summaries (user_id, user_type, total_earnings, total_paid_out,
			pending_balance, available_balance, on_hold_balance, currency, last_updated_at)
		VALUES ($1, $2, $3, 0, 0, $3, 0, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_earnings = earnings_summaries.total_earnings + EXCLUDED.total_earnings,
			available_balance = earnings_summaries.available_balance + EXCLUDED.available_balance,
			last_updated_at = NOW()
	`
	_, err = tx.Exec(ctx, upsert, payment.UserID, payment.UserType, creditAmount, payment.Currency)
	if err != nil {
		return fmt.Errorf("failed to credit earnings summary: %w", err)
	}

	return tx.Commit(ctx)
}
