/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed for the deposit flow: virtual account issuance
 * and lookup, the atomic webhook application (deposit insert + wallet credit +
 * account completion in one transaction), and the expiry sweep.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Amhaztech0/HazPay-sub000/internal/domain"
)

var (
	ErrVirtualAccountNotFound = errors.New("virtual account not found")
	ErrDuplicateTransaction   = errors.New("duplicate deposit transaction")
	ErrAmountMismatch         = errors.New("deposit amount does not match expected amount")
	ErrProfileNotFound        = errors.New("user profile not found")
	ErrDepositNotFound        = errors.New("deposit transaction not found")
)

// uniqueViolationCode is the PostgreSQL error code for unique constraint violations.
const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation, optionally scoped to a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != uniqueViolationCode {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

const virtualAccountColumns = `
	id, user_id, account_number, account_name, bank_name, bank_code, order_ref,
	amount_kobo, amount_type, description, status, expires_at, completed_at,
	created_at, updated_at
`

func scanVirtualAccount(row pgx.Row) (*domain.VirtualAccount, error) {
	var va domain.VirtualAccount
	err := row.Scan(
		&va.ID, &va.UserID, &va.AccountNumber, &va.AccountName, &va.BankName,
		&va.BankCode, &va.OrderRef, &va.AmountKobo, &va.AmountType,
		&va.Description, &va.Status, &va.ExpiresAt, &va.CompletedAt,
		&va.CreatedAt, &va.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &va, nil
}

// CreateVirtualAccount persists a newly issued virtual account as 'active'.
func (r *PostgresRepository) CreateVirtualAccount(ctx context.Context, account *domain.VirtualAccount) error {
	query := `
		INSERT INTO virtual_accounts (
			id, user_id, account_number, account_name, bank_name, bank_code,
			order_ref, amount_kobo, amount_type, description, status, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		account.ID,
		account.UserID,
		account.AccountNumber,
		account.AccountName,
		account.BankName,
		account.BankCode,
		account.OrderRef,
		account.AmountKobo,
		account.AmountType,
		account.Description,
		account.Status,
		account.ExpiresAt,
	)
	return err
}

// FindVirtualAccountByNumber resolves a virtual account by its account number.
// Active accounts win; when none is active the most recent row is returned so
// that a late webhook for an already expired account can still be applied.
func (r *PostgresRepository) FindVirtualAccountByNumber(ctx context.Context, accountNumber string) (*domain.VirtualAccount, error) {
	query := `
		SELECT ` + virtualAccountColumns + `
		FROM virtual_accounts
		WHERE account_number = $1
		ORDER BY (status = 'active') DESC, created_at DESC
		LIMIT 1
	`
	va, err := scanVirtualAccount(r.db.QueryRow(ctx, query, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVirtualAccountNotFound
		}
		return nil, err
	}
	return va, nil
}

// ListVirtualAccountsByUserID returns a user's virtual accounts, newest first.
func (r *PostgresRepository) ListVirtualAccountsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.VirtualAccount, error) {
	limit, offset = clampPage(limit, offset)

	query := `
		SELECT ` + virtualAccountColumns + `
		FROM virtual_accounts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.VirtualAccount
	for rows.Next() {
		va, err := scanVirtualAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *va)
	}
	return accounts, rows.Err()
}

// ExpireVirtualAccounts retires active accounts whose expiry window has passed
// and returns the affected rows so the caller can fan out notifications.
// Completed accounts are never touched.
func (r *PostgresRepository) ExpireVirtualAccounts(ctx context.Context, cutoff time.Time) ([]domain.VirtualAccount, error) {
	query := `
		UPDATE virtual_accounts
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND expires_at < $1
		RETURNING ` + virtualAccountColumns + `
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.VirtualAccount
	for rows.Next() {
		va, err := scanVirtualAccount(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *va)
	}
	return expired, rows.Err()
}

// FindDepositByTransID looks up an existing deposit by the aggregator's
// transaction identifier.
func (r *PostgresRepository) FindDepositByTransID(ctx context.Context, transID string) (*domain.DepositTransaction, error) {
	query := `
		SELECT id, trans_id, user_id, virtual_account_id, amount_kobo, fee_kobo,
		       currency, sender_account, sender_name, sender_bank, status,
		       webhook_verified, transaction_hash, webhook_received_at, created_at
		FROM deposit_transactions
		WHERE trans_id = $1
	`
	var d domain.DepositTransaction
	err := r.db.QueryRow(ctx, query, transID).Scan(
		&d.ID, &d.TransID, &d.UserID, &d.VirtualAccountID, &d.AmountKobo,
		&d.FeeKobo, &d.Currency, &d.SenderAccount, &d.SenderName, &d.SenderBank,
		&d.Status, &d.WebhookVerified, &d.TransactionHash, &d.WebhookReceivedAt,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ApplyDeposit performs the whole ledger mutation for one verified webhook in
// a single database transaction:
//
//  1. resolve and lock the virtual account row;
//  2. enforce the EXACT amount rule;
//  3. insert the deposit row; the unique constraint on trans_id is the
//     duplicate guard, so concurrent deliveries of the same trans_id cannot
//     both commit;
//  4. credit the wallet with a server-side increment;
//  5. complete the virtual account, conditional on it still being active.
//
// Either every step commits or none does, so a failure can never leave a
// recorded-but-uncredited deposit behind.
func (r *PostgresRepository) ApplyDeposit(ctx context.Context, params ApplyDepositParams) (*domain.DepositResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT ` + virtualAccountColumns + `
		FROM virtual_accounts
		WHERE account_number = $1
		ORDER BY (status = 'active') DESC, created_at DESC
		LIMIT 1
		FOR UPDATE
	`
	va, err := scanVirtualAccount(tx.QueryRow(ctx, query, params.AccountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVirtualAccountNotFound
		}
		return nil, err
	}

	if va.AmountType == domain.AmountTypeExact && params.AmountKobo != va.AmountKobo {
		return nil, ErrAmountMismatch
	}

	deposit := &domain.DepositTransaction{
		ID:                uuid.New(),
		TransID:           params.TransID,
		UserID:            va.UserID,
		VirtualAccountID:  va.ID,
		AmountKobo:        params.AmountKobo,
		FeeKobo:           params.FeeKobo,
		Currency:          params.Currency,
		SenderAccount:     params.SenderAccount,
		SenderName:        params.SenderName,
		SenderBank:        params.SenderBank,
		Status:            domain.DepositStatusCompleted,
		WebhookVerified:   true,
		TransactionHash:   params.TransactionHash,
		WebhookReceivedAt: params.WebhookReceivedAt,
	}

	insert := `
		INSERT INTO deposit_transactions (
			id, trans_id, user_id, virtual_account_id, amount_kobo, fee_kobo,
			currency, sender_account, sender_name, sender_bank, status,
			webhook_verified, transaction_hash, webhook_received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, insert,
		deposit.ID,
		deposit.TransID,
		deposit.UserID,
		deposit.VirtualAccountID,
		deposit.AmountKobo,
		deposit.FeeKobo,
		deposit.Currency,
		deposit.SenderAccount,
		deposit.SenderName,
		deposit.SenderBank,
		deposit.Status,
		deposit.WebhookVerified,
		deposit.TransactionHash,
		deposit.WebhookReceivedAt,
	).Scan(&deposit.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}

	var newBalance int64
	err = tx.QueryRow(ctx,
		`UPDATE profiles
		 SET wallet_balance_kobo = wallet_balance_kobo + $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING wallet_balance_kobo`,
		deposit.AmountKobo, va.UserID,
	).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	// Late webhooks for expired accounts still credit; only active accounts
	// flip to completed.
	tag, err := tx.Exec(ctx,
		`UPDATE virtual_accounts
		 SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'active'`,
		va.ID,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 1 {
		va.Status = domain.VirtualAccountStatusCompleted
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.DepositResult{
		Deposit:        deposit,
		VirtualAccount: va,
		NewBalanceKobo: newBalance,
	}, nil
}

// ListDepositsByUserID returns a user's deposit history, newest first.
func (r *PostgresRepository) ListDepositsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.DepositTransaction, error) {
	limit, offset = clampPage(limit, offset)

	query := `
		SELECT id, trans_id, user_id, virtual_account_id, amount_kobo, fee_kobo,
		       currency, sender_account, sender_name, sender_bank, status,
		       webhook_verified, transaction_hash, webhook_received_at, created_at
		FROM deposit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []domain.DepositTransaction
	for rows.Next() {
		var d domain.DepositTransaction
		err := rows.Scan(
			&d.ID, &d.TransID, &d.UserID, &d.VirtualAccountID, &d.AmountKobo,
			&d.FeeKobo, &d.Currency, &d.SenderAccount, &d.SenderName,
			&d.SenderBank, &d.Status, &d.WebhookVerified, &d.TransactionHash,
			&d.WebhookReceivedAt, &d.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// ListDeviceTokensByUserID returns the user's registered push targets.
func (r *PostgresRepository) ListDeviceTokensByUserID(ctx context.Context, userID uuid.UUID) ([]domain.DeviceToken, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, fcm_token, platform FROM user_devices WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.DeviceToken
	for rows.Next() {
		var t domain.DeviceToken
		if err := rows.Scan(&t.UserID, &t.FCMToken, &t.Platform); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// clampPage applies the service-wide pagination bounds.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
