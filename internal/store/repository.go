/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the deposit-service. By defining an interface,
 * we decouple the webhook-processing logic from the specific database implementation
 * (PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Amhaztech0/HazPay-sub000/internal/domain"
)

// ApplyDepositParams carries everything the store needs to atomically apply
// one verified webhook: the immutable transaction record fields plus the
// destination account number used to resolve the owning user.
type ApplyDepositParams struct {
	TransID           string
	AccountNumber     string
	AmountKobo        int64
	FeeKobo           int64
	Currency          string
	SenderAccount     string
	SenderName        string
	SenderBank        string
	TransactionHash   string
	WebhookReceivedAt time.Time
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Virtual account methods
	CreateVirtualAccount(ctx context.Context, account *domain.VirtualAccount) error
	FindVirtualAccountByNumber(ctx context.Context, accountNumber string) (*domain.VirtualAccount, error)
	ListVirtualAccountsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.VirtualAccount, error)
	ExpireVirtualAccounts(ctx context.Context, cutoff time.Time) ([]domain.VirtualAccount, error)

	// Deposit methods
	// FindDepositByTransID is the fast-path duplicate probe; ApplyDeposit's
	// unique constraint on trans_id remains the authoritative guard.
	FindDepositByTransID(ctx context.Context, transID string) (*domain.DepositTransaction, error)
	// ApplyDeposit resolves the virtual account, enforces the EXACT amount
	// rule, inserts the deposit row, credits the wallet and completes the
	// account, all inside a single database transaction. It returns
	// ErrDuplicateTransaction when trans_id has already been recorded,
	// ErrVirtualAccountNotFound, ErrAmountMismatch or ErrProfileNotFound
	// without having mutated anything.
	ApplyDeposit(ctx context.Context, params ApplyDepositParams) (*domain.DepositResult, error)
	ListDepositsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.DepositTransaction, error)

	// Notification fan-out
	ListDeviceTokensByUserID(ctx context.Context, userID uuid.UUID) ([]domain.DeviceToken, error)
}
