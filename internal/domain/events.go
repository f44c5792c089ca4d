/**
 * @description
 * Event payloads published by the deposit-service to RabbitMQ so that other
 * parts of the platform (dashboard feeds, cashback, referrals) can react to
 * wallet funding without coupling to this service's database.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DepositCompletedEvent is published on the `deposit.completed` routing key
// after a verified webhook has credited a wallet.
type DepositCompletedEvent struct {
	TransID          string    `json:"trans_id"`
	UserID           uuid.UUID `json:"user_id"`
	VirtualAccountID uuid.UUID `json:"virtual_account_id"`
	AmountKobo       int64     `json:"amount_kobo"`
	FeeKobo          int64     `json:"fee_kobo"`
	Currency         string    `json:"currency"`
	SenderName       string    `json:"sender_name"`
	Timestamp        time.Time `json:"timestamp"`
}

// VirtualAccountExpiredEvent is published when the expiry job retires an
// unused virtual account.
type VirtualAccountExpiredEvent struct {
	VirtualAccountID uuid.UUID `json:"virtual_account_id"`
	UserID           uuid.UUID `json:"user_id"`
	AccountNumber    string    `json:"account_number"`
	Timestamp        time.Time `json:"timestamp"`
}
