/**
 * @description
 * This file defines the core domain models for the deposit-service.
 * These structs represent the main entities used throughout the service's
 * business logic, database interactions, and API layers: virtual deposit
 * accounts issued through Payscribe, and the append-only deposit transaction
 * records created when the aggregator reports an inbound transfer.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (kobo) to
 *   avoid floating-point inaccuracies with financial data. The Payscribe
 *   webhook reports naira values, which are converted at the boundary.
 * - The raw `json.Number` form of the webhook amount is preserved because the
 *   aggregator's transaction hash is computed over the amount exactly as it
 *   was serialized.
 */

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Amount-matching modes for a virtual account.
const (
	AmountTypeExact = "EXACT"
	AmountTypeAny   = "ANY"
)

// Virtual account lifecycle states.
const (
	VirtualAccountStatusActive    = "active"
	VirtualAccountStatusCompleted = "completed"
	VirtualAccountStatusExpired   = "expired"
)

// Deposit transaction states.
const (
	DepositStatusCompleted = "completed"
	DepositStatusRejected  = "rejected"
)

// VirtualAccount represents a deposit-only account number issued to a user
// for receiving a specific incoming transfer. Maps to the `virtual_accounts` table.
type VirtualAccount struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	AccountNumber string     `json:"account_number"`
	AccountName   string     `json:"account_name"`
	BankName      string     `json:"bank_name"`
	BankCode      string     `json:"bank_code"`
	OrderRef      uuid.UUID  `json:"order_ref"`
	AmountKobo    int64      `json:"amount_kobo"`
	AmountType    string     `json:"amount_type"` // 'EXACT' or 'ANY'
	Description   *string    `json:"description,omitempty"`
	Status        string     `json:"status"` // 'active', 'completed', 'expired'
	ExpiresAt     time.Time  `json:"expires_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DepositTransaction is the immutable record of one externally reported
// deposit. Rows are created exactly once per distinct `trans_id` and never
// mutated afterwards. Maps to the `deposit_transactions` table.
type DepositTransaction struct {
	ID                uuid.UUID `json:"id"`
	TransID           string    `json:"trans_id"`
	UserID            uuid.UUID `json:"user_id"`
	VirtualAccountID  uuid.UUID `json:"virtual_account_id"`
	AmountKobo        int64     `json:"amount_kobo"`
	FeeKobo           int64     `json:"fee_kobo"`
	Currency          string    `json:"currency"`
	SenderAccount     string    `json:"sender_account"`
	SenderName        string    `json:"sender_name"`
	SenderBank        string    `json:"sender_bank"`
	Status            string    `json:"status"`
	WebhookVerified   bool      `json:"webhook_verified"`
	TransactionHash   string    `json:"-"`
	WebhookReceivedAt time.Time `json:"webhook_received_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// PayscribeWebhook is the inbound payload for a settled deposit, as posted by
// the Payscribe collections API. Field names follow the aggregator's wire format.
type PayscribeWebhook struct {
	EventID     string              `json:"event_id"`
	EventType   string              `json:"event_type"`
	TransID     string              `json:"trans_id"`
	Amount      json.Number         `json:"amount"`
	Fee         json.Number         `json:"fee"`
	Currency    string              `json:"currency"`
	Transaction PayscribeBankLeg    `json:"transaction"`
	Customer    PayscribeCustomer   `json:"customer"`
	CreatedAt   string              `json:"created_at"`
	// TransactionHash is the keyed SHA-512 digest supplied by Payscribe for
	// authenticity verification.
	TransactionHash string `json:"transaction_hash"`
}

// PayscribeBankLeg carries the bank-side details of the reported transfer.
type PayscribeBankLeg struct {
	SessionID     string      `json:"session_id"`
	Date          string      `json:"date"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Narration     string      `json:"narration"`
	BankName      string      `json:"bank_name"`
	BankCode      string      `json:"bank_code"`
	SenderAccount string      `json:"sender_account"`
	SenderName    string      `json:"sender_name"`
}

// PayscribeCustomer identifies the destination virtual account.
// `number` is the virtual account number used to resolve the owning user.
type PayscribeCustomer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Number      string `json:"number"`
	Bank        string `json:"bank"`
	AccountID   string `json:"account_id"`
	AccountType string `json:"account_type"`
}

// DepositResult is returned after a webhook has been applied to the ledger.
type DepositResult struct {
	Deposit        *DepositTransaction `json:"deposit"`
	VirtualAccount *VirtualAccount     `json:"virtual_account"`
	NewBalanceKobo int64               `json:"new_balance_kobo"`
}

// CreateVirtualAccountParams is the DTO for requesting a new virtual account.
type CreateVirtualAccountParams struct {
	UserID      uuid.UUID `json:"user_id"`
	AmountKobo  int64     `json:"-"`
	Amount      float64   `json:"amount"` // naira, as sent by the dashboard
	AmountType  string    `json:"amount_type,omitempty"`
	Description string    `json:"description,omitempty"`
	ExpiryHours int       `json:"expiry_hours,omitempty"`
}

// DeviceToken is a registered push-notification target for a user.
type DeviceToken struct {
	UserID   uuid.UUID `json:"user_id"`
	FCMToken string    `json:"fcm_token"`
	Platform string    `json:"platform"`
}

// ErrInvalidAmount is returned when a monetary value cannot be represented in kobo.
var ErrInvalidAmount = errors.New("invalid monetary amount")

// KoboFromNaira converts a naira amount, as serialized on the wire, to kobo.
// It parses the decimal string directly rather than going through float64 so
// that values like "2500.05" convert exactly. At most two fractional digits
// are accepted; bank transfers never settle in sub-kobo amounts.
func KoboFromNaira(amount json.Number) (int64, error) {
	raw := strings.TrimSpace(amount.String())
	if raw == "" {
		return 0, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(raw, "-") {
		negative = true
		raw = raw[1:]
	}

	whole, frac := raw, ""
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		whole, frac = raw[:idx], raw[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: more than two decimal places in %q", ErrInvalidAmount, amount.String())
	}
	for len(frac) < 2 {
		frac += "0"
	}

	var kobo int64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount.String())
		}
		digit := int64(r - '0')
		if kobo > (1<<63-1-digit)/10 {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, amount.String())
		}
		kobo = kobo*10 + digit
	}
	if negative {
		kobo = -kobo
	}
	return kobo, nil
}
