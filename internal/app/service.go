/**
 * @description
 * This file contains the core application service for the deposit-service. It
 * orchestrates the webhook-processing flow (verify signature, apply the deposit
 * atomically, fan out events) and the virtual-account issuance flow against the
 * Payscribe collections API.
 *
 * Key features:
 * - Fail-closed signature verification: the shared secret is validated at
 *   bootstrap, so a request can never be processed unsigned.
 * - Idempotent webhook application: the repository's unique constraint on
 *   trans_id makes redelivery and concurrent delivery safe.
 * - Best-effort fan-out: RabbitMQ events and FCM pushes never fail a webhook
 *   that has already been committed.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and persistence.
 * - pkg/payscribeclient: Client for the Payscribe collections API.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Amhaztech0/HazPay-sub000/internal/domain"
	"github.com/Amhaztech0/HazPay-sub000/internal/store"
	"github.com/Amhaztech0/HazPay-sub000/pkg/payscribeclient"
)

var (
	// ErrHashVerificationFailed means the webhook's transaction_hash did not
	// match the digest computed over the canonical field concatenation.
	ErrHashVerificationFailed = errors.New("hash verification failed")
	// ErrMalformedWebhook means a required payload field was missing or unparsable.
	ErrMalformedWebhook = errors.New("malformed webhook payload")
	// ErrInvalidIssuanceRequest means a virtual-account request failed validation.
	ErrInvalidIssuanceRequest = errors.New("invalid virtual account request")
	// ErrIssuerUnavailable means the Payscribe client is not configured.
	ErrIssuerUnavailable = errors.New("virtual account issuer not configured")
)

// EventPublisher publishes platform events. Satisfied by rabbitmq.EventProducer.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// PushSender delivers a push notification to one device token.
// Satisfied by fcmclient.Client.
type PushSender interface {
	Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}

// VirtualAccountIssuer creates virtual accounts at the aggregator.
// Satisfied by payscribeclient.Client.
type VirtualAccountIssuer interface {
	CreateVirtualAccount(ctx context.Context, req payscribeclient.CreateVirtualAccountRequest) (*payscribeclient.VirtualAccountDetails, error)
}

// Service holds the business logic of the deposit-service.
type Service struct {
	repo          store.Repository
	issuer        VirtualAccountIssuer
	publisher     EventPublisher
	push          PushSender
	webhookSecret string
	eventExchange string
}

// NewService creates the application service. The webhook secret must already
// have been validated by the config layer; an empty secret here is a
// programming error and is rejected to keep verification fail-closed.
func NewService(
	repo store.Repository,
	issuer VirtualAccountIssuer,
	publisher EventPublisher,
	push PushSender,
	webhookSecret string,
	eventExchange string,
) (*Service, error) {
	if strings.TrimSpace(webhookSecret) == "" {
		return nil, errors.New("webhook secret must not be empty")
	}
	if eventExchange == "" {
		eventExchange = "hazpay.events"
	}
	return &Service{
		repo:          repo,
		issuer:        issuer,
		publisher:     publisher,
		push:          push,
		webhookSecret: webhookSecret,
		eventExchange: eventExchange,
	}, nil
}

// ProcessDepositWebhook runs the full ingestion flow for one Payscribe deposit
// notification. On success it returns the applied result; a redelivered
// trans_id surfaces as store.ErrDuplicateTransaction with nothing mutated.
func (s *Service) ProcessDepositWebhook(ctx context.Context, webhook *domain.PayscribeWebhook) (*domain.DepositResult, error) {
	if webhook.TransID == "" || webhook.Customer.Number == "" || webhook.TransactionHash == "" {
		return nil, fmt.Errorf("%w: trans_id, customer.number and transaction_hash are required", ErrMalformedWebhook)
	}

	// The digest covers the amount exactly as Payscribe serialized it, hence
	// the raw json.Number token rather than the parsed kobo value.
	expected := ComputeTransactionHash(
		s.webhookSecret,
		webhook.Transaction.SenderAccount,
		webhook.Customer.Number,
		webhook.Customer.Bank,
		webhook.Amount.String(),
		webhook.TransID,
	)
	if !VerifyTransactionHash(expected, webhook.TransactionHash) {
		log.Printf("level=warn component=deposit_service msg=\"hash verification failed\" trans_id=%s account=%s", webhook.TransID, webhook.Customer.Number)
		return nil, ErrHashVerificationFailed
	}

	// Fast-path duplicate probe. The unique constraint inside ApplyDeposit is
	// the authoritative guard; this read just avoids opening a transaction for
	// the common redelivery case. A lookup failure is conservative: we stop
	// rather than risk a double credit.
	if _, err := s.repo.FindDepositByTransID(ctx, webhook.TransID); err == nil {
		return nil, store.ErrDuplicateTransaction
	} else if !errors.Is(err, store.ErrDepositNotFound) {
		return nil, fmt.Errorf("duplicate probe failed: %w", err)
	}

	amountKobo, err := domain.KoboFromNaira(webhook.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if amountKobo <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrMalformedWebhook)
	}
	feeKobo := int64(0)
	if webhook.Fee.String() != "" {
		if feeKobo, err = domain.KoboFromNaira(webhook.Fee); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
		}
	}

	result, err := s.repo.ApplyDeposit(ctx, store.ApplyDepositParams{
		TransID:           webhook.TransID,
		AccountNumber:     webhook.Customer.Number,
		AmountKobo:        amountKobo,
		FeeKobo:           feeKobo,
		Currency:          webhook.Currency,
		SenderAccount:     webhook.Transaction.SenderAccount,
		SenderName:        webhook.Transaction.SenderName,
		SenderBank:        webhook.Transaction.BankName,
		TransactionHash:   webhook.TransactionHash,
		WebhookReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=deposit_service msg=\"deposit applied\" trans_id=%s user_id=%s amount_kobo=%d new_balance_kobo=%d",
		result.Deposit.TransID, result.Deposit.UserID, result.Deposit.AmountKobo, result.NewBalanceKobo)

	s.fanOutDepositCompleted(ctx, result)
	return result, nil
}

// fanOutDepositCompleted publishes the deposit event and pushes a wallet-funded
// notification. Both are best effort: the credit has already committed.
func (s *Service) fanOutDepositCompleted(ctx context.Context, result *domain.DepositResult) {
	deposit := result.Deposit

	if s.publisher != nil {
		event := domain.DepositCompletedEvent{
			TransID:          deposit.TransID,
			UserID:           deposit.UserID,
			VirtualAccountID: deposit.VirtualAccountID,
			AmountKobo:       deposit.AmountKobo,
			FeeKobo:          deposit.FeeKobo,
			Currency:         deposit.Currency,
			SenderName:       deposit.SenderName,
			Timestamp:        time.Now().UTC(),
		}
		if err := s.publisher.Publish(ctx, s.eventExchange, "deposit.completed", event); err != nil {
			log.Printf("level=warn component=deposit_service msg=\"deposit event publish failed\" trans_id=%s err=%v", deposit.TransID, err)
		}
	}

	if s.push == nil {
		return
	}
	tokens, err := s.repo.ListDeviceTokensByUserID(ctx, deposit.UserID)
	if err != nil {
		log.Printf("level=warn component=deposit_service msg=\"device token lookup failed\" user_id=%s err=%v", deposit.UserID, err)
		return
	}
	title := "Wallet funded"
	body := fmt.Sprintf("Your wallet has been credited with ₦%s.", FormatNaira(deposit.AmountKobo))
	data := map[string]string{
		"type":     "deposit_completed",
		"trans_id": deposit.TransID,
	}
	for _, token := range tokens {
		if err := s.push.Send(ctx, token.FCMToken, title, body, data); err != nil {
			log.Printf("level=warn component=deposit_service msg=\"push send failed\" user_id=%s platform=%s err=%v", deposit.UserID, token.Platform, err)
		}
	}
}

// CreateVirtualAccount requests a dynamic virtual account from Payscribe and
// persists it as active.
func (s *Service) CreateVirtualAccount(ctx context.Context, params domain.CreateVirtualAccountParams) (*domain.VirtualAccount, error) {
	if s.issuer == nil {
		return nil, ErrIssuerUnavailable
	}
	if params.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidIssuanceRequest)
	}
	if params.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidIssuanceRequest)
	}

	amountType := strings.ToUpper(strings.TrimSpace(params.AmountType))
	switch amountType {
	case "":
		amountType = domain.AmountTypeExact
	case domain.AmountTypeExact, domain.AmountTypeAny:
	default:
		return nil, fmt.Errorf("%w: amount_type must be EXACT or ANY", ErrInvalidIssuanceRequest)
	}

	expiryHours := params.ExpiryHours
	if expiryHours <= 0 {
		expiryHours = 1
	}

	description := strings.TrimSpace(params.Description)
	if description == "" {
		description = fmt.Sprintf("Deposit for user %s", params.UserID)
	}

	orderRef := uuid.New()
	details, err := s.issuer.CreateVirtualAccount(ctx, payscribeclient.CreateVirtualAccountRequest{
		Ref:           orderRef.String(),
		AmountNaira:   params.Amount,
		AmountType:    amountType,
		Description:   description,
		ExpiryHours:   expiryHours,
		CustomerName:  fmt.Sprintf("User %s", params.UserID),
		CustomerEmail: fmt.Sprintf("user-%s@hazpay.local", params.UserID),
	})
	if err != nil {
		return nil, err
	}

	account := &domain.VirtualAccount{
		ID:            uuid.New(),
		UserID:        params.UserID,
		AccountNumber: details.AccountNumber,
		AccountName:   details.AccountName,
		BankName:      details.BankName,
		BankCode:      details.BankCode,
		OrderRef:      orderRef,
		AmountKobo:    int64(math.Round(params.Amount * 100)),
		AmountType:    amountType,
		Description:   &description,
		Status:        domain.VirtualAccountStatusActive,
		ExpiresAt:     time.Now().UTC().Add(time.Duration(expiryHours) * time.Hour),
	}
	if err := s.repo.CreateVirtualAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to store virtual account: %w", err)
	}

	log.Printf("level=info component=deposit_service msg=\"virtual account issued\" user_id=%s account=%s amount_type=%s expires_at=%s",
		params.UserID, details.AccountNumber, amountType, account.ExpiresAt.Format(time.RFC3339))
	return account, nil
}

// ListDeposits returns a user's deposit history for the dashboard.
func (s *Service) ListDeposits(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.DepositTransaction, error) {
	return s.repo.ListDepositsByUserID(ctx, userID, limit, offset)
}

// ListVirtualAccounts returns a user's virtual accounts for the dashboard.
func (s *Service) ListVirtualAccounts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.VirtualAccount, error) {
	return s.repo.ListVirtualAccountsByUserID(ctx, userID, limit, offset)
}

// FormatNaira renders a kobo amount as a naira string with two decimals,
// dropping the fraction when it is zero (2500.00 -> "2500").
func FormatNaira(kobo int64) string {
	if kobo%100 == 0 {
		return fmt.Sprintf("%d", kobo/100)
	}
	return fmt.Sprintf("%d.%02d", kobo/100, kobo%100)
}
