package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Amhaztech0/HazPay-sub000/internal/domain"
	"github.com/Amhaztech0/HazPay-sub000/internal/store"
	"github.com/Amhaztech0/HazPay-sub000/pkg/payscribeclient"
)

const testWebhookSecret = "whsec_hazpay_test"

type webhookRepoStub struct {
	store.Repository

	existingDeposit *domain.DepositTransaction
	probeErr        error

	applyCalled bool
	applyParams store.ApplyDepositParams
	applyResult *domain.DepositResult
	applyErr    error

	deviceTokens []domain.DeviceToken
}

func (s *webhookRepoStub) FindDepositByTransID(ctx context.Context, transID string) (*domain.DepositTransaction, error) {
	if s.probeErr != nil {
		return nil, s.probeErr
	}
	if s.existingDeposit != nil && s.existingDeposit.TransID == transID {
		return s.existingDeposit, nil
	}
	return nil, store.ErrDepositNotFound
}

func (s *webhookRepoStub) ApplyDeposit(ctx context.Context, params store.ApplyDepositParams) (*domain.DepositResult, error) {
	s.applyCalled = true
	s.applyParams = params
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	return s.applyResult, nil
}

func (s *webhookRepoStub) ListDeviceTokensByUserID(ctx context.Context, userID uuid.UUID) ([]domain.DeviceToken, error) {
	return s.deviceTokens, nil
}

type publisherStub struct {
	mu       sync.Mutex
	events   []publishedEvent
	failWith error
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{exchange, routingKey, body})
	return p.failWith
}

type pushStub struct {
	sent []string
}

func (p *pushStub) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	p.sent = append(p.sent, deviceToken)
	return nil
}

// signedWebhook builds a payload whose transaction_hash is valid for
// testWebhookSecret.
func signedWebhook(transID, accountNumber, amount string) *domain.PayscribeWebhook {
	webhook := &domain.PayscribeWebhook{
		EventType: "collection.settled",
		TransID:   transID,
		Amount:    json.Number(amount),
		Currency:  "NGN",
		Transaction: domain.PayscribeBankLeg{
			SenderAccount: "0011223344",
			SenderName:    "ADA OBI",
			BankName:      "GTBank",
		},
		Customer: domain.PayscribeCustomer{
			Number: accountNumber,
			Bank:   "000023",
		},
	}
	webhook.TransactionHash = ComputeTransactionHash(
		testWebhookSecret,
		webhook.Transaction.SenderAccount,
		webhook.Customer.Number,
		webhook.Customer.Bank,
		amount,
		transID,
	)
	return webhook
}

func newTestService(t *testing.T, repo store.Repository, publisher EventPublisher, push PushSender) *Service {
	t.Helper()
	service, err := NewService(repo, nil, publisher, push, testWebhookSecret, "hazpay.events")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return service
}

func TestNewServiceRejectsEmptySecret(t *testing.T) {
	if _, err := NewService(&webhookRepoStub{}, nil, nil, nil, "   ", ""); err == nil {
		t.Fatal("expected empty webhook secret to be rejected")
	}
}

func TestProcessDepositWebhookRejectsTamperedHash(t *testing.T) {
	repo := &webhookRepoStub{}
	service := newTestService(t, repo, nil, nil)

	webhook := signedWebhook("TX001", "9977553311", "2500")
	webhook.Amount = json.Number("9999") // tampered after signing

	_, err := service.ProcessDepositWebhook(context.Background(), webhook)
	if !errors.Is(err, ErrHashVerificationFailed) {
		t.Fatalf("expected ErrHashVerificationFailed, got %v", err)
	}
	if repo.applyCalled {
		t.Fatal("repository must not be touched when the hash is invalid")
	}
}

func TestProcessDepositWebhookRejectsMissingFields(t *testing.T) {
	repo := &webhookRepoStub{}
	service := newTestService(t, repo, nil, nil)

	webhook := signedWebhook("TX001", "9977553311", "2500")
	webhook.TransID = ""

	_, err := service.ProcessDepositWebhook(context.Background(), webhook)
	if !errors.Is(err, ErrMalformedWebhook) {
		t.Fatalf("expected ErrMalformedWebhook, got %v", err)
	}
	if repo.applyCalled {
		t.Fatal("repository must not be touched for a malformed payload")
	}
}

func TestProcessDepositWebhookDuplicateFastPath(t *testing.T) {
	repo := &webhookRepoStub{
		existingDeposit: &domain.DepositTransaction{TransID: "TX001"},
	}
	service := newTestService(t, repo, nil, nil)

	_, err := service.ProcessDepositWebhook(context.Background(), signedWebhook("TX001", "9977553311", "2500"))
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if repo.applyCalled {
		t.Fatal("a known duplicate must not open an apply transaction")
	}
}

func TestProcessDepositWebhookStopsOnProbeFailure(t *testing.T) {
	repo := &webhookRepoStub{probeErr: errors.New("connection reset")}
	service := newTestService(t, repo, nil, nil)

	_, err := service.ProcessDepositWebhook(context.Background(), signedWebhook("TX001", "9977553311", "2500"))
	if err == nil {
		t.Fatal("expected an error when the duplicate probe fails")
	}
	if repo.applyCalled {
		t.Fatal("an unverifiable duplicate state must not be applied")
	}
}

func TestProcessDepositWebhookSuccess(t *testing.T) {
	userID := uuid.New()
	accountID := uuid.New()
	repo := &webhookRepoStub{
		applyResult: &domain.DepositResult{
			Deposit: &domain.DepositTransaction{
				ID:         uuid.New(),
				TransID:    "TX001",
				UserID:     userID,
				AmountKobo: 250050,
				Currency:   "NGN",
			},
			VirtualAccount: &domain.VirtualAccount{ID: accountID, UserID: userID},
			NewBalanceKobo: 300050,
		},
		deviceTokens: []domain.DeviceToken{
			{UserID: userID, FCMToken: "token-a", Platform: "android"},
			{UserID: userID, FCMToken: "token-b", Platform: "ios"},
		},
	}
	publisher := &publisherStub{}
	push := &pushStub{}
	service := newTestService(t, repo, publisher, push)

	result, err := service.ProcessDepositWebhook(context.Background(), signedWebhook("TX001", "9977553311", "2500.50"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewBalanceKobo != 300050 {
		t.Fatalf("expected new balance 300050, got %d", result.NewBalanceKobo)
	}

	if !repo.applyCalled {
		t.Fatal("expected ApplyDeposit to be called")
	}
	if repo.applyParams.AmountKobo != 250050 {
		t.Fatalf("expected amount 250050 kobo, got %d", repo.applyParams.AmountKobo)
	}
	if repo.applyParams.AccountNumber != "9977553311" {
		t.Fatalf("unexpected account number %q", repo.applyParams.AccountNumber)
	}
	if repo.applyParams.TransactionHash == "" {
		t.Fatal("expected the verified hash to be persisted with the deposit")
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(publisher.events))
	}
	if publisher.events[0].routingKey != "deposit.completed" {
		t.Fatalf("unexpected routing key %q", publisher.events[0].routingKey)
	}
	event, ok := publisher.events[0].body.(domain.DepositCompletedEvent)
	if !ok {
		t.Fatalf("unexpected event body type %T", publisher.events[0].body)
	}
	if event.TransID != "TX001" || event.AmountKobo != 250050 {
		t.Fatalf("unexpected event payload: %+v", event)
	}

	if len(push.sent) != 2 {
		t.Fatalf("expected 2 push sends, got %d", len(push.sent))
	}
}

func TestProcessDepositWebhookSurvivesPublishFailure(t *testing.T) {
	userID := uuid.New()
	repo := &webhookRepoStub{
		applyResult: &domain.DepositResult{
			Deposit:        &domain.DepositTransaction{TransID: "TX001", UserID: userID, AmountKobo: 250000},
			VirtualAccount: &domain.VirtualAccount{UserID: userID},
			NewBalanceKobo: 250000,
		},
	}
	publisher := &publisherStub{failWith: errors.New("broker gone")}
	service := newTestService(t, repo, publisher, nil)

	if _, err := service.ProcessDepositWebhook(context.Background(), signedWebhook("TX001", "9977553311", "2500")); err != nil {
		t.Fatalf("a committed deposit must not fail on fan-out, got %v", err)
	}
}

func TestProcessDepositWebhookPassesThroughStoreErrors(t *testing.T) {
	testCases := []struct {
		name     string
		applyErr error
	}{
		{"unknown virtual account", store.ErrVirtualAccountNotFound},
		{"amount mismatch", store.ErrAmountMismatch},
		{"duplicate under race", store.ErrDuplicateTransaction},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &webhookRepoStub{applyErr: tc.applyErr}
			service := newTestService(t, repo, &publisherStub{}, nil)

			_, err := service.ProcessDepositWebhook(context.Background(), signedWebhook("TX001", "9977553311", "2500"))
			if !errors.Is(err, tc.applyErr) {
				t.Fatalf("expected %v, got %v", tc.applyErr, err)
			}
		})
	}
}

// ledgerFake is a mutex-protected in-memory ledger used to exercise the
// idempotency and balance invariants under concurrent webhook delivery.
type ledgerFake struct {
	store.Repository

	mu      sync.Mutex
	userID  uuid.UUID
	account domain.VirtualAccount
	applied map[string]*domain.DepositTransaction
	balance int64
}

func newLedgerFake() *ledgerFake {
	userID := uuid.New()
	return &ledgerFake{
		userID: userID,
		account: domain.VirtualAccount{
			ID:         uuid.New(),
			UserID:     userID,
			AmountType: domain.AmountTypeAny,
			Status:     domain.VirtualAccountStatusActive,
		},
		applied: make(map[string]*domain.DepositTransaction),
	}
}

func (f *ledgerFake) FindDepositByTransID(ctx context.Context, transID string) (*domain.DepositTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if deposit, ok := f.applied[transID]; ok {
		return deposit, nil
	}
	return nil, store.ErrDepositNotFound
}

func (f *ledgerFake) ApplyDeposit(ctx context.Context, params store.ApplyDepositParams) (*domain.DepositResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.applied[params.TransID]; ok {
		return nil, store.ErrDuplicateTransaction
	}
	deposit := &domain.DepositTransaction{
		ID:         uuid.New(),
		TransID:    params.TransID,
		UserID:     f.userID,
		AmountKobo: params.AmountKobo,
		Status:     domain.DepositStatusCompleted,
	}
	f.applied[params.TransID] = deposit
	f.balance += params.AmountKobo
	account := f.account
	return &domain.DepositResult{Deposit: deposit, VirtualAccount: &account, NewBalanceKobo: f.balance}, nil
}

func (f *ledgerFake) ListDeviceTokensByUserID(ctx context.Context, userID uuid.UUID) ([]domain.DeviceToken, error) {
	return nil, nil
}

func TestConcurrentWebhookDeliveryCreditsEachDepositOnce(t *testing.T) {
	fake := newLedgerFake()
	service := newTestService(t, fake, &publisherStub{}, nil)

	const deliveries = 50
	const redeliveries = 3

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		transID := fmt.Sprintf("TX-%03d", i)
		for j := 0; j < redeliveries; j++ {
			wg.Add(1)
			go func(transID string) {
				defer wg.Done()
				_, err := service.ProcessDepositWebhook(context.Background(), signedWebhook(transID, "9977553311", "100"))
				if err != nil && !errors.Is(err, store.ErrDuplicateTransaction) {
					t.Errorf("unexpected error for %s: %v", transID, err)
				}
			}(transID)
		}
	}
	wg.Wait()

	if len(fake.applied) != deliveries {
		t.Fatalf("expected %d applied deposits, got %d", deliveries, len(fake.applied))
	}
	want := int64(deliveries * 10000)
	if fake.balance != want {
		t.Fatalf("expected final balance %d kobo, got %d", want, fake.balance)
	}
}

type issuerStub struct {
	req     payscribeclient.CreateVirtualAccountRequest
	details *payscribeclient.VirtualAccountDetails
	err     error
}

func (s *issuerStub) CreateVirtualAccount(ctx context.Context, req payscribeclient.CreateVirtualAccountRequest) (*payscribeclient.VirtualAccountDetails, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return s.details, nil
}

type accountRepoStub struct {
	store.Repository

	created *domain.VirtualAccount
}

func (s *accountRepoStub) CreateVirtualAccount(ctx context.Context, account *domain.VirtualAccount) error {
	s.created = account
	return nil
}

func TestCreateVirtualAccountDefaultsAndPersists(t *testing.T) {
	repo := &accountRepoStub{}
	issuer := &issuerStub{
		details: &payscribeclient.VirtualAccountDetails{
			AccountNumber: "9977553311",
			AccountName:   "HazPay Checkout",
			BankName:      "Wema Bank",
			BankCode:      "000017",
		},
	}
	service, err := NewService(repo, issuer, nil, nil, testWebhookSecret, "")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	userID := uuid.New()
	account, err := service.CreateVirtualAccount(context.Background(), domain.CreateVirtualAccountParams{
		UserID: userID,
		Amount: 2500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if issuer.req.AmountType != domain.AmountTypeExact {
		t.Fatalf("expected EXACT default, got %q", issuer.req.AmountType)
	}
	if issuer.req.ExpiryHours != 1 {
		t.Fatalf("expected 1 hour default expiry, got %d", issuer.req.ExpiryHours)
	}
	if issuer.req.Ref == "" {
		t.Fatal("expected an order reference to be generated")
	}

	if repo.created == nil {
		t.Fatal("expected the account to be persisted")
	}
	if repo.created.Status != domain.VirtualAccountStatusActive {
		t.Fatalf("expected active status, got %q", repo.created.Status)
	}
	if repo.created.AmountKobo != 250000 {
		t.Fatalf("expected 250000 kobo, got %d", repo.created.AmountKobo)
	}
	if account.AccountNumber != "9977553311" {
		t.Fatalf("unexpected account number %q", account.AccountNumber)
	}
	if remaining := time.Until(account.ExpiresAt); remaining <= 50*time.Minute || remaining > time.Hour {
		t.Fatalf("expected expiry roughly an hour out, got %s", remaining)
	}
}

func TestCreateVirtualAccountValidation(t *testing.T) {
	issuer := &issuerStub{details: &payscribeclient.VirtualAccountDetails{AccountNumber: "1"}}
	service, err := NewService(&accountRepoStub{}, issuer, nil, nil, testWebhookSecret, "")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	testCases := []struct {
		name   string
		params domain.CreateVirtualAccountParams
	}{
		{"missing user", domain.CreateVirtualAccountParams{Amount: 100}},
		{"zero amount", domain.CreateVirtualAccountParams{UserID: uuid.New()}},
		{"bad amount type", domain.CreateVirtualAccountParams{UserID: uuid.New(), Amount: 100, AmountType: "SOMETIMES"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.CreateVirtualAccount(context.Background(), tc.params); !errors.Is(err, ErrInvalidIssuanceRequest) {
				t.Fatalf("expected ErrInvalidIssuanceRequest, got %v", err)
			}
		})
	}
}

func TestCreateVirtualAccountWithoutIssuer(t *testing.T) {
	service, err := NewService(&accountRepoStub{}, nil, nil, nil, testWebhookSecret, "")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	_, err = service.CreateVirtualAccount(context.Background(), domain.CreateVirtualAccountParams{UserID: uuid.New(), Amount: 100})
	if !errors.Is(err, ErrIssuerUnavailable) {
		t.Fatalf("expected ErrIssuerUnavailable, got %v", err)
	}
}
