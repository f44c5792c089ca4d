/**
 * @description
 * Scheduled job implementations for the deposit-service.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/Amhaztech0/HazPay-sub000/internal/domain"
	"github.com/Amhaztech0/HazPay-sub000/internal/store"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo      store.Repository
	publisher EventPublisher
	logger    *slog.Logger
	exchange  string
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, publisher EventPublisher, logger *slog.Logger, exchange string) *Jobs {
	if exchange == "" {
		exchange = "hazpay.events"
	}
	return &Jobs{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		exchange:  exchange,
	}
}

// ProcessVirtualAccountExpiry retires active virtual accounts whose expiry
// window has passed. Completion of a deposit is unaffected: only accounts
// still 'active' are swept.
func (j *Jobs) ProcessVirtualAccountExpiry() {
	j.logger.Info("starting virtual account expiry job")
	ctx := context.Background()

	expired, err := j.repo.ExpireVirtualAccounts(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("failed to expire virtual accounts", "error", err)
		return
	}
	if len(expired) == 0 {
		j.logger.Info("virtual account expiry job finished", "expired", 0)
		return
	}

	if j.publisher != nil {
		for _, account := range expired {
			event := domain.VirtualAccountExpiredEvent{
				VirtualAccountID: account.ID,
				UserID:           account.UserID,
				AccountNumber:    account.AccountNumber,
				Timestamp:        time.Now().UTC(),
			}
			if err := j.publisher.Publish(ctx, j.exchange, "virtual_account.expired", event); err != nil {
				j.logger.Warn("failed to publish expiry event", "account", account.AccountNumber, "error", err)
			}
		}
	}

	j.logger.Info("virtual account expiry job finished", "expired", len(expired))
}
