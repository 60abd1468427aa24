package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bukukita/billing/internal/app/service/ledger"
	"github.com/bukukita/billing/internal/app/service/lifecycle"
	"github.com/bukukita/billing/internal/models"
	"github.com/bukukita/billing/internal/platform/midtrans"
	"github.com/bukukita/billing/pkg/config"
	"github.com/bukukita/billing/pkg/logctx"
	"github.com/bukukita/billing/pkg/tool"
	"github.com/bukukita/billing/pkg/types"
)

var ErrNotFound = errors.New("subscription not found")

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	ledger   *ledger.Service
	midtrans *midtrans.Client
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, lg *ledger.Service, mt *midtrans.Client) *Service {
	return &Service{cfg: cfg, db: db, log: log, ledger: lg, midtrans: mt}
}

type CheckoutResult struct {
	Subscription *models.Subscription `json:"subscription"`
	SnapToken    string               `json:"snap_token"`
	RedirectURL  string               `json:"redirect_url"`
	Plan         *types.Plan          `json:"plan"`
}

// Checkout creates the pending subscription row and asks Midtrans for a Snap
// token. The order id minted here is the correlation key every later webhook
// notification carries back.
func (s *Service) Checkout(ctx context.Context, userID, planID string) (*CheckoutResult, error) {
	plan := s.cfg.GetPlanByID(planID)
	if plan == nil {
		return nil, fmt.Errorf("plan not found: %s", planID)
	}

	sub := &models.Subscription{
		ID:      tool.GenerateUUIDV7(),
		UserID:  userID,
		PlanID:  planID,
		OrderID: tool.GenerateOrderID(userID, planID),
		Status:  types.SubscriptionStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	snap, err := s.midtrans.CreateSnapTransaction(ctx, sub.OrderID, plan.PriceIDR, "", "")
	if err != nil {
		// The row stays pending; the stale-pending sweep cancels it if the
		// user never completes another checkout attempt.
		return nil, fmt.Errorf("failed to create snap transaction: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("checkout created",
		"order_id", sub.OrderID, "user_id", userID, "plan_id", planID)
	return &CheckoutResult{Subscription: sub, SnapToken: snap.Token, RedirectURL: snap.RedirectURL, Plan: plan}, nil
}

func (s *Service) FindByOrderID(ctx context.Context, orderID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

// ApplyEvent runs one lifecycle decision against the subscription row inside
// a single transaction: lock the row, re-evaluate the transition on the
// locked state, write the delta, and stamp the ledger record processed. Both
// writes commit or roll back together. Re-evaluating under the lock means a
// decision made on a stale read cannot be applied: concurrent events for the
// same order serialize on the row lock and the loser sees the updated state.
//
// eventID may be empty for sweep transitions, which have no ledger row.
func (s *Service) ApplyEvent(ctx context.Context, orderID, eventID string, decide func(lifecycle.View) (*lifecycle.Outcome, error)) (*lifecycle.Outcome, error) {
	var outcome *lifecycle.Outcome
	var before, after *models.Subscription

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", orderID).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock subscription: %w", err)
		}

		out, err := decide(lifecycle.View{Status: sub.Status})
		if err != nil {
			return err
		}
		outcome = out

		if out.NoOp {
			if eventID != "" {
				return s.ledger.MarkProcessedIn(tx, eventID)
			}
			return nil
		}

		snapshot := sub
		before = &snapshot

		ch := out.Change
		sub.Status = ch.Status
		if ch.TransactionID != nil && sub.MidtransTransactionID == nil {
			sub.MidtransTransactionID = ch.TransactionID
		}
		if ch.PaymentType != nil {
			sub.PaymentType = ch.PaymentType
		}
		if ch.FailureReason != nil {
			sub.FailureReason = ch.FailureReason
		}
		if ch.StartsAt != nil {
			sub.StartsAt = ch.StartsAt
		}
		if ch.EndsAt != nil {
			sub.EndsAt = ch.EndsAt
		}
		if ch.CancelledAt != nil {
			sub.CancelledAt = ch.CancelledAt
		}

		if err := tx.Save(&sub).Error; err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		after = &sub

		if eventID != "" {
			return s.ledger.MarkProcessedIn(tx, eventID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if after != nil {
		s.writeAuditLog(ctx, before, after, outcome.Change.Reason, eventID)
	}
	return outcome, nil
}

// writeAuditLog appends the change to subscription_log asynchronously;
// errors are logged but never fail the transition.
func (s *Service) writeAuditLog(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, eventID string) {
	go func() {
		entry := &models.SubscriptionLog{
			ID:      tool.GenerateUUIDV7(),
			UserID:  after.UserID,
			OrderID: after.OrderID,
			Reason:  reason,
			Before:  datatypes.NewJSONType(before),
			After:   datatypes.NewJSONType(after),
			Extra:   datatypes.JSONMap{"event_id": eventID},
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save subscription log: %v", err)
		}
	}()
}

// FindStalePending returns pending subscriptions created before the cutoff,
// candidates for the abandoned-checkout sweep.
func (s *Service) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", types.SubscriptionStatusPending, cutoff).
		Order("created_at asc").Limit(limit).Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending subscriptions: %w", err)
	}
	return subs, nil
}

// FindLapsedActive returns active subscriptions whose ends_at has passed.
func (s *Service) FindLapsedActive(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND ends_at IS NOT NULL AND ends_at < ?", types.SubscriptionStatusActive, now).
		Order("ends_at asc").Limit(limit).Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed subscriptions: %w", err)
	}
	return subs, nil
}
