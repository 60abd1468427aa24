package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bukukita/billing/internal/app/service/dispatch"
	"github.com/bukukita/billing/internal/app/service/lifecycle"
	"github.com/bukukita/billing/internal/models"
	"github.com/bukukita/billing/pkg/config"
)

// enqueuer is the slice of the dispatch shell the notifier needs.
type enqueuer interface {
	Enqueue(ctx context.Context, job *dispatch.Job) error
}

type Service struct {
	cfg   *config.Config
	db    *gorm.DB
	log   *zap.SugaredLogger
	shell enqueuer

	lookupEmail func(ctx context.Context, userID string) (string, error)
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, shell *dispatch.Shell) *Service {
	s := &Service{cfg: cfg, db: db, log: log, shell: shell}
	s.lookupEmail = s.recipientEmail
	return s
}

// DispatchEffects turns lifecycle effects into queued email jobs. It is
// called after the reconciliation transaction commits, so a failure here
// never rolls back a state change; the worst case is a missing email, which
// the dispatch shell's retries already bound.
func (s *Service) DispatchEffects(ctx context.Context, sub *models.Subscription, effects []lifecycle.EffectKind) {
	if sub == nil || len(effects) == 0 {
		return
	}

	email, err := s.lookupEmail(ctx, sub.UserID)
	if err != nil {
		s.log.Warnw("skipping notification emails, no recipient",
			"user_id", sub.UserID, "order_id", sub.OrderID, "err", err)
		return
	}

	for _, effect := range effects {
		payload, ok := s.composeEmail(effect, sub, email)
		if !ok {
			s.log.Warnw("no email template for effect", "effect", effect, "order_id", sub.OrderID)
			continue
		}
		job, err := dispatch.NewJob(dispatch.JobKindEmail, payload)
		if err != nil {
			s.log.Errorw("failed to build email job", "effect", effect, "err", err)
			continue
		}
		if err := s.shell.Enqueue(ctx, job); err != nil {
			s.log.Errorw("failed to enqueue email job",
				"effect", effect, "order_id", sub.OrderID, "err", err)
		}
	}
}

// recipientEmail looks the user's address up from the shared users table.
// That table is owned by the account service; billing only reads it.
func (s *Service) recipientEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := s.db.WithContext(ctx).
		Table("users").
		Select("email").
		Where("id = ?", userID).
		Take(&email).Error
	if err != nil {
		return "", fmt.Errorf("lookup email for user %s: %w", userID, err)
	}
	if email == "" {
		return "", fmt.Errorf("user %s has no email", userID)
	}
	return email, nil
}

func (s *Service) composeEmail(effect lifecycle.EffectKind, sub *models.Subscription, to string) (*dispatch.EmailJobPayload, bool) {
	plan := s.cfg.GetPlanByID(sub.PlanID)
	planName := sub.PlanID
	if plan != nil {
		planName = plan.Name
	}

	switch effect {
	case lifecycle.EffectPaymentSuccess:
		return &dispatch.EmailJobPayload{
			To:      to,
			Subject: fmt.Sprintf("Payment received for %s", planName),
			Body: fmt.Sprintf(
				"We received your payment for the %s plan (order %s). Thank you!",
				planName, sub.OrderID),
		}, true
	case lifecycle.EffectSubscriptionActivated:
		until := "its renewal date"
		if sub.EndsAt != nil {
			until = sub.EndsAt.Format(time.DateOnly)
		}
		return &dispatch.EmailJobPayload{
			To:      to,
			Subject: fmt.Sprintf("Your %s subscription is active", planName),
			Body: fmt.Sprintf(
				"Your %s subscription (order %s) is now active until %s.",
				planName, sub.OrderID, until),
		}, true
	case lifecycle.EffectSubscriptionExpired:
		return &dispatch.EmailJobPayload{
			To:      to,
			Subject: fmt.Sprintf("Your %s subscription has expired", planName),
			Body: fmt.Sprintf(
				"Your %s subscription (order %s) has expired. Renew any time to keep access.",
				planName, sub.OrderID),
		}, true
	}
	return nil, false
}
