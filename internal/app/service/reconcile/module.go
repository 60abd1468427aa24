package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bukukita/billing/internal/app/service/dispatch"
	"github.com/bukukita/billing/internal/app/service/ledger"
	"github.com/bukukita/billing/internal/app/service/notify"
	"github.com/bukukita/billing/internal/app/service/signature"
	"github.com/bukukita/billing/internal/app/service/subscription"
)

// registerReconcileHandler lets the dispatch shell replay raw notifications
// through the pipeline. Validation failures are permanent and must not burn
// the retry budget, so they are logged and swallowed.
func registerReconcileHandler(shell *dispatch.Shell, o *Orchestrator, notifier *notify.Service, log *zap.SugaredLogger) {
	shell.Register(dispatch.JobKindReconcile, func(ctx context.Context, job *dispatch.Job) error {
		var payload dispatch.ReconcileJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode reconcile job %s: %w", job.ID, err)
		}

		res, err := o.ProcessNotification(ctx, payload.Raw)
		if err != nil {
			var missing *MissingFieldsError
			if errors.Is(err, ErrInvalidSignature) || errors.As(err, &missing) {
				log.Errorw("replayed notification permanently invalid",
					"job_id", job.ID, "event_id", payload.EventID, "err", err)
				return nil
			}
			return err
		}

		notifier.DispatchEffects(ctx, res.Subscription, res.Effects)
		return nil
	})
}

var Module = fx.Options(
	fx.Provide(func(v *signature.Verifier) SignatureVerifier { return v }),
	fx.Provide(func(l *ledger.Service) Ledger { return l }),
	fx.Provide(func(s *subscription.Service) SubscriptionStore { return s }),
	fx.Provide(NewOrchestrator),
	fx.Invoke(registerReconcileHandler),
)
