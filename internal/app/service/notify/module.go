package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bukukita/billing/internal/app/service/dispatch"
)

func registerEmailHandler(shell *dispatch.Shell, mailer *Mailer, log *zap.SugaredLogger) {
	shell.Register(dispatch.JobKindEmail, func(ctx context.Context, job *dispatch.Job) error {
		var payload dispatch.EmailJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode email job %s: %w", job.ID, err)
		}
		if err := mailer.Send(payload.To, payload.Subject, payload.Body); err != nil {
			return err
		}
		log.Infow("notification email sent", "to", payload.To, "subject", payload.Subject)
		return nil
	})
}

var Module = fx.Options(
	fx.Provide(NewMailer),
	fx.Provide(NewService),
	fx.Invoke(registerEmailHandler),
)
