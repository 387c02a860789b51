package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v81"

	"github.com/angelmondragon/partnerledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/partnerledger-backend/pkg/stripe"
)

// Stripe invoice events are a few KB; anything near this is not one.
const maxWebhookPayload = 512 << 10

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type eventVerifier interface {
	VerifyEvent(payload []byte, header string) (stripe.Event, error)
}

type ack struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored,omitempty"`
}

// StripeWebhook verifies a Stripe delivery, claims its event id and hands
// it to the invoice webhook service. Any failure releases the claim and
// answers non-2xx so Stripe redelivers.
func StripeWebhook(svc StripeWebhookService, verifier eventVerifier, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookPayload))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}
		event, err := verifier.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
		switch {
		case errors.Is(err, pkgstripe.ErrLivemodeMismatch):
			// Authentic but meant for the other mode; retrying will not help.
			logg.Warn(logg.WithField(ctx, "livemode", event.Livemode), "stripe event from other mode ignored")
			responses.WriteSuccess(w, ack{Ignored: true})
			return
		case err != nil:
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_event_id": event.ID,
			"event_type":      string(event.Type),
		})
		duplicate, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		if duplicate {
			logg.Debug(ctx, "stripe event already handled")
			responses.WriteSuccess(w, ack{EventID: event.ID, Duplicate: true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if relErr := guard.Release(context.WithoutCancel(ctx), event.ID); relErr != nil {
				logg.Error(ctx, "release stripe event claim", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Complete(context.WithoutCancel(ctx), event.ID); err != nil {
			logg.Error(ctx, "complete stripe event claim", err)
		}
		logg.Info(ctx, "stripe event processed")
		responses.WriteSuccess(w, ack{EventID: event.ID})
	}
}
