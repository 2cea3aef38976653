package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// parseEvent verifies a Stripe-format signed payload and extracts the intent it concerns.
func parseEvent(payload []byte, signatureHeader, secret string) (*Event, error) {
	raw, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{ID: raw.ID, Type: string(raw.Type)}
	if raw.Data == nil {
		return event, nil
	}

	switch raw.Type {
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("payment: decode payment intent event: %w", err)
		}
		event.PaymentIntentID = intent.ID
		event.Amount = intent.Amount
		event.Status = string(intent.Status)
	case EventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(raw.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("payment: decode charge event: %w", err)
		}
		if charge.PaymentIntent != nil {
			event.PaymentIntentID = charge.PaymentIntent.ID
		}
		event.Amount = charge.AmountRefunded
		event.Status = string(charge.Status)
	}

	return event, nil
}
