// Package payment adapts external payment processors to the checkout core. Amounts cross
// this boundary in the processor's minor currency unit.
package payment

import (
	"context"
	"errors"
)

var (
	ErrIntentNotFound   = errors.New("payment: intent not found")
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	ErrInvalidRequest   = errors.New("payment: invalid request")
)

// IntentStatus mirrors the processor's payment intent lifecycle.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentCanceled              IntentStatus = "canceled"
	IntentSucceeded             IntentStatus = "succeeded"
)

// Updatable reports whether the amount may still change.
func (s IntentStatus) Updatable() bool {
	return s == IntentRequiresPaymentMethod || s == IntentRequiresConfirmation
}

// Metadata keys written on every intent.
const (
	MetaOwner     = "owner"
	MetaUserID    = "user_id"
	MetaSessionID = "session_id"
	MetaAddressID = "shipping_address_id"
	MetaOrderID   = "order_id"
	MetaReason    = "reason"
)

// Intent is the processor's view of an in-progress charge.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       IntentStatus
	Metadata     map[string]string
}

type CreateIntentParams struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type UpdateIntentParams struct {
	Amount   int64
	Metadata map[string]string
}

// RefundParams refunds Amount minor units, or the full intent when Amount is zero.
type RefundParams struct {
	PaymentIntentID string
	Amount          int64
	Metadata        map[string]string
	IdempotencyKey  string
}

type Refund struct {
	ID              string
	PaymentIntentID string
	Amount          int64
	Status          string
}

// Webhook event types the core reacts to.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded         = "charge.refunded"
)

// Event is a verified inbound webhook reduced to the fields the core reads.
type Event struct {
	ID              string
	Type            string
	PaymentIntentID string
	Amount          int64
	Status          string
}

// Gateway is the payment processor contract.
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	UpdateIntent(ctx context.Context, id string, params UpdateIntentParams) (*Intent, error)
	ConfirmIntent(ctx context.Context, id, paymentMethodID string) (*Intent, error)
	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)
	// VerifyWebhook authenticates payload against the signature header before decoding it.
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
