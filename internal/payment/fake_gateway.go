package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// DeclinedPaymentMethod is rejected by FakeGateway.ConfirmIntent.
const DeclinedPaymentMethod = "pm_card_declined"

// FakeGateway is an in-process Gateway for local development and tests. Its webhooks use
// the Stripe signature scheme, so they verify through the same path as live events.
type FakeGateway struct {
	mu            sync.Mutex
	webhookSecret string
	currency      string
	intents       map[string]*Intent
	intentKeys    map[string]string // idempotency key -> intent id
	refunds       map[string]*Refund // keyed by idempotency key when given
	refunded      map[string]int64

	// Err, when set, is returned by every call that reaches the processor.
	Err error
	// Delay is applied before every call; calls honour ctx cancellation while waiting.
	Delay time.Duration
}

func NewFakeGateway(webhookSecret, currency string) *FakeGateway {
	if currency == "" {
		currency = "usd"
	}
	return &FakeGateway{
		webhookSecret: webhookSecret,
		currency:      strings.ToLower(currency),
		intents:       make(map[string]*Intent),
		intentKeys:    make(map[string]string),
		refunds:       make(map[string]*Refund),
		refunded:      make(map[string]int64),
	}
}

func newID(prefix string) string {
	return prefix + "_" + strings.ToLower(ulid.Make().String())
}

func (g *FakeGateway) wait(ctx context.Context) error {
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.Err
}

func copyIntent(in *Intent) *Intent {
	out := *in
	out.Metadata = cloneMetadata(in.Metadata)
	return &out
}

func (g *FakeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if p.Amount <= 0 {
		return nil, fmt.Errorf("fake: create intent: %w: amount must be positive", ErrInvalidRequest)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := strings.TrimSpace(p.IdempotencyKey)
	if id, ok := g.intentKeys[key]; ok && key != "" {
		return copyIntent(g.intents[id]), nil
	}

	currency := p.Currency
	if currency == "" {
		currency = g.currency
	}
	id := newID("pi")
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + strings.ToLower(ulid.Make().String()),
		Amount:       p.Amount,
		Currency:     currency,
		Status:       IntentRequiresPaymentMethod,
		Metadata:     cloneMetadata(p.Metadata),
	}
	g.intents[id] = intent
	if key != "" {
		g.intentKeys[key] = id
	}
	return copyIntent(intent), nil
}

func (g *FakeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("fake: retrieve intent %s: %w", id, ErrIntentNotFound)
	}
	return copyIntent(intent), nil
}

func (g *FakeGateway) UpdateIntent(ctx context.Context, id string, p UpdateIntentParams) (*Intent, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("fake: update intent %s: %w", id, ErrIntentNotFound)
	}
	if !intent.Status.Updatable() {
		return nil, fmt.Errorf("fake: update intent %s in status %s: %w", id, intent.Status, ErrInvalidRequest)
	}
	intent.Amount = p.Amount
	for k, v := range p.Metadata {
		if intent.Metadata == nil {
			intent.Metadata = make(map[string]string)
		}
		intent.Metadata[k] = v
	}
	return copyIntent(intent), nil
}

func (g *FakeGateway) ConfirmIntent(ctx context.Context, id, paymentMethodID string) (*Intent, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("fake: confirm intent %s: %w", id, ErrIntentNotFound)
	}
	if paymentMethodID == DeclinedPaymentMethod {
		intent.Status = IntentRequiresPaymentMethod
		return nil, fmt.Errorf("fake: confirm intent %s: card declined", id)
	}
	intent.Status = IntentSucceeded
	return copyIntent(intent), nil
}

func (g *FakeGateway) CreateRefund(ctx context.Context, p RefundParams) (*Refund, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if p.IdempotencyKey != "" {
		if existing, ok := g.refunds[p.IdempotencyKey]; ok {
			cp := *existing
			return &cp, nil
		}
	}

	intent, ok := g.intents[p.PaymentIntentID]
	if !ok {
		return nil, fmt.Errorf("fake: refund %s: %w", p.PaymentIntentID, ErrIntentNotFound)
	}
	if intent.Status != IntentSucceeded {
		return nil, fmt.Errorf("fake: refund %s in status %s: %w", p.PaymentIntentID, intent.Status, ErrInvalidRequest)
	}

	amount := p.Amount
	if amount == 0 {
		amount = intent.Amount - g.refunded[intent.ID]
	}
	if amount <= 0 || g.refunded[intent.ID]+amount > intent.Amount {
		return nil, fmt.Errorf("fake: refund %s exceeds captured amount: %w", p.PaymentIntentID, ErrInvalidRequest)
	}
	g.refunded[intent.ID] += amount

	refund := &Refund{
		ID:              newID("re"),
		PaymentIntentID: intent.ID,
		Amount:          amount,
		Status:          "succeeded",
	}
	key := p.IdempotencyKey
	if key == "" {
		key = refund.ID
	}
	g.refunds[key] = refund

	cp := *refund
	return &cp, nil
}

func (g *FakeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return parseEvent(payload, signatureHeader, g.webhookSecret)
}

// SetStatus forces an intent into a status, standing in for client-side confirmation.
func (g *FakeGateway) SetStatus(id string, status IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[id]; ok {
		intent.Status = status
	}
}

// SetAmount overwrites an intent's amount regardless of status.
func (g *FakeGateway) SetAmount(id string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[id]; ok {
		intent.Amount = amount
	}
}

// RefundedAmount reports the minor units refunded against an intent.
func (g *FakeGateway) RefundedAmount(id string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[id]
}

// SignedEvent builds a Stripe-format event payload for an intent and signs it with the
// webhook secret. It returns the body and the Stripe-Signature header value.
func (g *FakeGateway) SignedEvent(eventType, paymentIntentID string, amount int64) ([]byte, string, error) {
	var object interface{}
	switch eventType {
	case EventChargeRefunded:
		object = map[string]interface{}{
			"id":              newID("ch"),
			"object":          "charge",
			"payment_intent":  paymentIntentID,
			"amount_refunded": amount,
			"refunded":        true,
			"status":          "succeeded",
		}
	default:
		status := IntentSucceeded
		if eventType == EventPaymentIntentFailed {
			status = IntentRequiresPaymentMethod
		}
		object = map[string]interface{}{
			"id":     paymentIntentID,
			"object": "payment_intent",
			"amount": amount,
			"status": status,
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"id":          newID("evt"),
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		return nil, "", err
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    g.webhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header, nil
}

var _ Gateway = (*FakeGateway)(nil)
