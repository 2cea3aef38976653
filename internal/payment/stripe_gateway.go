package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Update(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeConfig configures StripeGateway. Intents and Refunds replace the live clients in tests.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	Logger        *zap.Logger

	Intents stripePaymentIntentAPI
	Refunds stripeRefundAPI
}

// StripeGateway implements Gateway with the Stripe API.
type StripeGateway struct {
	intents       stripePaymentIntentAPI
	refunds       stripeRefundAPI
	webhookSecret string
	currency      string
	logger        *zap.Logger
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" && (cfg.Intents == nil || cfg.Refunds == nil) {
		return nil, errors.New("stripe: secret key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	intents, refunds := cfg.Intents, cfg.Refunds
	if intents == nil || refunds == nil {
		sc := client.New(key, nil)
		intents, refunds = sc.PaymentIntents, sc.Refunds
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return &StripeGateway{
		intents:       intents,
		refunds:       refunds,
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		logger:        logger,
	}, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       IntentStatus(pi.Status),
		Metadata:     cloneMetadata(pi.Metadata),
	}
}

// translateError maps missing resources onto ErrIntentNotFound and keeps everything else wrapped.
func translateError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("stripe: %s: %w", op, ErrIntentNotFound)
		}
		if stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return fmt.Errorf("stripe: %s: %w: %s", op, ErrInvalidRequest, stripeErr.Msg)
		}
	}
	return fmt.Errorf("stripe: %s: %w", op, err)
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("stripe: create intent: %w: amount must be positive", ErrInvalidRequest)
	}

	currency := p.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: cloneMetadata(p.Metadata),
	}
	params.Context = ctx
	if key := strings.TrimSpace(p.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, translateError("create intent", err)
	}

	g.logger.Info("Payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", pi.Amount),
	)
	return toIntent(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.intents.Get(id, params)
	if err != nil {
		return nil, translateError("retrieve intent", err)
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) UpdateIntent(ctx context.Context, id string, p UpdateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Metadata: cloneMetadata(p.Metadata),
	}
	params.Context = ctx

	pi, err := g.intents.Update(id, params)
	if err != nil {
		return nil, translateError("update intent", err)
	}

	g.logger.Info("Payment intent updated",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", pi.Amount),
	)
	return toIntent(pi), nil
}

func (g *StripeGateway) ConfirmIntent(ctx context.Context, id, paymentMethodID string) (*Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}

	pi, err := g.intents.Confirm(id, params)
	if err != nil {
		return nil, translateError("confirm intent", err)
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, p RefundParams) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(p.PaymentIntentID),
		Metadata:      cloneMetadata(p.Metadata),
	}
	if p.Amount > 0 {
		params.Amount = stripe.Int64(p.Amount)
	}
	params.Context = ctx
	if key := strings.TrimSpace(p.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	refund, err := g.refunds.New(params)
	if err != nil {
		return nil, translateError("create refund", err)
	}

	g.logger.Info("Refund created",
		zap.String("refund_id", refund.ID),
		zap.String("payment_intent_id", p.PaymentIntentID),
		zap.Int64("amount", refund.Amount),
	)

	return &Refund{
		ID:              refund.ID,
		PaymentIntentID: p.PaymentIntentID,
		Amount:          refund.Amount,
		Status:          string(refund.Status),
	}, nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return parseEvent(payload, signatureHeader, g.webhookSecret)
}

var _ Gateway = (*StripeGateway)(nil)
