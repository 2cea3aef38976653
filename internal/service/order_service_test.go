package service

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/notify"
	"storefront/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Feature: storefront-checkout, Property 5: Cancel restores stock exactly once
func TestCancel_RestoresStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := h.seedProduct(t, "4.00", 10)

	user, order := h.placeOrder(t, map[uuid.UUID]int{x: 3})
	require.Equal(t, 7, h.stock(t, x))
	actor := domain.UserActor(user.ID, domain.RoleUser)
	h.recorder.Drain()

	cancelled, err := h.orders.Cancel(ctx, actor, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, 10, h.stock(t, x))

	last := cancelled.History[len(cancelled.History)-1]
	require.Equal(t, domain.OrderStatusCancelled, last.Status)
	require.Equal(t, domain.OrderStatusProcessing, last.FromStatus)
	require.Equal(t, user.ID.String(), last.Actor)
	require.Equal(t, []notify.Kind{notify.KindOrderStatusUpdate}, kinds(h.recorder.Drain()))

	_, err = h.orders.Cancel(ctx, actor, order.ID)
	require.True(t, domain.IsKind(err, domain.KindCannotCancel), "got %v", err)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	require.Equal(t, "cancelled", de.Details["status"])
	require.Equal(t, 10, h.stock(t, x))
}

func TestCancel_OnlyFromPendingOrProcessing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := h.seedProduct(t, "4.00", 10)
	_, order := h.placeOrder(t, map[uuid.UUID]int{x: 1})
	admin := domain.UserActor(h.seedUser(t, domain.RoleAdmin).ID, domain.RoleAdmin)

	_, err := h.orders.AdminUpdateStatus(ctx, admin, order.ID, StatusUpdate{Status: domain.OrderStatusShipped})
	require.NoError(t, err)

	_, err = h.orders.Cancel(ctx, admin, order.ID)
	require.True(t, domain.IsKind(err, domain.KindCannotCancel))
	require.Equal(t, 9, h.stock(t, x))
}

func TestOrderOwnershipEnforced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := h.seedProduct(t, "4.00", 10)
	_, order := h.placeOrder(t, map[uuid.UUID]int{x: 2})
	stranger := domain.UserActor(h.seedUser(t, domain.RoleUser).ID, domain.RoleUser)

	_, err := h.orders.Get(ctx, stranger, order.ID)
	require.True(t, domain.IsKind(err, domain.KindForbidden))

	_, err = h.orders.Cancel(ctx, stranger, order.ID)
	require.True(t, domain.IsKind(err, domain.KindForbidden))

	_, err = h.orders.Refund(ctx, stranger, order.ID, nil, "")
	require.True(t, domain.IsKind(err, domain.KindForbidden))

	_, err = h.orders.AdminUpdateStatus(ctx, stranger, order.ID, StatusUpdate{Status: domain.OrderStatusShipped})
	require.True(t, domain.IsKind(err, domain.KindForbidden))

	admin := domain.UserActor(h.seedUser(t, domain.RoleAdmin).ID, domain.RoleAdmin)
	got, err := h.orders.Get(ctx, admin, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, got.Status)
	require.Equal(t, 8, h.stock(t, x))

	_, err = h.orders.Get(ctx, admin, uuid.New())
	require.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestAdminUpdateStatus_NotifiesOnShipping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := h.seedProduct(t, "4.00", 10)
	_, order := h.placeOrder(t, map[uuid.UUID]int{x: 1})
	admin := domain.UserActor(h.seedUser(t, domain.RoleAdmin).ID, domain.RoleAdmin)
	h.recorder.Drain()

	tracking := " 1Z999 "
	updated, err := h.orders.AdminUpdateStatus(ctx, admin, order.ID, StatusUpdate{
		Status:         domain.OrderStatusShipped,
		TrackingNumber: &tracking,
		Note:           "Handed to carrier",
	})
	require.NoError(t, err)
	require.Equal(t, "1Z999", updated.TrackingNumber)

	sent := h.recorder.Drain()
	require.Equal(t, []notify.Kind{notify.KindOrderStatusUpdate}, kinds(sent))
	require.Equal(t, "shipped", sent[0].Status)
	require.Equal(t, "1Z999", sent[0].Tracking)

	// Moving back to processing is allowed for admins but does not notify, and the
	// history marks it as an override of the normal lifecycle.
	back, err := h.orders.AdminUpdateStatus(ctx, admin, order.ID, StatusUpdate{Status: domain.OrderStatusProcessing})
	require.NoError(t, err)
	require.Empty(t, h.recorder.Drain())
	last := back.History[len(back.History)-1]
	require.Equal(t, domain.OrderStatusShipped, last.FromStatus)
	require.Equal(t, "Status overridden by admin", last.Note)

	forward, err := h.orders.AdminUpdateStatus(ctx, admin, order.ID, StatusUpdate{Status: domain.OrderStatusShipped})
	require.NoError(t, err)
	require.Equal(t, "Status updated by admin", forward.History[len(forward.History)-1].Note)
	h.recorder.Drain()

	_, err = h.orders.AdminUpdateStatus(ctx, admin, order.ID, StatusUpdate{Status: "lost"})
	require.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestRefund_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := h.seedProduct(t, "10.00", 10)
	_, order := h.placeOrder(t, map[uuid.UUID]int{x: 2})
	admin := domain.UserActor(h.seedUser(t, domain.RoleAdmin).ID, domain.RoleAdmin)

	refunded, err := h.orders.Refund(ctx, admin, order.ID, nil, "customer request")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRefunded, refunded.Status)
	require.Equal(t, 10, h.stock(t, x))
	require.EqualValues(t, 3200, h.gateway.RefundedAmount(order.PaymentIntentID))

	again, err := h.orders.Refund(ctx, admin, order.ID, nil, "customer request")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRefunded, again.Status)
	require.Equal(t, 10, h.stock(t, x))
	require.EqualValues(t, 3200, h.gateway.RefundedAmount(order.PaymentIntentID))
}

func TestRefund_AfterCancelDoesNotRestoreTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := h.seedProduct(t, "10.00", 10)
	user, order := h.placeOrder(t, map[uuid.UUID]int{x: 2})
	admin := domain.UserActor(h.seedUser(t, domain.RoleAdmin).ID, domain.RoleAdmin)

	_, err := h.orders.Cancel(ctx, domain.UserActor(user.ID, domain.RoleUser), order.ID)
	require.NoError(t, err)
	require.Equal(t, 10, h.stock(t, x))

	_, err = h.orders.Refund(ctx, admin, order.ID, nil, "")
	require.NoError(t, err)
	require.Equal(t, 10, h.stock(t, x))
}

func TestRefund_GatewayFailureLeavesOrderUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := h.seedProduct(t, "10.00", 10)
	_, order := h.placeOrder(t, map[uuid.UUID]int{x: 2})
	admin := domain.UserActor(h.seedUser(t, domain.RoleAdmin).ID, domain.RoleAdmin)

	h.gateway.Err = errors.New("processor unavailable")
	_, err := h.orders.Refund(ctx, admin, order.ID, nil, "")
	require.True(t, domain.IsKind(err, domain.KindGatewayError), "got %v", err)
	h.gateway.Err = nil

	got, err := h.orders.Get(ctx, admin, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, got.Status)
	require.Equal(t, 8, h.stock(t, x))
}

func TestRefund_ValidatesAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := h.seedProduct(t, "10.00", 10)
	_, order := h.placeOrder(t, map[uuid.UUID]int{x: 1})
	admin := domain.UserActor(h.seedUser(t, domain.RoleAdmin).ID, domain.RoleAdmin)

	tooMuch := order.Total.Add(decimal.NewFromInt(1))
	_, err := h.orders.Refund(ctx, admin, order.ID, &tooMuch, "")
	require.True(t, domain.IsKind(err, domain.KindValidation))

	partial := decimal.RequireFromString("5.00")
	_, err = h.orders.Refund(ctx, admin, order.ID, &partial, "")
	require.NoError(t, err)
	require.EqualValues(t, 500, h.gateway.RefundedAmount(order.PaymentIntentID))
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	body, _, err := h.gateway.SignedEvent(payment.EventPaymentIntentSucceeded, "pi_x", 100)
	require.NoError(t, err)

	err = h.orders.HandleWebhook(context.Background(), body, "t=1,v1=deadbeef")
	require.True(t, domain.IsKind(err, domain.KindInvalidSignature), "got %v", err)
}

func TestHandleWebhook_SucceededIsAuditOnly(t *testing.T) {
	h := newHarness(t)
	body, header, err := h.gateway.SignedEvent(payment.EventPaymentIntentSucceeded, "pi_unknown", 100)
	require.NoError(t, err)

	require.NoError(t, h.orders.HandleWebhook(context.Background(), body, header))
	_, err = h.store.Orders().FindByPaymentIntent(context.Background(), "pi_unknown")
	require.Error(t, err)
}

func TestHandleWebhook_ChargeRefundedAppliesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := h.seedProduct(t, "10.00", 10)
	user, order := h.placeOrder(t, map[uuid.UUID]int{x: 4})

	body, header, err := h.gateway.SignedEvent(payment.EventChargeRefunded, order.PaymentIntentID, 5400)
	require.NoError(t, err)

	require.NoError(t, h.orders.HandleWebhook(ctx, body, header))
	require.NoError(t, h.orders.HandleWebhook(ctx, body, header))

	got, err := h.orders.Get(ctx, domain.UserActor(user.ID, domain.RoleUser), order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRefunded, got.Status)
	require.Equal(t, domain.SystemActor, got.History[len(got.History)-1].Actor)
	require.Equal(t, 10, h.stock(t, x))
	require.Zero(t, h.gateway.RefundedAmount(order.PaymentIntentID), "webhook must not call the gateway")
}
