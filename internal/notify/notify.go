// Package notify hands customer and staff notifications to an external delivery system.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Kind string

const (
	KindOrderConfirmation Kind = "order_confirmation"
	KindOrderStatusUpdate Kind = "order_status_update"
	KindLowStockAlert     Kind = "low_stock_alert"
)

// Notification is the queued message. Fields not relevant to Kind are left zero.
type Notification struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	UserID      string    `json:"user_id,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	OrderNumber string    `json:"order_number,omitempty"`
	Status      string    `json:"status,omitempty"`
	Tracking    string    `json:"tracking_number,omitempty"`
	ProductID   string    `json:"product_id,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	Threshold   int       `json:"threshold,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dispatcher delivers a notification to the delivery system.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// sendTimeout bounds how long a request waits on the delivery system.
const sendTimeout = 2 * time.Second

// Send dispatches n without letting a delivery failure reach the caller. The request's
// cancellation is detached so a finished request does not abort the send.
func Send(ctx context.Context, d Dispatcher, logger *zap.Logger, n Notification) {
	if d == nil {
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	if err := d.Dispatch(sendCtx, n); err != nil {
		logger.Error("Failed to dispatch notification",
			zap.String("kind", string(n.Kind)),
			zap.String("order_id", n.OrderID),
			zap.String("product_id", n.ProductID),
			zap.Error(err),
		)
	}
}

// LogDispatcher writes notifications to the log; used when no queue is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.logger.Info("Notification dispatched",
		zap.String("id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("user_id", n.UserID),
		zap.String("order_id", n.OrderID),
		zap.String("status", n.Status),
		zap.String("product_id", n.ProductID),
		zap.Int("quantity", n.Quantity),
	)
	return nil
}

// Recorder keeps dispatched notifications in memory.
type Recorder struct {
	ch chan Notification
}

func NewRecorder(capacity int) *Recorder {
	return &Recorder{ch: make(chan Notification, capacity)}
}

func (r *Recorder) Dispatch(_ context.Context, n Notification) error {
	select {
	case r.ch <- n:
	default:
	}
	return nil
}

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []Notification {
	var out []Notification
	for {
		select {
		case n := <-r.ch:
			out = append(out, n)
		default:
			return out
		}
	}
}
