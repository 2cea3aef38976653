package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindForbidden           ErrorKind = "forbidden"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidPaymentState ErrorKind = "invalid_payment_state"
	KindPaymentNotCompleted ErrorKind = "payment_not_completed"
	KindAmountMismatch      ErrorKind = "amount_mismatch"
	KindGatewayError        ErrorKind = "gateway_error"
	KindEmptyCart           ErrorKind = "empty_cart"
	KindCannotCancel        ErrorKind = "cannot_cancel"
	KindValidation          ErrorKind = "validation"
	KindInvalidSignature    ErrorKind = "invalid_signature"
	KindInternal            ErrorKind = "internal"
)

// Error is a structured failure with a kind, a caller-facing message and optional details.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

func newError(kind ErrorKind, message string, details map[string]interface{}) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

func InsufficientStock(violations []StockViolation) *Error {
	details := map[string]interface{}{"violations": violations}
	if len(violations) == 1 {
		details["product_id"] = violations[0].ProductID.String()
		details["requested"] = violations[0].Requested
		details["available"] = violations[0].Available
	}
	message := "insufficient stock"
	if len(violations) > 0 {
		message = violations[0].Message()
	}
	return newError(KindInsufficientStock, message, details)
}

func InsufficientStockFor(productID uuid.UUID, requested, available int) *Error {
	return InsufficientStock([]StockViolation{{ProductID: productID, Requested: requested, Available: available}})
}

func Forbidden(message string) *Error {
	return newError(KindForbidden, message, nil)
}

func NotFound(message string) *Error {
	return newError(KindNotFound, message, nil)
}

func InvalidPaymentState(status string) *Error {
	return newError(KindInvalidPaymentState, "payment intent cannot be updated in its current state",
		map[string]interface{}{"status": status})
}

func PaymentNotCompleted(status string) *Error {
	return newError(KindPaymentNotCompleted, "payment not completed",
		map[string]interface{}{"status": status})
}

func AmountMismatch(intentAmount, cartTotal decimal.Decimal) *Error {
	return newError(KindAmountMismatch, "payment amount does not match cart total, please refresh and try again",
		map[string]interface{}{
			"payment_intent_amount": intentAmount.StringFixed(MoneyPlaces),
			"cart_total":            cartTotal.StringFixed(MoneyPlaces),
		})
}

func GatewayError(op string, err error) *Error {
	return &Error{Kind: KindGatewayError, Message: "payment gateway " + op + " failed", Err: err}
}

func EmptyCart() *Error {
	return newError(KindEmptyCart, "cart is empty", nil)
}

func CannotCancel(status OrderStatus) *Error {
	return newError(KindCannotCancel, "order cannot be cancelled",
		map[string]interface{}{"status": string(status)})
}

func Validation(message string) *Error {
	return newError(KindValidation, message, nil)
}

func InvalidSignature(err error) *Error {
	return &Error{Kind: KindInvalidSignature, Message: "invalid webhook signature", Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}
