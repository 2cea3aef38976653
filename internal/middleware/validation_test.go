package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0,lte=1000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,order_status"`
	Amount string `json:"amount" validate:"omitempty,money"`
}

func decodeInto(t *testing.T, body map[string]interface{}, v interface{}) error {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/cart/items", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return DecodeAndValidate(req, v)
}

// Feature: storefront-checkout, Property 48: Required field validation works
func TestProperty_RequiredFieldValidationWorks(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("missing required fields are rejected", prop.ForAll(
		func(includeProduct, includeQuantity bool) bool {
			body := map[string]interface{}{}
			if includeProduct {
				body["product_id"] = "4b7f0c62-8a55-4c8f-9a43-0f0e0d1c2b3a"
			}
			if includeQuantity {
				body["quantity"] = 2
			}

			var req addItemRequest
			err := decodeInto(t, body, &req)
			if includeProduct && includeQuantity {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront-checkout, Property 49: Cart quantities must be positive
func TestProperty_QuantityRangeValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("quantities outside 1..1000 are rejected", prop.ForAll(
		func(quantity int) bool {
			var req addItemRequest
			err := decodeInto(t, map[string]interface{}{
				"product_id": "4b7f0c62-8a55-4c8f-9a43-0f0e0d1c2b3a",
				"quantity":   quantity,
			}, &req)

			if quantity >= 1 && quantity <= 1000 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-50, 1100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestValidationErrorsAreFormatted(t *testing.T) {
	var req addItemRequest
	err := decodeInto(t, map[string]interface{}{"product_id": "nope", "quantity": 0}, &req)
	require.Error(t, err)

	formatted := FormatValidationErrors(err)
	require.Len(t, formatted, 2)
	for _, ve := range formatted {
		require.NotEmpty(t, ve.Field)
		require.NotEmpty(t, ve.Message)
	}
	require.Equal(t, "Must be a valid UUID", formatted[0].Message)
}

func TestOrderStatusAndMoneyTags(t *testing.T) {
	cases := []struct {
		name  string
		body  map[string]interface{}
		valid bool
	}{
		{"known status", map[string]interface{}{"status": "shipped"}, true},
		{"unknown status", map[string]interface{}{"status": "lost"}, false},
		{"two decimal amount", map[string]interface{}{"status": "refunded", "amount": "12.50"}, true},
		{"three decimal amount", map[string]interface{}{"status": "refunded", "amount": "12.505"}, false},
		{"zero amount", map[string]interface{}{"status": "refunded", "amount": "0"}, false},
		{"negative amount", map[string]interface{}{"status": "refunded", "amount": "-3.00"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req statusRequest
			err := decodeInto(t, tc.body, &req)
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
