package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/notify"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// Feature: storefront-checkout, Property 1: Concurrent decrements never oversell
func TestProperty_NoOversell(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("successful decrements never exceed the starting quantity", prop.ForAll(
		func(initial int, requests []int) bool {
			h := newHarness(t)
			productID := h.seedProduct(t, "5.00", initial)

			var (
				wg      sync.WaitGroup
				taken   int64
				errored int64
			)
			for _, qty := range requests {
				wg.Add(1)
				go func(qty int) {
					defer wg.Done()
					err := h.inventory.Decrease(context.Background(), productID, qty)
					if err == nil {
						atomic.AddInt64(&taken, int64(qty))
						return
					}
					if !domain.IsKind(err, domain.KindInsufficientStock) {
						atomic.AddInt64(&errored, 1)
					}
				}(qty)
			}
			wg.Wait()

			if errored > 0 {
				t.Logf("FAIL: %d decrements failed with an unexpected error", errored)
				return false
			}
			remaining := h.stock(t, productID)
			if remaining < 0 {
				t.Logf("FAIL: quantity went negative: %d", remaining)
				return false
			}
			if int(taken) > initial || remaining != initial-int(taken) {
				t.Logf("FAIL: initial %d, taken %d, remaining %d", initial, taken, remaining)
				return false
			}
			return true
		},
		gen.IntRange(0, 30),
		gen.SliceOfN(20, gen.IntRange(1, 5)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestDecreaseLines_AllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.seedProduct(t, "1.00", 10)
	b := h.seedProduct(t, "1.00", 1)

	err := h.inventory.DecreaseLines(ctx, []domain.StockRequest{
		{ProductID: a, Quantity: 4},
		{ProductID: b, Quantity: 2},
	})
	require.True(t, domain.IsKind(err, domain.KindInsufficientStock), "got %v", err)
	require.Equal(t, 10, h.stock(t, a))
	require.Equal(t, 1, h.stock(t, b))
}

func TestDecreaseLines_MergesDuplicateProducts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.seedProduct(t, "1.00", 5)

	err := h.inventory.DecreaseLines(ctx, []domain.StockRequest{
		{ProductID: a, Quantity: 3},
		{ProductID: a, Quantity: 3},
	})
	require.True(t, domain.IsKind(err, domain.KindInsufficientStock))
	require.Equal(t, 5, h.stock(t, a))
}

func TestDecrease_UnknownProductIsInsufficientStock(t *testing.T) {
	h := newHarness(t)
	err := h.inventory.Decrease(context.Background(), uuid.New(), 1)
	require.True(t, domain.IsKind(err, domain.KindInsufficientStock))
}

func TestValidateStock_ReportsEveryViolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.seedProduct(t, "1.00", 2)
	missing := uuid.New()

	violations, err := h.inventory.ValidateStock(ctx, []domain.StockRequest{
		{ProductID: a, Quantity: 3},
		{ProductID: missing, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, violations, 2)

	byProduct := map[uuid.UUID]domain.StockViolation{}
	for _, v := range violations {
		byProduct[v.ProductID] = v
	}
	require.Equal(t, 2, byProduct[a].Available)
	require.True(t, byProduct[missing].Missing)
	require.Equal(t, 2, h.stock(t, a), "validation must not mutate stock")
}

func TestIncreaseLines_RestoresStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.seedProduct(t, "1.00", 1)

	require.NoError(t, h.inventory.Increase(ctx, a, 3))
	require.Equal(t, 4, h.stock(t, a))
}

func TestSetLevel_AlertsWhenLow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.seedProduct(t, "1.00", 50)

	threshold := 5
	level, err := h.inventory.SetLevel(ctx, a, 5, &threshold)
	require.NoError(t, err)
	require.True(t, level.IsLowStock())

	sent := h.recorder.Drain()
	require.Equal(t, []notify.Kind{notify.KindLowStockAlert}, kinds(sent))
	require.Equal(t, a.String(), sent[0].ProductID)

	_, err = h.inventory.SetLevel(ctx, a, 6, nil)
	require.NoError(t, err)
	require.Empty(t, h.recorder.Drain())

	low, err := h.inventory.LowStock(ctx)
	require.NoError(t, err)
	require.Empty(t, low)
}

func TestSetLevel_RejectsNegativeAndUnknown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.inventory.SetLevel(ctx, h.seedProduct(t, "1.00", 1), -1, nil)
	require.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = h.inventory.SetLevel(ctx, uuid.New(), 1, nil)
	require.True(t, domain.IsKind(err, domain.KindNotFound))
}
