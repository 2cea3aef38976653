package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *Store, quantity int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	p := &domain.Product{
		ID:        uuid.New(),
		SKU:       "SKU-" + uuid.NewString()[:8],
		Name:      "Widget",
		Price:     decimal.RequireFromString("4.25"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Products().Create(ctx, p))
	require.NoError(t, s.Inventory().Upsert(ctx, &domain.InventoryLevel{ProductID: p.ID, Quantity: quantity, LowStockThreshold: 1}))
	return p.ID
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	productID := seedProduct(t, s, 5)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Inventory().SetQuantity(ctx, productID, 0))
		require.NoError(t, s.Carts().Create(ctx, &domain.CartLine{
			ID:        uuid.New(),
			Owner:     domain.SessionOwner("guest"),
			ProductID: productID,
			Quantity:  1,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	level, err := s.Inventory().Find(ctx, productID, repository.LockNone)
	require.NoError(t, err)
	require.Equal(t, 5, level.Quantity)

	lines, err := s.Carts().ListByOwner(ctx, domain.SessionOwner("guest"))
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestWithinTx_RollsBackOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()
	productID := seedProduct(t, s, 3)

	require.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context) error {
			_ = s.Inventory().SetQuantity(ctx, productID, 1)
			panic("boom")
		})
	})

	level, err := s.Inventory().Find(ctx, productID, repository.LockNone)
	require.NoError(t, err)
	require.Equal(t, 3, level.Quantity)
}

func TestWithinTx_NestedCallsJoinOuter(t *testing.T) {
	s := New()
	ctx := context.Background()
	productID := seedProduct(t, s, 4)

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.WithinTx(ctx, func(ctx context.Context) error {
			return s.Inventory().SetQuantity(ctx, productID, 2)
		}); err != nil {
			return err
		}
		return errors.New("outer failure")
	})
	require.Error(t, err)

	level, err := s.Inventory().Find(ctx, productID, repository.LockNone)
	require.NoError(t, err)
	require.Equal(t, 4, level.Quantity, "inner work must roll back with the outer transaction")
}

func TestNegativeQuantityRejected(t *testing.T) {
	s := New()
	productID := seedProduct(t, s, 1)
	err := s.Inventory().SetQuantity(context.Background(), productID, -1)
	require.ErrorIs(t, err, repository.ErrNegativeQuantity)
}

func TestCart_OneLinePerOwnerAndProduct(t *testing.T) {
	s := New()
	ctx := context.Background()
	productID := seedProduct(t, s, 1)
	guest := domain.SessionOwner("guest")
	account := domain.UserOwner(uuid.New())

	first := &domain.CartLine{ID: uuid.New(), Owner: guest, ProductID: productID, Quantity: 1}
	require.NoError(t, s.Carts().Create(ctx, first))
	require.ErrorIs(t, s.Carts().Create(ctx, &domain.CartLine{ID: uuid.New(), Owner: guest, ProductID: productID, Quantity: 2}),
		repository.ErrCartItemExists)
	require.ErrorIs(t, s.Carts().Create(ctx, &domain.CartLine{ID: uuid.New(), ProductID: productID, Quantity: 2}),
		repository.ErrCartOwnerRequired)

	require.NoError(t, s.Carts().Create(ctx, &domain.CartLine{ID: uuid.New(), Owner: account, ProductID: productID, Quantity: 3}))
	require.ErrorIs(t, s.Carts().ReassignOwner(ctx, first.ID, account), repository.ErrCartItemExists)
}

// Feature: storefront-checkout, Property 1: Concurrent decrements never oversell
func TestProperty_SerializedDecrementsNeverOversell(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("granted units never exceed the starting stock", prop.ForAll(
		func(initial, workers int) bool {
			s := New()
			ctx := context.Background()
			productID := seedProduct(t, s, initial)

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				granted int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.WithinTx(ctx, func(ctx context.Context) error {
						level, err := s.Inventory().Find(ctx, productID, repository.LockUpdate)
						if err != nil {
							return err
						}
						if !level.InStock(1) {
							return repository.ErrNegativeQuantity
						}
						return s.Inventory().SetQuantity(ctx, productID, level.Quantity-1)
					})
					if err == nil {
						mu.Lock()
						granted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			level, _ := s.Inventory().Find(ctx, productID, repository.LockNone)
			expected := initial
			if workers < initial {
				expected = workers
			}
			if granted != expected || level.Quantity != initial-granted {
				t.Logf("FAIL: initial %d workers %d granted %d left %d", initial, workers, granted, level.Quantity)
				return false
			}
			return true
		},
		gen.IntRange(0, 15),
		gen.IntRange(1, 25),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
