package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartView is an owner's cart with current prices and totals.
type CartView struct {
	Items     []*domain.CartLineView `json:"items"`
	ItemCount int                    `json:"item_count"`
	domain.Totals
}

// MergeResult reports what a guest-to-account merge did.
type MergeResult struct {
	Transferred int `json:"transferred"`
	Combined    int `json:"combined"`
}

// CartService manages cart lines for users and anonymous sessions.
type CartService interface {
	Get(ctx context.Context, owner domain.Owner) (*CartView, error)
	Add(ctx context.Context, owner domain.Owner, productID uuid.UUID, quantity int) (*domain.CartLine, error)
	Update(ctx context.Context, owner domain.Owner, lineID uuid.UUID, quantity int) (*domain.CartLine, error)
	Remove(ctx context.Context, owner domain.Owner, lineID uuid.UUID) error
	Clear(ctx context.Context, owner domain.Owner) error
	// Merge moves a guest cart into an account cart. It applies every line or none.
	Merge(ctx context.Context, from, to domain.Owner) (*MergeResult, error)
}

type cartService struct {
	carts     repository.CartRepository
	products  repository.ProductRepository
	inventory InventoryService
	pricing   *PricingEngine
	tx        repository.TxManager
	logger    *zap.Logger
}

func NewCartService(
	carts repository.CartRepository,
	products repository.ProductRepository,
	inventory InventoryService,
	pricing *PricingEngine,
	tx repository.TxManager,
	logger *zap.Logger,
) CartService {
	return &cartService{
		carts:     carts,
		products:  products,
		inventory: inventory,
		pricing:   pricing,
		tx:        tx,
		logger:    logger,
	}
}

func requireOwner(owner domain.Owner) error {
	if owner.IsZero() {
		return domain.Validation("a user or session id is required")
	}
	return nil
}

func (s *cartService) Get(ctx context.Context, owner domain.Owner) (*CartView, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}

	lines, err := s.carts.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	count := 0
	for _, l := range lines {
		count += l.Quantity
	}

	return &CartView{
		Items:     lines,
		ItemCount: count,
		Totals:    s.pricing.CalculateTotals(domain.PriceLines(derefLines(lines))),
	}, nil
}

// checkStock turns advisory violations into an InsufficientStock error.
func (s *cartService) checkStock(ctx context.Context, requests []domain.StockRequest) error {
	violations, err := s.inventory.ValidateStock(ctx, requests)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return domain.InsufficientStock(violations)
	}
	return nil
}

// Add puts quantity more units of a product in the cart. Stock is checked against the
// combined quantity.
func (s *cartService) Add(ctx context.Context, owner domain.Owner, productID uuid.UUID, quantity int) (*domain.CartLine, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, domain.Validation("quantity must be at least 1")
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, domain.NotFound("product not found")
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	line, err := s.addLine(ctx, owner, productID, quantity)
	if errors.Is(err, repository.ErrCartItemExists) && !repository.InTx(ctx) {
		// A concurrent Add created the line first; accumulate onto it.
		line, err = s.addLine(ctx, owner, productID, quantity)
	}
	if errors.Is(err, repository.ErrCartItemExists) {
		return nil, domain.Validation("cart was modified concurrently, retry the request")
	}
	if err != nil {
		return nil, wrapUnlessDomain(err, "failed to add to cart")
	}

	return line, nil
}

// addLine accumulates quantity onto the owner's line for productID, creating it when absent.
func (s *cartService) addLine(ctx context.Context, owner domain.Owner, productID uuid.UUID, quantity int) (*domain.CartLine, error) {
	var line *domain.CartLine
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.carts.FindByOwnerAndProduct(ctx, owner, productID)
		if err != nil && !errors.Is(err, repository.ErrCartItemNotFound) {
			return err
		}

		combined := quantity
		if existing != nil {
			combined += existing.Quantity
		}
		if err := s.checkStock(ctx, []domain.StockRequest{{ProductID: productID, Quantity: combined}}); err != nil {
			return err
		}

		if existing != nil {
			if err := s.carts.UpdateQuantity(ctx, existing.ID, combined); err != nil {
				return err
			}
			existing.Quantity = combined
			line = existing
			return nil
		}

		now := time.Now().UTC()
		line = &domain.CartLine{
			ID:        uuid.New(),
			Owner:     owner,
			ProductID: productID,
			Quantity:  combined,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.carts.Create(ctx, line)
	})
	return line, err
}

// ownedLine loads a line and checks that owner holds it.
func (s *cartService) ownedLine(ctx context.Context, owner domain.Owner, lineID uuid.UUID) (*domain.CartLine, error) {
	line, err := s.carts.FindByID(ctx, lineID)
	if errors.Is(err, repository.ErrCartItemNotFound) {
		return nil, domain.NotFound("cart item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart item: %w", err)
	}
	if line.Owner.Key() != owner.Key() {
		return nil, domain.Forbidden("cart item belongs to another cart")
	}
	return line, nil
}

func (s *cartService) Update(ctx context.Context, owner domain.Owner, lineID uuid.UUID, quantity int) (*domain.CartLine, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, domain.Validation("quantity must be at least 1")
	}

	line, err := s.ownedLine(ctx, owner, lineID)
	if err != nil {
		return nil, err
	}

	if err := s.checkStock(ctx, []domain.StockRequest{{ProductID: line.ProductID, Quantity: quantity}}); err != nil {
		return nil, wrapUnlessDomain(err, "failed to validate stock")
	}

	if err := s.carts.UpdateQuantity(ctx, line.ID, quantity); err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	line.Quantity = quantity
	return line, nil
}

func (s *cartService) Remove(ctx context.Context, owner domain.Owner, lineID uuid.UUID) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	line, err := s.ownedLine(ctx, owner, lineID)
	if err != nil {
		return err
	}
	if err := s.carts.Delete(ctx, line.ID); err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return nil
}

func (s *cartService) Clear(ctx context.Context, owner domain.Owner) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	if _, err := s.carts.DeleteByOwner(ctx, owner); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *cartService) Merge(ctx context.Context, from, to domain.Owner) (*MergeResult, error) {
	if !from.IsSession() || !to.IsUser() {
		return nil, domain.Validation("merge moves a session cart into a user cart")
	}

	result := &MergeResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		guest, err := s.carts.LockByOwner(ctx, from)
		if err != nil {
			return err
		}
		if len(guest) == 0 {
			return nil
		}
		account, err := s.carts.LockByOwner(ctx, to)
		if err != nil {
			return err
		}

		existing := make(map[uuid.UUID]*domain.CartLineView, len(account))
		for _, l := range account {
			existing[l.ProductID] = l
		}

		// Plan and validate every combined line before touching any row.
		var combined []domain.StockRequest
		for _, g := range guest {
			if u, ok := existing[g.ProductID]; ok {
				combined = append(combined, domain.StockRequest{ProductID: g.ProductID, Quantity: u.Quantity + g.Quantity})
			}
		}
		if len(combined) > 0 {
			if err := s.checkStock(ctx, combined); err != nil {
				return err
			}
		}

		for _, g := range guest {
			if u, ok := existing[g.ProductID]; ok {
				if err := s.carts.UpdateQuantity(ctx, u.ID, u.Quantity+g.Quantity); err != nil {
					return err
				}
				if err := s.carts.Delete(ctx, g.ID); err != nil {
					return err
				}
				result.Combined++
				continue
			}
			if err := s.carts.ReassignOwner(ctx, g.ID, to); err != nil {
				return err
			}
			result.Transferred++
		}
		return nil
	})
	if err != nil {
		return nil, wrapUnlessDomain(err, "failed to merge cart")
	}

	if result.Combined+result.Transferred > 0 {
		s.logger.Info("Guest cart merged",
			zap.String("from", from.Key()),
			zap.String("to", to.Key()),
			zap.Int("transferred", result.Transferred),
			zap.Int("combined", result.Combined),
		)
	}
	return result, nil
}

func derefLines(lines []*domain.CartLineView) []domain.CartLineView {
	out := make([]domain.CartLineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, *l)
	}
	return out
}

// wrapUnlessDomain keeps classified errors intact and wraps everything else.
func wrapUnlessDomain(err error, msg string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
