package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"storefront/internal/domain"
	"storefront/internal/notify"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InventoryService is the stock ledger. Every read-modify-write runs under an exclusive
// row lock, and multi-product operations lock rows in ascending product id order.
type InventoryService interface {
	// ValidateStock is an advisory pre-check under shared locks; it never mutates.
	ValidateStock(ctx context.Context, requests []domain.StockRequest) ([]domain.StockViolation, error)
	Decrease(ctx context.Context, productID uuid.UUID, quantity int) error
	Increase(ctx context.Context, productID uuid.UUID, quantity int) error
	DecreaseLines(ctx context.Context, requests []domain.StockRequest) error
	IncreaseLines(ctx context.Context, requests []domain.StockRequest) error
	Level(ctx context.Context, productID uuid.UUID) (*domain.InventoryLevel, error)
	LowStock(ctx context.Context) ([]*domain.ProductWithStock, error)
	SetLevel(ctx context.Context, productID uuid.UUID, quantity int, threshold *int) (*domain.InventoryLevel, error)
	// AlertIfLow dispatches a low-stock alert for each product at or below its threshold.
	AlertIfLow(ctx context.Context, productIDs []uuid.UUID)
}

type inventoryService struct {
	inventory  repository.InventoryRepository
	products   repository.ProductRepository
	tx         repository.TxManager
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

func NewInventoryService(
	inventory repository.InventoryRepository,
	products repository.ProductRepository,
	tx repository.TxManager,
	dispatcher notify.Dispatcher,
	logger *zap.Logger,
) InventoryService {
	return &inventoryService{
		inventory:  inventory,
		products:   products,
		tx:         tx,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// normalizeRequests merges duplicate products and sorts by product id, the lock order.
func normalizeRequests(requests []domain.StockRequest) []domain.StockRequest {
	totals := make(map[uuid.UUID]int, len(requests))
	for _, r := range requests {
		totals[r.ProductID] += r.Quantity
	}
	out := make([]domain.StockRequest, 0, len(totals))
	for id, qty := range totals {
		out = append(out, domain.StockRequest{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]) < 0
	})
	return out
}

func (s *inventoryService) ValidateStock(ctx context.Context, requests []domain.StockRequest) ([]domain.StockViolation, error) {
	var violations []domain.StockViolation

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, req := range normalizeRequests(requests) {
			level, err := s.inventory.Find(ctx, req.ProductID, repository.LockShare)
			if errors.Is(err, repository.ErrInventoryNotFound) {
				violations = append(violations, domain.StockViolation{
					ProductID: req.ProductID, Requested: req.Quantity, Missing: true,
				})
				continue
			}
			if err != nil {
				return err
			}
			if !level.InStock(req.Quantity) {
				violations = append(violations, domain.StockViolation{
					ProductID: req.ProductID, Requested: req.Quantity, Available: level.Quantity,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to validate stock: %w", err)
	}

	return violations, nil
}

func (s *inventoryService) Decrease(ctx context.Context, productID uuid.UUID, quantity int) error {
	return s.DecreaseLines(ctx, []domain.StockRequest{{ProductID: productID, Quantity: quantity}})
}

func (s *inventoryService) Increase(ctx context.Context, productID uuid.UUID, quantity int) error {
	return s.IncreaseLines(ctx, []domain.StockRequest{{ProductID: productID, Quantity: quantity}})
}

// DecreaseLines takes stock for every request or for none of them. Called with a context
// that already carries a transaction, it joins that transaction.
func (s *inventoryService) DecreaseLines(ctx context.Context, requests []domain.StockRequest) error {
	for _, r := range requests {
		if r.Quantity <= 0 {
			return domain.Validation("quantity must be positive")
		}
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, req := range normalizeRequests(requests) {
			level, err := s.inventory.Find(ctx, req.ProductID, repository.LockUpdate)
			if errors.Is(err, repository.ErrInventoryNotFound) {
				return domain.InsufficientStock([]domain.StockViolation{{
					ProductID: req.ProductID, Requested: req.Quantity, Missing: true,
				}})
			}
			if err != nil {
				return fmt.Errorf("failed to lock inventory: %w", err)
			}
			if !level.InStock(req.Quantity) {
				return domain.InsufficientStockFor(req.ProductID, req.Quantity, level.Quantity)
			}
			if err := s.inventory.SetQuantity(ctx, req.ProductID, level.Quantity-req.Quantity); err != nil {
				return fmt.Errorf("failed to decrease inventory: %w", err)
			}
		}
		return nil
	})
}

// IncreaseLines restores stock. Products without an inventory row are skipped with a warning.
func (s *inventoryService) IncreaseLines(ctx context.Context, requests []domain.StockRequest) error {
	for _, r := range requests {
		if r.Quantity <= 0 {
			return domain.Validation("quantity must be positive")
		}
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, req := range normalizeRequests(requests) {
			level, err := s.inventory.Find(ctx, req.ProductID, repository.LockUpdate)
			if errors.Is(err, repository.ErrInventoryNotFound) {
				s.logger.Warn("Inventory row missing on restore", zap.String("product_id", req.ProductID.String()))
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to lock inventory: %w", err)
			}
			if err := s.inventory.SetQuantity(ctx, req.ProductID, level.Quantity+req.Quantity); err != nil {
				return fmt.Errorf("failed to increase inventory: %w", err)
			}
		}
		return nil
	})
}

func (s *inventoryService) Level(ctx context.Context, productID uuid.UUID) (*domain.InventoryLevel, error) {
	level, err := s.inventory.Find(ctx, productID, repository.LockNone)
	if errors.Is(err, repository.ErrInventoryNotFound) {
		return nil, domain.NotFound("inventory not found for product")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory level: %w", err)
	}
	return level, nil
}

func (s *inventoryService) LowStock(ctx context.Context) ([]*domain.ProductWithStock, error) {
	items, err := s.inventory.ListLowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock: %w", err)
	}
	return items, nil
}

// SetLevel is the admin overwrite of a product's quantity and optionally its threshold.
func (s *inventoryService) SetLevel(ctx context.Context, productID uuid.UUID, quantity int, threshold *int) (*domain.InventoryLevel, error) {
	if quantity < 0 {
		return nil, domain.Validation("quantity cannot be negative")
	}
	if threshold != nil && *threshold < 0 {
		return nil, domain.Validation("low stock threshold cannot be negative")
	}

	var level *domain.InventoryLevel
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.products.FindByID(ctx, productID); err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return domain.NotFound("product not found")
			}
			return err
		}

		current, err := s.inventory.Find(ctx, productID, repository.LockUpdate)
		switch {
		case errors.Is(err, repository.ErrInventoryNotFound):
			current = &domain.InventoryLevel{ProductID: productID, LowStockThreshold: domain.DefaultLowStockThreshold}
		case err != nil:
			return err
		}

		current.Quantity = quantity
		if threshold != nil {
			current.LowStockThreshold = *threshold
		}
		if err := s.inventory.Upsert(ctx, current); err != nil {
			return err
		}
		level = current
		return nil
	})
	if err != nil {
		return nil, wrapUnlessDomain(err, "failed to set inventory level")
	}

	s.logger.Info("Inventory level set",
		zap.String("product_id", productID.String()),
		zap.Int("quantity", level.Quantity),
		zap.Int("low_stock_threshold", level.LowStockThreshold),
	)

	s.AlertIfLow(ctx, []uuid.UUID{productID})
	return level, nil
}

func (s *inventoryService) AlertIfLow(ctx context.Context, productIDs []uuid.UUID) {
	for _, id := range productIDs {
		product, err := s.products.FindWithStock(ctx, id)
		if err != nil {
			s.logger.Warn("Low stock check failed", zap.String("product_id", id.String()), zap.Error(err))
			continue
		}
		level := domain.InventoryLevel{ProductID: id, Quantity: product.Quantity, LowStockThreshold: product.LowStockThreshold}
		if !level.IsLowStock() {
			continue
		}

		s.logger.Warn("Product is low on stock",
			zap.String("product_id", id.String()),
			zap.Int("quantity", level.Quantity),
			zap.Int("low_stock_threshold", level.LowStockThreshold),
		)
		notify.Send(ctx, s.dispatcher, s.logger, notify.Notification{
			Kind:        notify.KindLowStockAlert,
			ProductID:   id.String(),
			ProductName: product.Name,
			Quantity:    level.Quantity,
			Threshold:   level.LowStockThreshold,
		})
	}
}
