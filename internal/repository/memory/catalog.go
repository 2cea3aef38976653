package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type categories struct{ s *Store }

func (r *categories) Create(ctx context.Context, c *domain.Category) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	for _, existing := range r.s.data.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return repository.ErrCategoryAlreadyExists
		}
	}
	r.s.data.categories[c.ID] = *c
	return nil
}

func (r *categories) List(ctx context.Context) ([]*domain.Category, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	out := make([]*domain.Category, 0, len(r.s.data.categories))
	for _, c := range r.s.data.categories {
		cp := c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *categories) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	c, ok := r.s.data.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return &c, nil
}

type products struct{ s *Store }

func (r *products) skuTaken(sku string, except uuid.UUID) bool {
	for id, p := range r.s.data.products {
		if id != except && p.SKU == sku {
			return true
		}
	}
	return false
}

func (r *products) Create(ctx context.Context, p *domain.Product) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	if r.skuTaken(p.SKU, p.ID) {
		return repository.ErrProductSKUExists
	}
	cp := *p
	cp.Price = domain.RoundMoney(cp.Price)
	r.s.data.products[p.ID] = cp
	return nil
}

func (r *products) Update(ctx context.Context, p *domain.Product) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	if _, ok := r.s.data.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	if r.skuTaken(p.SKU, p.ID) {
		return repository.ErrProductSKUExists
	}
	cp := *p
	cp.Price = domain.RoundMoney(cp.Price)
	r.s.data.products[p.ID] = cp
	return nil
}

func (r *products) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	if _, ok := r.s.data.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(r.s.data.products, id)
	delete(r.s.data.inventory, id)
	for lineID, line := range r.s.data.cart {
		if line.ProductID == id {
			delete(r.s.data.cart, lineID)
		}
	}
	return nil
}

func (r *products) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	p, ok := r.s.data.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (r *products) withStock(p domain.Product) *domain.ProductWithStock {
	item := &domain.ProductWithStock{Product: p}
	if level, ok := r.s.data.inventory[p.ID]; ok {
		item.Quantity = level.Quantity
		item.LowStockThreshold = level.LowStockThreshold
	}
	item.InStock = item.Quantity > 0
	return item
}

func (r *products) FindWithStock(ctx context.Context, id uuid.UUID) (*domain.ProductWithStock, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	p, ok := r.s.data.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return r.withStock(p), nil
}

func (r *products) List(ctx context.Context, categoryID *uuid.UUID, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.ProductWithStock, int, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)

	all := []*domain.ProductWithStock{}
	for _, p := range r.s.data.products {
		if categoryID != nil && (!p.CategoryID.Valid || p.CategoryID.UUID != *categoryID) {
			continue
		}
		all = append(all, r.withStock(p))
	}

	less := func(a, b *domain.ProductWithStock) bool {
		switch sortBy {
		case "name":
			return a.Name < b.Name
		case "price":
			return a.Price.LessThan(b.Price)
		case "stock":
			return a.Quantity < b.Quantity
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if sortOrder == repository.SortOrderAsc {
			return less(all[i], all[j])
		}
		return less(all[j], all[i])
	})

	return paginate(all, page, pageSize), len(all), nil
}

type inventory struct{ s *Store }

// Find ignores the lock mode: transactions already hold the store lock exclusively.
func (r *inventory) Find(ctx context.Context, productID uuid.UUID, _ repository.LockMode) (*domain.InventoryLevel, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	level, ok := r.s.data.inventory[productID]
	if !ok {
		return nil, repository.ErrInventoryNotFound
	}
	return &level, nil
}

func (r *inventory) SetQuantity(ctx context.Context, productID uuid.UUID, quantity int) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	level, ok := r.s.data.inventory[productID]
	if !ok {
		return repository.ErrInventoryNotFound
	}
	if quantity < 0 {
		return repository.ErrNegativeQuantity
	}
	level.Quantity = quantity
	level.UpdatedAt = time.Now().UTC()
	r.s.data.inventory[productID] = level
	return nil
}

func (r *inventory) Upsert(ctx context.Context, level *domain.InventoryLevel) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	if _, ok := r.s.data.products[level.ProductID]; !ok {
		return repository.ErrProductNotFound
	}
	if level.Quantity < 0 {
		return repository.ErrNegativeQuantity
	}
	level.UpdatedAt = time.Now().UTC()
	r.s.data.inventory[level.ProductID] = *level
	return nil
}

func (r *inventory) ListLowStock(ctx context.Context) ([]*domain.ProductWithStock, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	out := []*domain.ProductWithStock{}
	for id, level := range r.s.data.inventory {
		if !level.IsLowStock() {
			continue
		}
		p, ok := r.s.data.products[id]
		if !ok {
			continue
		}
		out = append(out, &domain.ProductWithStock{
			Product:           p,
			Quantity:          level.Quantity,
			LowStockThreshold: level.LowStockThreshold,
			InStock:           level.Quantity > 0,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity < out[j].Quantity
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
