package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type carts struct{ s *Store }

func (r *carts) views(owner domain.Owner) []*domain.CartLineView {
	out := []*domain.CartLineView{}
	for _, line := range r.s.data.cart {
		if line.Owner.Key() != owner.Key() {
			continue
		}
		p, ok := r.s.data.products[line.ProductID]
		if !ok {
			continue
		}
		view := &domain.CartLineView{
			CartLine:    line,
			ProductName: p.Name,
			SKU:         p.SKU,
			UnitPrice:   p.Price,
			Available:   r.s.data.inventory[line.ProductID].Quantity,
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]) < 0
	})
	return out
}

func (r *carts) ListByOwner(ctx context.Context, owner domain.Owner) ([]*domain.CartLineView, error) {
	if owner.IsZero() {
		return nil, repository.ErrCartOwnerRequired
	}
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	return r.views(owner), nil
}

func (r *carts) LockByOwner(ctx context.Context, owner domain.Owner) ([]*domain.CartLineView, error) {
	return r.ListByOwner(ctx, owner)
}

func (r *carts) FindByID(ctx context.Context, id uuid.UUID) (*domain.CartLine, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	line, ok := r.s.data.cart[id]
	if !ok {
		return nil, repository.ErrCartItemNotFound
	}
	return &line, nil
}

func (r *carts) find(owner domain.Owner, productID uuid.UUID) (domain.CartLine, bool) {
	for _, line := range r.s.data.cart {
		if line.Owner.Key() == owner.Key() && line.ProductID == productID {
			return line, true
		}
	}
	return domain.CartLine{}, false
}

func (r *carts) FindByOwnerAndProduct(ctx context.Context, owner domain.Owner, productID uuid.UUID) (*domain.CartLine, error) {
	if owner.IsZero() {
		return nil, repository.ErrCartOwnerRequired
	}
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	line, ok := r.find(owner, productID)
	if !ok {
		return nil, repository.ErrCartItemNotFound
	}
	return &line, nil
}

func (r *carts) Create(ctx context.Context, line *domain.CartLine) error {
	if line.Owner.IsZero() {
		return repository.ErrCartOwnerRequired
	}
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	if _, exists := r.find(line.Owner, line.ProductID); exists {
		return repository.ErrCartItemExists
	}
	if _, ok := r.s.data.products[line.ProductID]; !ok {
		return repository.ErrProductNotFound
	}
	r.s.data.cart[line.ID] = *line
	return nil
}

func (r *carts) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	line, ok := r.s.data.cart[id]
	if !ok {
		return repository.ErrCartItemNotFound
	}
	line.Quantity = quantity
	line.UpdatedAt = time.Now().UTC()
	r.s.data.cart[id] = line
	return nil
}

func (r *carts) ReassignOwner(ctx context.Context, id uuid.UUID, owner domain.Owner) error {
	if owner.IsZero() {
		return repository.ErrCartOwnerRequired
	}
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	line, ok := r.s.data.cart[id]
	if !ok {
		return repository.ErrCartItemNotFound
	}
	if _, exists := r.find(owner, line.ProductID); exists {
		return repository.ErrCartItemExists
	}
	line.Owner = owner
	line.UpdatedAt = time.Now().UTC()
	r.s.data.cart[id] = line
	return nil
}

func (r *carts) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	if _, ok := r.s.data.cart[id]; !ok {
		return repository.ErrCartItemNotFound
	}
	delete(r.s.data.cart, id)
	return nil
}

func (r *carts) DeleteByOwner(ctx context.Context, owner domain.Owner) (int64, error) {
	if owner.IsZero() {
		return 0, repository.ErrCartOwnerRequired
	}
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	var n int64
	for id, line := range r.s.data.cart {
		if line.Owner.Key() == owner.Key() {
			delete(r.s.data.cart, id)
			n++
		}
	}
	return n, nil
}
