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

type orders struct{ s *Store }

func (r *orders) Create(ctx context.Context, o *domain.Order) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	if o.PaymentIntentID != "" {
		for _, existing := range r.s.data.orders {
			if existing.PaymentIntentID == o.PaymentIntentID {
				return repository.ErrDuplicatePaymentIntent
			}
		}
	}
	cp := *o
	cp.Items, cp.History = nil, nil
	r.s.data.orders[o.ID] = cp
	return nil
}

func (r *orders) CreateItems(ctx context.Context, items []domain.OrderItem) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	for _, item := range items {
		if _, ok := r.s.data.orders[item.OrderID]; !ok {
			return repository.ErrOrderNotFound
		}
		r.s.data.items[item.OrderID] = append(r.s.data.items[item.OrderID], item)
	}
	return nil
}

func (r *orders) AppendHistory(ctx context.Context, entry *domain.OrderStatusHistory) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	if _, ok := r.s.data.orders[entry.OrderID]; !ok {
		return repository.ErrOrderNotFound
	}
	r.s.data.history[entry.OrderID] = append(r.s.data.history[entry.OrderID], *entry)
	return nil
}

func (r *orders) hydrate(o domain.Order) *domain.Order {
	o.Items = append([]domain.OrderItem{}, r.s.data.items[o.ID]...)
	sort.Slice(o.Items, func(i, j int) bool {
		return bytes.Compare(o.Items[i].ProductID[:], o.Items[j].ProductID[:]) < 0
	})
	o.History = append([]domain.OrderStatusHistory{}, r.s.data.history[o.ID]...)
	return &o
}

func (r *orders) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	o, ok := r.s.data.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return r.hydrate(o), nil
}

func (r *orders) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *orders) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Order, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	for _, o := range r.s.data.orders {
		if paymentIntentID != "" && o.PaymentIntentID == paymentIntentID {
			return r.hydrate(o), nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (r *orders) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	all := []*domain.Order{}
	for _, o := range r.s.data.orders {
		if o.UserID == userID {
			cp := o
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page, pageSize), len(all), nil
}

func (r *orders) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, trackingNumber *string) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	o, ok := r.s.data.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	if trackingNumber != nil {
		o.TrackingNumber = *trackingNumber
	}
	o.UpdatedAt = time.Now().UTC()
	r.s.data.orders[id] = o
	return nil
}

type addresses struct{ s *Store }

func (r *addresses) Create(ctx context.Context, a *domain.ShippingAddress) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	r.s.data.addresses[a.ID] = *a
	return nil
}

func (r *addresses) FindByID(ctx context.Context, id uuid.UUID) (*domain.ShippingAddress, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	a, ok := r.s.data.addresses[id]
	if !ok {
		return nil, repository.ErrAddressNotFound
	}
	return &a, nil
}

func (r *addresses) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ShippingAddress, error) {
	r.s.rlock(ctx)
	defer r.s.runlock(ctx)
	out := []*domain.ShippingAddress{}
	for _, a := range r.s.data.addresses {
		if a.UserID == userID {
			cp := a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *addresses) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.wlock(ctx)
	defer r.s.wunlock(ctx)
	if _, ok := r.s.data.addresses[id]; !ok {
		return repository.ErrAddressNotFound
	}
	delete(r.s.data.addresses, id)
	return nil
}
