// Package memory implements every repository over process memory. A transaction holds the
// store's write lock for its whole duration and restores a snapshot when it fails, which
// gives the same all-or-nothing and serialization guarantees the SQL row locks provide.
package memory

import (
	"context"
	"sync"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type dataset struct {
	users      map[uuid.UUID]domain.User
	tokens     map[string]domain.RefreshToken
	categories map[uuid.UUID]domain.Category
	products   map[uuid.UUID]domain.Product
	inventory  map[uuid.UUID]domain.InventoryLevel
	addresses  map[uuid.UUID]domain.ShippingAddress
	cart       map[uuid.UUID]domain.CartLine
	orders     map[uuid.UUID]domain.Order
	items      map[uuid.UUID][]domain.OrderItem
	history    map[uuid.UUID][]domain.OrderStatusHistory
}

func newDataset() *dataset {
	return &dataset{
		users:      make(map[uuid.UUID]domain.User),
		tokens:     make(map[string]domain.RefreshToken),
		categories: make(map[uuid.UUID]domain.Category),
		products:   make(map[uuid.UUID]domain.Product),
		inventory:  make(map[uuid.UUID]domain.InventoryLevel),
		addresses:  make(map[uuid.UUID]domain.ShippingAddress),
		cart:       make(map[uuid.UUID]domain.CartLine),
		orders:     make(map[uuid.UUID]domain.Order),
		items:      make(map[uuid.UUID][]domain.OrderItem),
		history:    make(map[uuid.UUID][]domain.OrderStatusHistory),
	}
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copySliceMap[K comparable, V any](src map[K][]V) map[K][]V {
	dst := make(map[K][]V, len(src))
	for k, v := range src {
		dst[k] = append([]V(nil), v...)
	}
	return dst
}

func (d *dataset) clone() *dataset {
	return &dataset{
		users:      copyMap(d.users),
		tokens:     copyMap(d.tokens),
		categories: copyMap(d.categories),
		products:   copyMap(d.products),
		inventory:  copyMap(d.inventory),
		addresses:  copyMap(d.addresses),
		cart:       copyMap(d.cart),
		orders:     copyMap(d.orders),
		items:      copySliceMap(d.items),
		history:    copySliceMap(d.history),
	}
}

// Store is the shared in-memory database.
type Store struct {
	mu   sync.RWMutex
	data *dataset
}

func New() *Store {
	return &Store{data: newDataset()}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

func (s *Store) rlock(ctx context.Context) {
	if !s.inTx(ctx) {
		s.mu.RLock()
	}
}

func (s *Store) runlock(ctx context.Context) {
	if !s.inTx(ctx) {
		s.mu.RUnlock()
	}
}

func (s *Store) wlock(ctx context.Context) {
	if !s.inTx(ctx) {
		s.mu.Lock()
	}
}

func (s *Store) wunlock(ctx context.Context) {
	if !s.inTx(ctx) {
		s.mu.Unlock()
	}
}

// WithinTx implements repository.TxManager.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

var _ repository.TxManager = (*Store)(nil)

func (s *Store) TxManager() repository.TxManager { return s }
func (s *Store) Users() repository.UserRepository { return &users{s} }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return &refreshTokens{s} }
func (s *Store) Categories() repository.CategoryRepository { return &categories{s} }
func (s *Store) Products() repository.ProductRepository { return &products{s} }
func (s *Store) Inventory() repository.InventoryRepository { return &inventory{s} }
func (s *Store) Addresses() repository.AddressRepository { return &addresses{s} }
func (s *Store) Carts() repository.CartRepository { return &carts{s} }
func (s *Store) Orders() repository.OrderRepository { return &orders{s} }

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
