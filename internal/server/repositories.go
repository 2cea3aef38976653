package server

import (
	"database/sql"

	"storefront/internal/repository"
	"storefront/internal/repository/memory"
)

// Repositories bundles every store the services need behind one transaction manager.
type Repositories struct {
	Tx            repository.TxManager
	Users         repository.UserRepository
	RefreshTokens repository.RefreshTokenRepository
	Categories    repository.CategoryRepository
	Products      repository.ProductRepository
	Inventory     repository.InventoryRepository
	Addresses     repository.AddressRepository
	Carts         repository.CartRepository
	Orders        repository.OrderRepository
}

// PostgresRepositories builds the SQL-backed repositories on a shared pool.
func PostgresRepositories(db *sql.DB) Repositories {
	return Repositories{
		Tx:            repository.NewTxManager(db),
		Users:         repository.NewUserRepository(db),
		RefreshTokens: repository.NewRefreshTokenRepository(db),
		Categories:    repository.NewCategoryRepository(db),
		Products:      repository.NewProductRepository(db),
		Inventory:     repository.NewInventoryRepository(db),
		Addresses:     repository.NewAddressRepository(db),
		Carts:         repository.NewCartRepository(db),
		Orders:        repository.NewOrderRepository(db),
	}
}

// MemoryRepositories exposes an in-process store through the same bundle.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Tx:            store.TxManager(),
		Users:         store.Users(),
		RefreshTokens: store.RefreshTokens(),
		Categories:    store.Categories(),
		Products:      store.Products(),
		Inventory:     store.Inventory(),
		Addresses:     store.Addresses(),
		Carts:         store.Carts(),
		Orders:        store.Orders(),
	}
}
