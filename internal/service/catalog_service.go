package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// ProductQuery filters and pages a product listing.
type ProductQuery struct {
	CategoryID *uuid.UUID
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  repository.SortOrder
}

// CatalogService is the read side of products and categories.
type CatalogService interface {
	ListProducts(ctx context.Context, q ProductQuery) ([]*domain.ProductWithStock, int, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.ProductWithStock, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
}

type catalogService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
}

func NewCatalogService(products repository.ProductRepository, categories repository.CategoryRepository) CatalogService {
	return &catalogService{products: products, categories: categories}
}

func (s *catalogService) ListProducts(ctx context.Context, q ProductQuery) ([]*domain.ProductWithStock, int, error) {
	if q.CategoryID != nil {
		if _, err := s.categories.FindByID(ctx, *q.CategoryID); err != nil {
			if errors.Is(err, repository.ErrCategoryNotFound) {
				return nil, 0, domain.NotFound("category not found")
			}
			return nil, 0, fmt.Errorf("failed to load category: %w", err)
		}
	}
	products, total, err := s.products.List(ctx, q.CategoryID, q.Page, q.PageSize, q.SortBy, q.SortOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.ProductWithStock, error) {
	product, err := s.products.FindWithStock(ctx, id)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, domain.NotFound("product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}
