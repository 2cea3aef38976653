package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// AddressInput is a new shipping address.
type AddressInput struct {
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

type AddressService interface {
	Create(ctx context.Context, userID uuid.UUID, in AddressInput) (*domain.ShippingAddress, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.ShippingAddress, error)
	Delete(ctx context.Context, userID, addressID uuid.UUID) error
}

type addressService struct {
	addresses repository.AddressRepository
}

func NewAddressService(addresses repository.AddressRepository) AddressService {
	return &addressService{addresses: addresses}
}

func (s *addressService) Create(ctx context.Context, userID uuid.UUID, in AddressInput) (*domain.ShippingAddress, error) {
	addr := &domain.ShippingAddress{
		ID:         uuid.New(),
		UserID:     userID,
		FullName:   strings.TrimSpace(in.FullName),
		Line1:      strings.TrimSpace(in.Line1),
		Line2:      strings.TrimSpace(in.Line2),
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(in.Country)),
		Phone:      strings.TrimSpace(in.Phone),
		CreatedAt:  time.Now().UTC(),
	}
	if addr.FullName == "" || addr.Line1 == "" || addr.City == "" || addr.PostalCode == "" || addr.Country == "" {
		return nil, domain.Validation("full name, line 1, city, postal code and country are required")
	}
	if err := s.addresses.Create(ctx, addr); err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}
	return addr, nil
}

func (s *addressService) List(ctx context.Context, userID uuid.UUID) ([]*domain.ShippingAddress, error) {
	addrs, err := s.addresses.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	return addrs, nil
}

func (s *addressService) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	addr, err := s.addresses.FindByID(ctx, addressID)
	if errors.Is(err, repository.ErrAddressNotFound) {
		return domain.NotFound("shipping address not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load address: %w", err)
	}
	if addr.UserID != userID {
		return domain.Forbidden("shipping address belongs to another user")
	}
	if err := s.addresses.Delete(ctx, addressID); err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}
	return nil
}
