package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	CreateLocation(ctx context.Context, input CreateLocationInput) (Location, error)
	ListLocations(ctx context.Context) ([]Location, error)
	GetLocation(ctx context.Context, id uuid.UUID) (Location, error)
	CreateItem(ctx context.Context, input CreateItemInput) (Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (Item, error)
}

// Service coordinates catalog operations.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// DefaultLocationType is applied when the caller omits a location type.
const DefaultLocationType = "shelf"

// DefaultUOM is applied when the caller omits a unit of measure.
const DefaultUOM = "pcs"

func (s *Service) CreateLocation(ctx context.Context, input CreateLocationInput) (Location, error) {
	if input.Name == "" {
		return Location{}, errors.New("catalog: location name required")
	}
	if input.Type == "" {
		input.Type = DefaultLocationType
	}
	return s.repo.CreateLocation(ctx, input)
}

func (s *Service) ListLocations(ctx context.Context) ([]Location, error) {
	return s.repo.ListLocations(ctx)
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (Location, error) {
	return s.repo.GetLocation(ctx, id)
}

func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	if input.SKU == "" {
		return Item{}, errors.New("catalog: item sku required")
	}
	if input.UOM == "" {
		input.UOM = DefaultUOM
	}
	return s.repo.CreateItem(ctx, input)
}

func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	return s.repo.GetItem(ctx, id)
}
