package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/souqhub/souq-api/internal/dto"
	"github.com/souqhub/souq-api/internal/model"
	"github.com/souqhub/souq-api/internal/repository"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrItemNotFound     = errors.New("item not found")
	ErrInvalidPrice     = errors.New("price must be positive")
)

// DeleteOutcome distinguishes the three ways a catalog deletion can end.
// Archival is a success variant, not an error: the row stays for the sake of
// historical orders and the UI stops offering it.
type DeleteOutcome string

const (
	OutcomeDeleted      DeleteOutcome = "deleted"
	OutcomeArchived     DeleteOutcome = "archived"
	OutcomeForceDeleted DeleteOutcome = "force_deleted"
)

const activeItemsCacheTTL = 60 * time.Second

type CatalogService struct {
	catalogRepo repository.CatalogRepository
	redisClient *redis.Client
}

func NewCatalogService(catalogRepo repository.CatalogRepository, redisClient *redis.Client) *CatalogService {
	return &CatalogService{catalogRepo: catalogRepo, redisClient: redisClient}
}

// --- Categories ---

func (s *CatalogService) CreateCategory(ctx context.Context, req dto.CreateCategoryRequest) (*model.Category, error) {
	category := &model.Category{Name: req.Name, Description: req.Description, ImageURL: req.ImageURL}
	if err := s.catalogRepo.CreateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return category, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	category, err := s.catalogRepo.GetCategory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}
	return category, nil
}

func (s *CatalogService) ListCategories(ctx context.Context, includeArchived bool) ([]model.Category, error) {
	return s.catalogRepo.ListCategories(ctx, includeArchived)
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id uuid.UUID, req dto.UpdateCategoryRequest) (*model.Category, error) {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		category.Name = *req.Name
	}
	if req.Description != nil {
		category.Description = *req.Description
	}
	if req.ImageURL != nil {
		category.ImageURL = *req.ImageURL
	}
	if req.Archived != nil {
		category.Archived = *req.Archived
	}
	if err := s.catalogRepo.UpdateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	s.invalidateItemsCache(ctx, id)
	return category, nil
}

// DeleteCategory applies the archive-over-delete policy: clean categories
// are removed, categories with order history are archived unless the caller
// explicitly forces a cascading delete.
func (s *CatalogService) DeleteCategory(ctx context.Context, id uuid.UUID, force bool) (DeleteOutcome, error) {
	category, err := s.catalogRepo.GetCategory(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return "", ErrCategoryNotFound
	}

	count, err := s.catalogRepo.CountOrderItemsByCategory(ctx, id)
	if err != nil {
		return "", fmt.Errorf("count order history: %w", err)
	}

	switch {
	case count == 0:
		if err := s.catalogRepo.DeleteCategory(ctx, id); err != nil {
			return "", fmt.Errorf("delete category: %w", err)
		}
		s.invalidateItemsCache(ctx, id)
		return OutcomeDeleted, nil
	case force:
		if err := s.catalogRepo.ForceDeleteCategory(ctx, id); err != nil {
			return "", fmt.Errorf("force delete category: %w", err)
		}
		s.invalidateItemsCache(ctx, id)
		return OutcomeForceDeleted, nil
	default:
		if err := s.catalogRepo.ArchiveCategory(ctx, id); err != nil {
			return "", fmt.Errorf("archive category: %w", err)
		}
		s.invalidateItemsCache(ctx, id)
		return OutcomeArchived, nil
	}
}

// --- Items ---

func (s *CatalogService) CreateItem(ctx context.Context, req dto.CreateItemRequest) (*model.Item, error) {
	if !req.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	category, err := s.catalogRepo.GetCategory(ctx, req.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}

	item := &model.Item{
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	}
	if err := s.catalogRepo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.invalidateItemsCache(ctx, req.CategoryID)
	return item, nil
}

func (s *CatalogService) GetItem(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	item, err := s.catalogRepo.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	return item, nil
}

func (s *CatalogService) ListItems(ctx context.Context, categoryID *uuid.UUID, includeArchived bool) ([]model.Item, error) {
	return s.catalogRepo.ListItems(ctx, categoryID, includeArchived)
}

func (s *CatalogService) UpdateItem(ctx context.Context, id uuid.UUID, req dto.UpdateItemRequest) (*model.Item, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	oldCategory := item.CategoryID
	if req.CategoryID != nil {
		item.CategoryID = *req.CategoryID
	}
	if req.Name != nil {
		item.Name = *req.Name
	}
	if req.Description != nil {
		item.Description = *req.Description
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return nil, ErrInvalidPrice
		}
		item.Price = *req.Price
	}
	if req.ImageURL != nil {
		item.ImageURL = *req.ImageURL
	}
	if req.Archived != nil {
		item.Archived = *req.Archived
	}
	if err := s.catalogRepo.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	s.invalidateItemsCache(ctx, oldCategory)
	s.invalidateItemsCache(ctx, item.CategoryID)
	return item, nil
}

// DeleteItem has no force path: items with order history are always archived.
func (s *CatalogService) DeleteItem(ctx context.Context, id uuid.UUID) (DeleteOutcome, error) {
	item, err := s.catalogRepo.GetItem(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get item: %w", err)
	}
	if item == nil {
		return "", ErrItemNotFound
	}

	count, err := s.catalogRepo.CountOrderItemsByItem(ctx, id)
	if err != nil {
		return "", fmt.Errorf("count order history: %w", err)
	}

	if count > 0 {
		if err := s.catalogRepo.ArchiveItem(ctx, id); err != nil {
			return "", fmt.Errorf("archive item: %w", err)
		}
		s.invalidateItemsCache(ctx, item.CategoryID)
		return OutcomeArchived, nil
	}

	if err := s.catalogRepo.DeleteItem(ctx, id); err != nil {
		return "", fmt.Errorf("delete item: %w", err)
	}
	s.invalidateItemsCache(ctx, item.CategoryID)
	return OutcomeDeleted, nil
}

// ActiveItems is the basket-building read path: the non-archived items of a
// category, cached briefly in redis.
func (s *CatalogService) ActiveItems(ctx context.Context, categoryID uuid.UUID) ([]model.Item, error) {
	cacheKey := "catalog:items:" + categoryID.String()

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var items []model.Item
			if json.Unmarshal([]byte(cached), &items) == nil {
				return items, nil
			}
		}
	}

	category, err := s.catalogRepo.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}

	items, err := s.catalogRepo.ListItems(ctx, &categoryID, false)
	if err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}

	if s.redisClient != nil {
		if data, err := json.Marshal(items); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, activeItemsCacheTTL)
		}
	}
	return items, nil
}

func (s *CatalogService) invalidateItemsCache(ctx context.Context, categoryID uuid.UUID) {
	if s.redisClient != nil {
		s.redisClient.Del(ctx, "catalog:items:"+categoryID.String())
	}
}
