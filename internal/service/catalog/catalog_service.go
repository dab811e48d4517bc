package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/repository"
	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
	"github.com/Domenick1991/esteticcore/pkg/logger"
)

type CatalogUseCase interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	Invalidate(ctx context.Context)
}

type ProductCache interface {
	GetProducts(ctx context.Context) ([]domain.Product, error)
	SetProducts(ctx context.Context, products []domain.Product) error
	InvalidateProducts(ctx context.Context) error
}

type CatalogService struct {
	repo  repository.ProductRepository
	cache ProductCache
	log   *logger.Logger
}

func NewCatalogService(repo repository.ProductRepository, cache ProductCache, log *logger.Logger) *CatalogService {
	if log == nil {
		log = logger.Nop()
	}
	return &CatalogService{repo: repo, cache: cache, log: log.With("component", "catalog_service")}
}

// ListProducts serves active products from the cache when warm.
func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetProducts(ctx); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			s.log.WarnContext(ctx, "product cache read failed", "error", err)
		}
	}

	products, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list products", err)
	}
	if s.cache != nil {
		if err := s.cache.SetProducts(ctx, products); err != nil {
			s.log.WarnContext(ctx, "product cache write failed", "error", err)
		}
	}
	return products, nil
}

func (s *CatalogService) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, apperrors.Validation("sku is required", nil)
	}
	p, err := s.repo.GetBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, apperrors.NotFound("product", err)
		}
		return nil, apperrors.Internal("failed to load product", err)
	}
	if !p.Active {
		return nil, apperrors.NotFound("product", domain.ErrProductNotFound)
	}
	return p, nil
}

// Invalidate drops the cached list after stock changes.
func (s *CatalogService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProducts(ctx); err != nil {
		s.log.WarnContext(ctx, "product cache invalidation failed", "error", err)
	}
}

var _ CatalogUseCase = (*CatalogService)(nil)
