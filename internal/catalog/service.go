package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-store/meridian/internal/barcode"
	"github.com/meridian-store/meridian/internal/shared"
)

// RepositoryPort abstracts catalog persistence for the service.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]Product, error)
	CountProducts(ctx context.Context) (int, error)
	GetVariant(ctx context.Context, productID, variantID int64) (Variant, error)
	FindVariantByOption(ctx context.Context, productID int64, size, color string) (Variant, error)
}

// CodeAllocator issues unique codes for SKUs and variant barcodes.
type CodeAllocator interface {
	Allocate(ctx context.Context, kind barcode.Kind) (string, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements catalog use cases.
type Service struct {
	repo      RepositoryPort
	allocator CodeAllocator
	cache     *AvailabilityCache
	audit     AuditPort
	logger    *slog.Logger
}

// NewService builds Service. cache and audit may be nil.
func NewService(repo RepositoryPort, allocator CodeAllocator, cache *AvailabilityCache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, allocator: allocator, cache: cache, audit: audit, logger: logger}
}

// CreateProduct allocates an SKU for the product and a barcode per variant,
// then persists everything atomically. Codes are reserved before the insert,
// so a failed insert leaves reserved-but-unused codes, which is harmless.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput, actorID int64) (Product, error) {
	if err := checkVariantOptions(input.Variants); err != nil {
		return Product{}, err
	}
	sku, err := s.allocator.Allocate(ctx, barcode.KindSKU)
	if err != nil {
		return Product{}, fmt.Errorf("allocate sku: %w", err)
	}
	p := Product{
		Name:        input.Name,
		Slug:        Slugify(input.Name),
		SKU:         sku,
		Description: input.Description,
		Category:    input.Category,
		Brand:       input.Brand,
		Status:      ProductActive,
	}
	for _, vi := range input.Variants {
		code, err := s.allocator.Allocate(ctx, barcode.KindVariant)
		if err != nil {
			return Product{}, fmt.Errorf("allocate variant barcode: %w", err)
		}
		p.Variants = append(p.Variants, Variant{
			Size:            vi.Size,
			Color:           vi.Color,
			Price:           vi.Price,
			SellingPrice:    vi.SellingPrice,
			CostPrice:       vi.CostPrice,
			InitialQuantity: vi.InitialQuantity,
			Barcode:         code,
		})
	}
	if err := s.repo.CreateProduct(ctx, &p); err != nil {
		return Product{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "catalog:create_product",
			Entity:   "product",
			EntityID: fmt.Sprintf("%d", p.ID),
			Meta:     map[string]any{"sku": p.SKU, "variants": len(p.Variants)},
		})
	}
	s.logger.Info("product created", slog.Int64("product_id", p.ID), slog.String("sku", p.SKU))
	return p, nil
}

// GetProduct loads one product with variants.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns one product page with pagination metadata.
func (s *Service) ListProducts(ctx context.Context, page, perPage int) ([]Product, shared.Pagination, error) {
	total, err := s.repo.CountProducts(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	items, err := s.repo.ListProducts(ctx, p.PerPage, (p.Page-1)*p.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, p, nil
}

// Availability answers storefront stock checks through the cache.
func (s *Service) Availability(ctx context.Context, productID, variantID int64) (Availability, error) {
	if cached, ok := s.cache.Get(ctx, variantID); ok && cached.ProductID == productID {
		return cached, nil
	}
	v, err := s.repo.GetVariant(ctx, productID, variantID)
	if err != nil {
		return Availability{}, err
	}
	a := Availability{
		ProductID: v.ProductID,
		VariantID: v.ID,
		Quantity:  v.Quantity,
		Blocked:   v.StockBlocked,
		Barcode:   v.Barcode,
	}
	s.cache.Set(ctx, a)
	return a, nil
}

// AvailabilityByOption answers a storefront stock check addressed by the
// size/color pair instead of the variant id.
func (s *Service) AvailabilityByOption(ctx context.Context, productID int64, size, color string) (Availability, error) {
	if size == "" || color == "" {
		return Availability{}, fmt.Errorf("%w: size and color required", shared.ErrValidation)
	}
	v, err := s.repo.FindVariantByOption(ctx, productID, size, color)
	if err != nil {
		return Availability{}, err
	}
	return s.Availability(ctx, productID, v.ID)
}
