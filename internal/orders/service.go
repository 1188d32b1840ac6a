package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-store/meridian/internal/barcode"
	"github.com/meridian-store/meridian/internal/catalog"
	"github.com/meridian-store/meridian/internal/shared"
	"github.com/meridian-store/meridian/internal/stock"
)

// RepositoryPort abstracts order persistence for the service.
type RepositoryPort interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, from []Status, to Status) error
	ReversalExists(ctx context.Context, movementID int64) (bool, error)
	OrphanedFulfillments(ctx context.Context, grace time.Duration) ([]stock.MovementRecord, error)
}

// StockPort is the slice of the stock engine the saga drives. The engine's
// service satisfies it directly.
type StockPort interface {
	StockOut(ctx context.Context, input stock.MovementInput) (stock.MovementRecord, error)
	Return(ctx context.Context, input stock.MovementInput) (stock.MovementRecord, error)
}

// CatalogPort resolves order lines to variants for price snapshots.
type CatalogPort interface {
	GetVariant(ctx context.Context, productID, variantID int64) (catalog.Variant, error)
}

// IdempotencyPort guards duplicate placements.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CodeAllocator issues the order barcode.
type CodeAllocator interface {
	Allocate(ctx context.Context, kind barcode.Kind) (string, error)
}

// MetricsPort receives order counters.
type MetricsPort interface {
	OrderPlaced()
	OrderCompensated()
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const idempotencyModule = "ORDERS"

// Service implements order use cases.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	catalog     CatalogPort
	idempotency IdempotencyPort
	allocator   CodeAllocator
	metrics     MetricsPort
	audit       AuditPort
	logger      *slog.Logger
}

// NewService builds Service. idempotency, metrics and audit may be nil.
func NewService(repo RepositoryPort, stockPort StockPort, catalogPort CatalogPort,
	idempotency IdempotencyPort, allocator CodeAllocator, metrics MetricsPort,
	audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		stock:       stockPort,
		catalog:     catalogPort,
		idempotency: idempotency,
		allocator:   allocator,
		metrics:     metrics,
		audit:       audit,
		logger:      logger,
	}
}

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	VariantID int64 `json:"variant_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// PlaceOrderInput is the write model for placements.
type PlaceOrderInput struct {
	CustomerName   string      `json:"customer_name" validate:"required,min=2,max=200"`
	CustomerPhone  string      `json:"customer_phone" validate:"max=30"`
	Note           string      `json:"note" validate:"max=500"`
	Items          []ItemInput `json:"items" validate:"required,min=1,dive"`
	IdempotencyKey string      `json:"-"`
	ActorID        int64       `json:"-"`
}

type appliedLine struct {
	item     Item
	movement stock.MovementRecord
}

// PlaceOrder runs the fulfillment saga: resolve lines, decrement stock per
// line, and persist the order. Any failure after the first decrement reverses
// every applied decrement before the error is returned, so a failed placement
// leaves stock untouched.
func (s *Service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (Order, error) {
	if len(input.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one item", shared.ErrValidation)
	}
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return Order{}, err
		}
	}

	// The ref exists before any movement or order row. Every decrement below
	// carries it, which is the thread recovery follows for crashed placements.
	ref := uuid.NewString()

	fail := func(applied []appliedLine, err error) (Order, error) {
		s.compensate(ctx, ref, applied, input.ActorID)
		if input.IdempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Order{}, err
	}

	// Resolve and dry-run before touching any counter. The stock engine still
	// enforces sufficiency on apply; this pass just fails fast and snapshots
	// prices.
	lines := make([]Item, 0, len(input.Items))
	var total float64
	for i, req := range input.Items {
		variant, err := s.catalog.GetVariant(ctx, req.ProductID, req.VariantID)
		if err != nil {
			return fail(nil, &ItemError{Index: i, ProductID: req.ProductID, VariantID: req.VariantID, Err: err})
		}
		if variant.Quantity < req.Quantity {
			return fail(nil, &ItemError{Index: i, ProductID: req.ProductID, VariantID: req.VariantID,
				Err: &stock.InsufficientStockError{Available: variant.Quantity, Requested: req.Quantity}})
		}
		line := Item{
			ProductID: req.ProductID,
			VariantID: req.VariantID,
			Size:      variant.Size,
			Color:     variant.Color,
			Quantity:  req.Quantity,
			UnitPrice: variant.SellingPrice,
			LineTotal: variant.SellingPrice * float64(req.Quantity),
		}
		total += line.LineTotal
		lines = append(lines, line)
	}

	applied := make([]appliedLine, 0, len(lines))
	for i := range lines {
		rec, err := s.stock.StockOut(ctx, stock.MovementInput{
			ProductID: lines[i].ProductID,
			VariantID: lines[i].VariantID,
			Magnitude: lines[i].Quantity,
			ActorID:   input.ActorID,
			RefModule: idempotencyModule,
			RefID:     ref,
			Note:      "order fulfillment",
		})
		if err != nil {
			return fail(applied, &ItemError{Index: i, ProductID: lines[i].ProductID, VariantID: lines[i].VariantID, Err: err})
		}
		lines[i].MovementID = rec.ID
		applied = append(applied, appliedLine{item: lines[i], movement: rec})
	}

	code, err := s.allocator.Allocate(ctx, barcode.KindOrder)
	if err != nil {
		return fail(applied, fmt.Errorf("allocate order barcode: %w", err))
	}

	order := Order{
		UserID:        input.ActorID,
		Ref:           ref,
		Barcode:       code,
		Status:        StatusPending,
		CustomerName:  input.CustomerName,
		CustomerPhone: input.CustomerPhone,
		Note:          input.Note,
		TotalAmount:   total,
		Items:         lines,
	}
	if err := s.repo.CreateOrder(ctx, &order); err != nil {
		return fail(applied, fmt.Errorf("persist order: %w", err))
	}

	if s.metrics != nil {
		s.metrics.OrderPlaced()
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "orders:place",
			Entity:   "order",
			EntityID: fmt.Sprintf("%d", order.ID),
			Meta:     map[string]any{"ref": ref, "items": len(order.Items), "total": total},
		})
	}
	s.logger.Info("order placed", slog.Int64("order_id", order.ID), slog.String("ref", ref))
	return order, nil
}

// compensate reverses applied decrements in reverse order. Each return links
// back to the movement it reverses, which makes re-running it a no-op at the
// ledger level.
func (s *Service) compensate(ctx context.Context, ref string, applied []appliedLine, actorID int64) {
	if len(applied) == 0 {
		return
	}
	for i := len(applied) - 1; i >= 0; i-- {
		line := applied[i]
		_, err := s.stock.Return(ctx, stock.MovementInput{
			ProductID:  line.item.ProductID,
			VariantID:  line.item.VariantID,
			Magnitude:  line.item.Quantity,
			ActorID:    actorID,
			RefModule:  idempotencyModule,
			RefID:      ref,
			ReversalOf: line.movement.ID,
			Note:       "placement compensation",
		})
		if err != nil {
			// Left for the recovery sweep; the movement keeps its ref.
			s.logger.Error("compensation failed",
				slog.String("ref", ref),
				slog.Int64("movement_id", line.movement.ID),
				slog.Any("error", err))
		}
	}
	if s.metrics != nil {
		s.metrics.OrderCompensated()
	}
}

// Get loads one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns an order page.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Status != "" {
		switch filter.Status {
		case StatusPending, StatusCompleted, StatusShipped, StatusCancelled:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
		}
	}
	return s.repo.ListOrders(ctx, filter)
}

// UpdateStatus advances the order along pending -> completed -> shipped.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status, actorID int64) (Order, error) {
	if to == StatusCancelled {
		return Order{}, fmt.Errorf("%w: use cancel", ErrInvalidTransition)
	}
	from := statusesReaching(to)
	if len(from) == 0 {
		return Order{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, from, to); err != nil {
		return Order{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "orders:status",
			Entity:   "order",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"to": string(to)},
		})
	}
	return s.repo.GetOrder(ctx, id)
}

// Cancel flips the order to cancelled and restocks every fulfilled line. The
// status flip is the commit point: it is conditional, so a concurrent double
// cancel compensates only once. Re-cancelling an already cancelled order
// resumes the restock loop instead of erroring, so a cancel that died between
// the flip and the returns finishes on retry; the recovery sweep covers the
// case where nobody retries.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	resuming := false
	err = s.repo.UpdateStatus(ctx, id, []Status{StatusPending, StatusCompleted}, StatusCancelled)
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			return Order{}, err
		}
		// The flip lost; re-read to see what it lost to. Shipped orders stay
		// uncancellable, a cancelled one re-enters the restock loop below.
		if order, err = s.repo.GetOrder(ctx, id); err != nil {
			return Order{}, err
		}
		if order.Status != StatusCancelled {
			return Order{}, fmt.Errorf("%w: cannot cancel status %s", ErrInvalidTransition, order.Status)
		}
		resuming = true
	}

	restocked := 0
	for _, item := range order.Items {
		reversed, err := s.repo.ReversalExists(ctx, item.MovementID)
		if err != nil {
			return Order{}, err
		}
		if reversed {
			continue
		}
		_, err = s.stock.Return(ctx, stock.MovementInput{
			ProductID:  item.ProductID,
			VariantID:  item.VariantID,
			Magnitude:  item.Quantity,
			ActorID:    actorID,
			RefModule:  idempotencyModule,
			RefID:      order.Ref,
			ReversalOf: item.MovementID,
			Note:       "order cancellation",
		})
		if err != nil {
			return Order{}, fmt.Errorf("restock item %d: %w", item.ID, err)
		}
		restocked++
	}
	if resuming && restocked == 0 {
		return Order{}, fmt.Errorf("%w: status %s", ErrAlreadyCancelled, order.Status)
	}
	if s.metrics != nil {
		s.metrics.OrderCompensated()
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "orders:cancel",
			Entity:   "order",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"ref": order.Ref, "items": len(order.Items)},
		})
	}
	return s.repo.GetOrder(ctx, id)
}
