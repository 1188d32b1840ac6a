package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-store/meridian/internal/platform/db"
	"github.com/meridian-store/meridian/internal/shared"
)

// movementTxAttempts bounds the retries of a movement transaction that loses
// a serialization race. Under repeatable read the loser of two concurrent
// writes on the same variant aborts with SQLSTATE 40001 even when both fit.
const movementTxAttempts = 3

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives movement counters.
type MetricsPort interface {
	MovementCommitted(movementType string)
	InsufficientStock()
	LedgerDivergence()
}

// AvailabilityInvalidator drops cached availability after a committed movement.
type AvailabilityInvalidator interface {
	InvalidateAvailability(ctx context.Context, variantID int64)
}

// Service is the reconciliation engine: the single write path to a variant's
// quantity. Every committed call pairs the counter update with exactly one
// ledger entry inside the same transaction.
type Service struct {
	repo       RepositoryPort
	audit      AuditPort
	metrics    MetricsPort
	invalidate AvailabilityInvalidator
	logger     *slog.Logger
}

// NewService builds Service. audit, metrics and invalidate may be nil.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, invalidate AvailabilityInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, invalidate: invalidate, logger: logger}
}

// StockIn posts an inbound movement.
func (s *Service) StockIn(ctx context.Context, input MovementInput) (MovementRecord, error) {
	input.Type = MovementIn
	return s.ApplyMovement(ctx, input)
}

// StockOut posts an outbound movement.
func (s *Service) StockOut(ctx context.Context, input MovementInput) (MovementRecord, error) {
	input.Type = MovementOut
	return s.ApplyMovement(ctx, input)
}

// StockAdjust sets the counter to input.Target, recording the difference.
func (s *Service) StockAdjust(ctx context.Context, input MovementInput) (MovementRecord, error) {
	input.Type = MovementAdjustment
	return s.ApplyMovement(ctx, input)
}

// Return posts a restocking movement, including saga compensation.
func (s *Service) Return(ctx context.Context, input MovementInput) (MovementRecord, error) {
	input.Type = MovementReturn
	return s.ApplyMovement(ctx, input)
}

// ApplyMovement validates, applies and records a single movement. Rejected
// calls mutate nothing and write no ledger entry.
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (MovementRecord, error) {
	if input.ProductID == 0 || input.VariantID == 0 {
		return MovementRecord{}, fmt.Errorf("%w: product and variant required", shared.ErrValidation)
	}

	var delta int64
	switch input.Type {
	case MovementIn, MovementReturn:
		if input.Magnitude <= 0 {
			return MovementRecord{}, ErrInvalidQuantity
		}
		delta = input.Magnitude
	case MovementOut, MovementTransfer:
		if input.Magnitude <= 0 {
			return MovementRecord{}, ErrInvalidQuantity
		}
		delta = -input.Magnitude
	case MovementAdjustment:
		if input.Target < 0 {
			return MovementRecord{}, ErrInvalidQuantity
		}
	default:
		return MovementRecord{}, fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, input.Type)
	}

	now := time.Now().UTC()
	var rec MovementRecord
	apply := func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var prev, resulting int64
			if input.Type == MovementAdjustment {
				state, err := tx.VariantForUpdate(ctx, input.ProductID, input.VariantID)
				if err != nil {
					return err
				}
				if state.Blocked {
					return ErrVariantBlocked
				}
				delta = input.Target - state.Quantity
				if delta != 0 {
					if err := tx.SetQuantity(ctx, input.ProductID, input.VariantID, input.Target); err != nil {
						return err
					}
				}
				prev = state.Quantity
				resulting = input.Target
			} else {
				result, err := tx.ApplyDelta(ctx, input.ProductID, input.VariantID, delta)
				if err != nil {
					return err
				}
				prev = result.Previous
				resulting = result.Resulting
			}

			rec = MovementRecord{
				ProductID:         input.ProductID,
				VariantID:         input.VariantID,
				WarehouseID:       input.WarehouseID,
				Type:              input.Type,
				Delta:             delta,
				PreviousQuantity:  prev,
				ResultingQuantity: resulting,
				ActorID:           input.ActorID,
				RefModule:         input.RefModule,
				RefID:             input.RefID,
				ReversalOf:        input.ReversalOf,
				Note:              input.Note,
				CreatedAt:         now,
			}
			id, err := tx.InsertMovement(ctx, rec)
			if err != nil {
				return err
			}
			rec.ID = id
			return nil
		})
	}

	err := apply()
	for attempt := 1; attempt < movementTxAttempts && db.IsSerializationFailure(err); attempt++ {
		err = apply()
	}
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) && s.metrics != nil {
			s.metrics.InsufficientStock()
		}
		return MovementRecord{}, err
	}

	if s.metrics != nil {
		s.metrics.MovementCommitted(string(rec.Type))
	}
	if s.invalidate != nil {
		s.invalidate.InvalidateAvailability(ctx, rec.VariantID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("stock:%s", rec.Type),
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d:%d", rec.ProductID, rec.VariantID),
			Meta: map[string]any{
				"delta":              rec.Delta,
				"previous_quantity":  rec.PreviousQuantity,
				"resulting_quantity": rec.ResultingQuantity,
				"ref_module":         rec.RefModule,
				"ref_id":             rec.RefID,
			},
		})
	}
	return rec, nil
}

// ListMovements returns ledger entries for a product, optionally restricted
// to one variant.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error) {
	if filter.ProductID == 0 {
		return nil, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}
