package stock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-store/meridian/internal/shared"
)

// VerifyLedger scans every variant and compares its counter against
// initial_quantity plus the sum of its ledger deltas. Each divergent variant
// is blocked for writes and reported; nothing is corrected here.
func (s *Service) VerifyLedger(ctx context.Context) ([]Divergence, error) {
	sums, err := s.repo.LedgerChecksums(ctx)
	if err != nil {
		return nil, err
	}
	var diverged []Divergence
	for _, c := range sums {
		expected := c.InitialQuantity + c.LedgerSum
		if c.Quantity == expected {
			continue
		}
		d := Divergence{ProductID: c.ProductID, VariantID: c.VariantID, Expected: expected, Actual: c.Quantity}
		diverged = append(diverged, d)
		if s.metrics != nil {
			s.metrics.LedgerDivergence()
		}
		s.logger.Error("ledger divergence detected",
			slog.Int64("product_id", c.ProductID),
			slog.Int64("variant_id", c.VariantID),
			slog.Int64("expected", expected),
			slog.Int64("actual", c.Quantity))
		if c.Blocked {
			continue
		}
		if err := s.repo.BlockVariant(ctx, c.ProductID, c.VariantID); err != nil {
			return diverged, fmt.Errorf("block variant %d/%d: %w", c.ProductID, c.VariantID, err)
		}
	}
	return diverged, nil
}

// Repair restores a blocked variant's counter to the ledger-derived value and
// unblocks it. The counter was the corrupted side, so the fix rewrites the
// counter without a ledger entry; an audit record keeps the operator trail.
func (s *Service) Repair(ctx context.Context, productID, variantID, actorID int64) (int64, error) {
	if productID == 0 || variantID == 0 {
		return 0, fmt.Errorf("%w: product and variant required", shared.ErrValidation)
	}
	sums, err := s.repo.LedgerChecksums(ctx)
	if err != nil {
		return 0, err
	}
	for _, c := range sums {
		if c.ProductID != productID || c.VariantID != variantID {
			continue
		}
		if !c.Blocked {
			return 0, ErrNotBlocked
		}
		expected := c.InitialQuantity + c.LedgerSum
		if err := s.repo.RepairVariant(ctx, productID, variantID, expected); err != nil {
			return 0, err
		}
		s.logger.Info("variant repaired",
			slog.Int64("product_id", productID),
			slog.Int64("variant_id", variantID),
			slog.Int64("quantity", expected))
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				ActorID:  actorID,
				Action:   "stock:repair",
				Entity:   "product_variant",
				EntityID: fmt.Sprintf("%d:%d", productID, variantID),
				Meta: map[string]any{
					"restored_quantity": expected,
					"previous_counter":  c.Quantity,
				},
			})
		}
		return expected, nil
	}
	return 0, ErrVariantNotFound
}
