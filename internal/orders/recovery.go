package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridian-store/meridian/internal/stock"
)

// RecoverOrphans restocks outbound movements whose placement never produced
// an order row, plus un-reversed movements of cancelled orders left behind by
// a cancellation that died mid-restock. The query already skips movements
// younger than grace and movements that have a reversal, so re-running the
// sweep is idempotent; the unique index on reversal_of catches the race
// between two sweeps.
func (s *Service) RecoverOrphans(ctx context.Context, grace time.Duration) (int, error) {
	orphans, err := s.repo.OrphanedFulfillments(ctx, grace)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, m := range orphans {
		_, err := s.stock.Return(ctx, stock.MovementInput{
			ProductID:  m.ProductID,
			VariantID:  m.VariantID,
			Magnitude:  -m.Delta,
			RefModule:  idempotencyModule,
			RefID:      m.RefID,
			ReversalOf: m.ID,
			Note:       "orphan recovery",
		})
		if err != nil {
			s.logger.Error("orphan recovery failed",
				slog.Int64("movement_id", m.ID),
				slog.String("ref", m.RefID),
				slog.Any("error", err))
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Info("orphaned fulfillments recovered", slog.Int("count", recovered))
		if s.metrics != nil {
			s.metrics.OrderCompensated()
		}
	}
	return recovered, nil
}
