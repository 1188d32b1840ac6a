package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-store/meridian/internal/barcode"
	"github.com/meridian-store/meridian/internal/orders"
	"github.com/meridian-store/meridian/internal/shared"
	"github.com/meridian-store/meridian/internal/stock"
)

// Deps collects the services the job handlers drive.
type Deps struct {
	Stock         *stock.Service
	Orders        *orders.Service
	Renderer      *barcode.Renderer
	Idempotency   *shared.IdempotencyStore
	BarcodeDir    string
	RecoveryGrace time.Duration
	KeyRetention  time.Duration
	Logger        *slog.Logger
}

// HandleBarcodeRender fetches the PNG from the render service and writes it
// under BarcodeDir as <code>.png.
func (d Deps) HandleBarcodeRender(ctx context.Context, t *asynq.Task) error {
	var payload BarcodeRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Code == "" {
		return asynq.SkipRetry
	}
	if d.Renderer == nil {
		d.Logger.Warn("barcode renderer not configured", slog.String("code", payload.Code))
		return nil
	}
	img, err := d.Renderer.Render(ctx, payload.Code)
	if err != nil {
		return fmt.Errorf("render %s: %w", payload.Code, err)
	}
	if err := os.MkdirAll(d.BarcodeDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d.BarcodeDir, payload.Code+".png")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return err
	}
	d.Logger.Info("barcode rendered", slog.String("code", payload.Code), slog.String("path", path))
	return nil
}

// HandleOrphanSweep runs the orphaned-fulfillment recovery.
func (d Deps) HandleOrphanSweep(ctx context.Context, t *asynq.Task) error {
	recovered, err := d.Orders.RecoverOrphans(ctx, d.RecoveryGrace)
	if err != nil {
		return err
	}
	if recovered > 0 {
		d.Logger.Info("orphan sweep done", slog.Int("recovered", recovered))
	}
	return nil
}

// HandleLedgerVerify runs the counter-vs-ledger scan. Divergent variants are
// blocked by the scan itself; the job only reports.
func (d Deps) HandleLedgerVerify(ctx context.Context, t *asynq.Task) error {
	diverged, err := d.Stock.VerifyLedger(ctx)
	if err != nil {
		return err
	}
	if len(diverged) > 0 {
		d.Logger.Warn("ledger verify found divergence", slog.Int("variants", len(diverged)))
	}
	return nil
}

// HandleIdempotencyCleanup expires keys past the retention window.
func (d Deps) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	retention := d.KeyRetention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return d.Idempotency.Cleanup(ctx, retention)
}
