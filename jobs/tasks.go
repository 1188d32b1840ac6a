package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBarcodeRender renders one barcode image through the render service.
	TaskBarcodeRender = "barcode:render"
	// TaskOrphanSweep restocks fulfillment movements whose order never landed.
	TaskOrphanSweep = "orders:orphan_sweep"
	// TaskLedgerVerify checks every variant counter against its ledger sum.
	TaskLedgerVerify = "stock:ledger_verify"
	// TaskIdempotencyCleanup expires old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// BarcodeRenderPayload names the code to render.
type BarcodeRenderPayload struct {
	Code string `json:"code"`
}

// NewBarcodeRenderTask constructs an Asynq task for one barcode image.
func NewBarcodeRenderTask(payload BarcodeRenderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBarcodeRender, data), nil
}

// NewOrphanSweepTask constructs the recovery sweep task.
func NewOrphanSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOrphanSweep, nil)
}

// NewLedgerVerifyTask constructs the reconciliation scan task.
func NewLedgerVerifyTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerVerify, nil)
}

// NewIdempotencyCleanupTask constructs the key retention task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
