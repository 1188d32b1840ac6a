package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-store/meridian/internal/platform/httpx"
	"github.com/meridian-store/meridian/internal/shared"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/in", h.handleStockIn)
	r.Post("/out", h.handleStockOut)
	r.Post("/adjust", h.handleStockAdjust)
	r.Get("/movements", h.handleListMovements)
	r.Post("/variants/{productID}/{variantID}/repair", h.handleRepair)
}

type movementRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	VariantID   int64  `json:"variant_id" validate:"required,gt=0"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	WarehouseID int64  `json:"warehouse_id" validate:"omitempty,gt=0"`
	Note        string `json:"note" validate:"max=500"`
}

type adjustRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	VariantID   int64  `json:"variant_id" validate:"required,gt=0"`
	NewQuantity int64  `json:"new_quantity" validate:"gte=0"`
	Note        string `json:"note" validate:"max=500"`
}

func (h *Handler) handleStockIn(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.StockIn(r.Context(), MovementInput{
		ProductID:   req.ProductID,
		VariantID:   req.VariantID,
		WarehouseID: req.WarehouseID,
		Magnitude:   req.Quantity,
		ActorID:     shared.ActorFromContext(r.Context()),
		RefModule:   "STOCK",
		Note:        req.Note,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleStockOut(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.StockOut(r.Context(), MovementInput{
		ProductID:   req.ProductID,
		VariantID:   req.VariantID,
		WarehouseID: req.WarehouseID,
		Magnitude:   req.Quantity,
		ActorID:     shared.ActorFromContext(r.Context()),
		RefModule:   "STOCK",
		Note:        req.Note,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleStockAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.StockAdjust(r.Context(), MovementInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Target:    req.NewQuantity,
		ActorID:   shared.ActorFromContext(r.Context()),
		RefModule: "STOCK",
		Note:      req.Note,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	filter := MovementFilter{ProductID: productID}
	if v := q.Get("variant_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.VariantID = id
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	records, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements": records,
		"offset":    filter.Offset,
		"count":     len(records),
	})
}

func (h *Handler) handleRepair(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	variantID, err := strconv.ParseInt(chi.URLParam(r, "variantID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid variant id")
		return
	}
	quantity, err := h.service.Repair(r.Context(), productID, variantID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id": productID,
		"variant_id": variantID,
		"quantity":   quantity,
	})
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":     "Insufficient Stock",
			"status":    http.StatusConflict,
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
	case errors.Is(err, ErrVariantNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrVariantBlocked):
		httpx.Problem(w, http.StatusLocked, "Variant Blocked", err.Error())
	case errors.Is(err, ErrNotBlocked):
		httpx.Problem(w, http.StatusConflict, "Not Blocked", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("stock request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
