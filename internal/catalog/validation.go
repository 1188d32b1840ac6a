package catalog

import (
	"fmt"
	"strings"

	"github.com/meridian-store/meridian/internal/shared"
)

// CreateProductInput is the write model for new products.
type CreateProductInput struct {
	Name        string               `json:"name" validate:"required,min=2,max=200"`
	Description string               `json:"description" validate:"max=2000"`
	Category    string               `json:"category" validate:"max=100"`
	Brand       string               `json:"brand" validate:"max=100"`
	Variants    []CreateVariantInput `json:"variants" validate:"required,min=1,dive"`
}

// CreateVariantInput is the write model for one variant of a new product.
type CreateVariantInput struct {
	Size            string  `json:"size" validate:"required,max=50"`
	Color           string  `json:"color" validate:"required,max=50"`
	Price           float64 `json:"price" validate:"required,gt=0"`
	SellingPrice    float64 `json:"selling_price" validate:"required,gt=0"`
	CostPrice       float64 `json:"cost_price" validate:"gte=0"`
	InitialQuantity int64   `json:"initial_quantity" validate:"gte=0"`
}

// checkVariantOptions rejects duplicate size/color pairs before they reach the
// unique index, so the client gets a field-level message instead of a 23505.
func checkVariantOptions(variants []CreateVariantInput) error {
	seen := make(map[string]struct{}, len(variants))
	for i, v := range variants {
		key := strings.ToLower(v.Size) + "|" + strings.ToLower(v.Color)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: variant %d repeats %s/%s", shared.ErrValidation, i, v.Size, v.Color)
		}
		seen[key] = struct{}{}
	}
	return nil
}
