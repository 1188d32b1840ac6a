// Package catalog owns products and their sellable variants. Quantity on a
// variant is read-owned here; all writes go through the stock engine.
package catalog

import (
	"errors"
	"time"
)

// ProductStatus enumerates catalog lifecycle states.
type ProductStatus string

const (
	// ProductActive is the default state for sellable products.
	ProductActive ProductStatus = "active"
	// ProductInactive hides the product from the storefront.
	ProductInactive ProductStatus = "inactive"
	// ProductOutOfStock marks every variant depleted.
	ProductOutOfStock ProductStatus = "out_of_stock"
	// ProductDiscontinued is terminal.
	ProductDiscontinued ProductStatus = "discontinued"
)

// Product groups sellable variants under one SKU.
type Product struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	SKU         string        `json:"sku"`
	Description string        `json:"description,omitempty"`
	Category    string        `json:"category,omitempty"`
	Brand       string        `json:"brand,omitempty"`
	Status      ProductStatus `json:"status"`
	Variants    []Variant     `json:"variants,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Variant is one sellable size/color combination of a product.
type Variant struct {
	ID              int64     `json:"id"`
	ProductID       int64     `json:"product_id"`
	Size            string    `json:"size"`
	Color           string    `json:"color"`
	Price           float64   `json:"price"`
	SellingPrice    float64   `json:"selling_price"`
	CostPrice       float64   `json:"cost_price,omitempty"`
	Quantity        int64     `json:"quantity"`
	InitialQuantity int64     `json:"initial_quantity"`
	StockBlocked    bool      `json:"stock_blocked"`
	Barcode         string    `json:"barcode"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Availability is the read-model answer for storefront stock checks.
type Availability struct {
	ProductID int64  `json:"product_id"`
	VariantID int64  `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
	Blocked   bool   `json:"blocked"`
	Barcode   string `json:"barcode"`
}

// ErrProductNotFound indicates the product does not exist.
var ErrProductNotFound = errors.New("catalog: product not found")

// ErrVariantNotFound indicates the variant does not exist under the product.
var ErrVariantNotFound = errors.New("catalog: variant not found")

// ErrDuplicateVariant indicates two variants share a size/color pair.
var ErrDuplicateVariant = errors.New("catalog: duplicate size/color variant")
