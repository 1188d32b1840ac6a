package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-store/meridian/internal/shared"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateProduct inserts the product and all its variants in one transaction
// and fills in the generated ids and timestamps.
func (r *Repository) CreateProduct(ctx context.Context, p *Product) error {
	if r == nil {
		return errors.New("catalog repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `INSERT INTO products (name, slug, sku, description, category, brand, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		p.Name, p.Slug, p.SKU, p.Description, p.Category, p.Brand, string(p.Status)).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return translateUnique(err)
	}
	for i := range p.Variants {
		v := &p.Variants[i]
		v.ProductID = p.ID
		err = tx.QueryRow(ctx, `INSERT INTO product_variants
(product_id, size, color, price, selling_price, cost_price, quantity, initial_quantity, stock_blocked, barcode, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7,FALSE,$8,NOW(),NOW())
RETURNING id, created_at, updated_at`,
			p.ID, v.Size, v.Color, v.Price, v.SellingPrice, v.CostPrice, v.InitialQuantity, v.Barcode).
			Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
		if err != nil {
			return translateUnique(err)
		}
		v.Quantity = v.InitialQuantity
	}
	return tx.Commit(ctx)
}

// GetProduct loads one product with its variants.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, name, slug, sku, COALESCE(description,''), COALESCE(category,''), COALESCE(brand,''), status, created_at, updated_at
FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Slug, &p.SKU, &p.Description, &p.Category, &p.Brand, &status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	p.Status = ProductStatus(status)
	variants, err := r.variantsOf(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p.Variants = variants
	return p, nil
}

// ListProducts returns a page of products without variants.
func (r *Repository) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug, sku, COALESCE(description,''), COALESCE(category,''), COALESCE(brand,''), status, created_at, updated_at
FROM products ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.SKU, &p.Description, &p.Category, &p.Brand, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Status = ProductStatus(status)
		products = append(products, p)
	}
	return products, rows.Err()
}

// CountProducts returns the total product count for pagination.
func (r *Repository) CountProducts(ctx context.Context) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	return total, err
}

// GetVariant loads one variant scoped to its product.
func (r *Repository) GetVariant(ctx context.Context, productID, variantID int64) (Variant, error) {
	var v Variant
	err := r.pool.QueryRow(ctx, `SELECT id, product_id, size, color, price, selling_price, cost_price, quantity, initial_quantity, stock_blocked, barcode, created_at, updated_at
FROM product_variants WHERE product_id = $1 AND id = $2`, productID, variantID).
		Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.Price, &v.SellingPrice, &v.CostPrice,
			&v.Quantity, &v.InitialQuantity, &v.StockBlocked, &v.Barcode, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, ErrVariantNotFound
	}
	if err != nil {
		return Variant{}, err
	}
	return v, nil
}

// FindVariantByOption resolves a size/color pair to the variant row.
func (r *Repository) FindVariantByOption(ctx context.Context, productID int64, size, color string) (Variant, error) {
	var v Variant
	err := r.pool.QueryRow(ctx, `SELECT id, product_id, size, color, price, selling_price, cost_price, quantity, initial_quantity, stock_blocked, barcode, created_at, updated_at
FROM product_variants WHERE product_id = $1 AND LOWER(size) = LOWER($2) AND LOWER(color) = LOWER($3)`,
		productID, size, color).
		Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.Price, &v.SellingPrice, &v.CostPrice,
			&v.Quantity, &v.InitialQuantity, &v.StockBlocked, &v.Barcode, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, ErrVariantNotFound
	}
	if err != nil {
		return Variant{}, err
	}
	return v, nil
}

func (r *Repository) variantsOf(ctx context.Context, productID int64) ([]Variant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, size, color, price, selling_price, cost_price, quantity, initial_quantity, stock_blocked, barcode, created_at, updated_at
FROM product_variants WHERE product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	variants := []Variant{}
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.Price, &v.SellingPrice, &v.CostPrice,
			&v.Quantity, &v.InitialQuantity, &v.StockBlocked, &v.Barcode, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "product_variants_product_id_size_color_key" {
			return ErrDuplicateVariant
		}
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, shared.ErrConflict)
	}
	return err
}
