package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-store/meridian/internal/barcode"
	"github.com/meridian-store/meridian/internal/shared"
)

type memoryCatalog struct {
	products map[int64]*Product
	nextID   int64
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{products: make(map[int64]*Product)}
}

func (m *memoryCatalog) CreateProduct(ctx context.Context, p *Product) error {
	m.nextID++
	p.ID = m.nextID
	for i := range p.Variants {
		m.nextID++
		p.Variants[i].ID = m.nextID
		p.Variants[i].ProductID = p.ID
		p.Variants[i].Quantity = p.Variants[i].InitialQuantity
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memoryCatalog) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return *p, nil
}

func (m *memoryCatalog) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	var out []Product
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memoryCatalog) CountProducts(ctx context.Context) (int, error) {
	return len(m.products), nil
}

func (m *memoryCatalog) GetVariant(ctx context.Context, productID, variantID int64) (Variant, error) {
	p, ok := m.products[productID]
	if !ok {
		return Variant{}, ErrVariantNotFound
	}
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v, nil
		}
	}
	return Variant{}, ErrVariantNotFound
}

func (m *memoryCatalog) FindVariantByOption(ctx context.Context, productID int64, size, color string) (Variant, error) {
	p, ok := m.products[productID]
	if !ok {
		return Variant{}, ErrVariantNotFound
	}
	for _, v := range p.Variants {
		if v.Size == size && v.Color == color {
			return v, nil
		}
	}
	return Variant{}, ErrVariantNotFound
}

type sequenceAllocator struct {
	n int
}

func (a *sequenceAllocator) Allocate(ctx context.Context, kind barcode.Kind) (string, error) {
	a.n++
	if kind == barcode.KindSKU {
		return fmt.Sprintf("PROD-%06d", a.n), nil
	}
	return fmt.Sprintf("%012d", a.n), nil
}

func TestCreateProductAllocatesCodes(t *testing.T) {
	repo := newMemoryCatalog()
	svc := NewService(repo, &sequenceAllocator{}, nil, nil, nil)

	p, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name: "Café Noir Hoodie",
		Variants: []CreateVariantInput{
			{Size: "M", Color: "black", Price: 30, SellingPrice: 25, InitialQuantity: 10},
			{Size: "L", Color: "black", Price: 30, SellingPrice: 25, InitialQuantity: 4},
		},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, "cafe-noir-hoodie", p.Slug)
	require.Regexp(t, `^PROD-`, p.SKU)
	require.Len(t, p.Variants, 2)
	require.NotEqual(t, p.Variants[0].Barcode, p.Variants[1].Barcode)
	require.Equal(t, int64(10), p.Variants[0].Quantity)
}

func TestCreateProductRejectsDuplicateOption(t *testing.T) {
	repo := newMemoryCatalog()
	svc := NewService(repo, &sequenceAllocator{}, nil, nil, nil)

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name: "Tee",
		Variants: []CreateVariantInput{
			{Size: "M", Color: "Red", Price: 10, SellingPrice: 9},
			{Size: "m", Color: "red", Price: 10, SellingPrice: 9},
		},
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.products)
}

func TestAvailabilityFallsBackToRepo(t *testing.T) {
	repo := newMemoryCatalog()
	svc := NewService(repo, &sequenceAllocator{}, nil, nil, nil)

	p, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name:     "Tee",
		Variants: []CreateVariantInput{{Size: "M", Color: "Red", Price: 10, SellingPrice: 9, InitialQuantity: 3}},
	}, 1)
	require.NoError(t, err)

	a, err := svc.Availability(context.Background(), p.ID, p.Variants[0].ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), a.Quantity)
	require.False(t, a.Blocked)

	_, err = svc.Availability(context.Background(), p.ID, 9999)
	require.ErrorIs(t, err, ErrVariantNotFound)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Café Noir":        "cafe-noir",
		"  Wide   Gaps  ":  "wide-gaps",
		"UPPER/lower 123!": "upper-lower-123",
	}
	for input, want := range cases {
		require.Equal(t, want, Slugify(input), input)
	}
}
