package products

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketgrid/marketgrid-backend/internal/tenancy"
	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
)

func newProductsDB(t *testing.T) (context.Context, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{
		`CREATE TABLE products (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			sku TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT,
			price_cents INTEGER NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE product_variants (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			price_cents INTEGER,
			stock_qty INTEGER NOT NULL DEFAULT 0,
			backorder_allowed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	ctx := tenancy.WithTenant(context.Background(), &tenancy.Tenant{DB: conn})
	return ctx, conn
}

func seedProduct(t *testing.T, ctx context.Context, repo *Repository, stock int, backorder bool) *models.Product {
	t.Helper()
	product := &models.Product{
		VendorID:   uuid.New(),
		SKU:        "TSHIRT-001",
		Title:      "Logo Tee",
		PriceCents: 2500,
		Currency:   "USD",
		IsActive:   true,
		Variants: []models.ProductVariant{
			{SKU: "TSHIRT-001-M", Name: "Medium", StockQty: stock, BackorderAllowed: backorder},
		},
	}
	require.NoError(t, repo.Create(ctx, product))
	return product
}

func TestCreateAndFindProduct(t *testing.T) {
	t.Parallel()
	ctx, _ := newProductsDB(t)
	repo := NewRepository()

	created := seedProduct(t, ctx, repo, 10, false)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.NotEqual(t, uuid.Nil, created.Variants[0].ID)

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "TSHIRT-001", found.SKU)
	assert.Len(t, found.Variants, 1)
}

func TestFindVariantReturnsParentProduct(t *testing.T) {
	t.Parallel()
	ctx, _ := newProductsDB(t)
	repo := NewRepository()
	created := seedProduct(t, ctx, repo, 5, false)

	variant, parent, err := repo.FindVariant(ctx, created.Variants[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "TSHIRT-001-M", variant.SKU)
	assert.Equal(t, created.ID, parent.ID)
	assert.Equal(t, int64(2500), variant.EffectivePriceCents(*parent))
}

func TestDecrementStockHappyPath(t *testing.T) {
	t.Parallel()
	ctx, _ := newProductsDB(t)
	repo := NewRepository()
	created := seedProduct(t, ctx, repo, 3, false)
	variantID := created.Variants[0].ID

	ok, err := repo.DecrementStock(ctx, variantID, 2)
	require.NoError(t, err)
	require.True(t, ok)

	remaining, err := repo.StockRemaining(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestDecrementStockRejectsInsufficient(t *testing.T) {
	t.Parallel()
	ctx, _ := newProductsDB(t)
	repo := NewRepository()
	created := seedProduct(t, ctx, repo, 1, false)
	variantID := created.Variants[0].ID

	ok, err := repo.DecrementStock(ctx, variantID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := repo.StockRemaining(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining, "failed decrement must not touch stock")
}

func TestDecrementStockBackorderGoesNegative(t *testing.T) {
	t.Parallel()
	ctx, _ := newProductsDB(t)
	repo := NewRepository()
	created := seedProduct(t, ctx, repo, 1, true)
	variantID := created.Variants[0].ID

	ok, err := repo.DecrementStock(ctx, variantID, 3)
	require.NoError(t, err)
	require.True(t, ok, "backorderable variant should accept oversized decrement")

	remaining, err := repo.StockRemaining(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, -2, remaining)
}

func TestDecrementStockSkipsDeletedVariant(t *testing.T) {
	t.Parallel()
	ctx, conn := newProductsDB(t)
	repo := NewRepository()
	created := seedProduct(t, ctx, repo, 10, false)
	variantID := created.Variants[0].ID

	require.NoError(t, conn.Exec(`UPDATE product_variants SET deleted_at = CURRENT_TIMESTAMP WHERE id = ?`, variantID).Error)

	ok, err := repo.DecrementStock(ctx, variantID, 1)
	require.NoError(t, err)
	assert.False(t, ok, "deleted variant must not decrement")
}

func TestRestoreStock(t *testing.T) {
	t.Parallel()
	ctx, _ := newProductsDB(t)
	repo := NewRepository()
	created := seedProduct(t, ctx, repo, 5, false)
	variantID := created.Variants[0].ID

	ok, err := repo.DecrementStock(ctx, variantID, 4)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.RestoreStock(ctx, variantID, 4))

	remaining, err := repo.StockRemaining(ctx, variantID)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestListActiveSkipsInactive(t *testing.T) {
	t.Parallel()
	ctx, conn := newProductsDB(t)
	repo := NewRepository()
	created := seedProduct(t, ctx, repo, 5, false)

	inactive := &models.Product{
		VendorID:   created.VendorID,
		SKU:        "TSHIRT-002",
		Title:      "Retired Tee",
		PriceCents: 1500,
		Currency:   "USD",
		IsActive:   true,
	}
	require.NoError(t, repo.Create(ctx, inactive))
	require.NoError(t, conn.Exec(`UPDATE products SET is_active = 0 WHERE id = ?`, inactive.ID).Error)

	rows, err := repo.ListActive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, created.ID, rows[0].ID)
}
