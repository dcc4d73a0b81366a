package store

import (
	"context"
	"database/sql"
	"fmt"

	"pos-edge-agent/internal/models"
)

// UpsertProduct writes a product snapshot. Last write wins per product id.
func (s *Store) UpsertProduct(ctx context.Context, product *models.CachedProduct) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cached_products (id, name, sku, barcode, rfid_tag, selling_price, current_price, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			sku = EXCLUDED.sku,
			barcode = EXCLUDED.barcode,
			rfid_tag = EXCLUDED.rfid_tag,
			selling_price = EXCLUDED.selling_price,
			current_price = EXCLUDED.current_price,
			cached_at = EXCLUDED.cached_at`,
		product.ID, product.Name, product.SKU, product.Barcode, product.RFIDTag,
		product.SellingPrice, product.CurrentPrice, product.CachedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// GetProduct retrieves a cached product by ID.
func (s *Store) GetProduct(ctx context.Context, id string) (*models.CachedProduct, error) {
	var product models.CachedProduct
	err := s.db.GetContext(ctx, &product,
		"SELECT * FROM cached_products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// SearchProducts performs a case-insensitive substring match across name,
// SKU, barcode and RFID tag.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]models.CachedProduct, error) {
	pattern := "%" + query + "%"
	var products []models.CachedProduct
	err := s.db.SelectContext(ctx, &products, `
		SELECT * FROM cached_products
		WHERE name ILIKE $1
		   OR sku ILIKE $1
		   OR barcode ILIKE $1
		   OR COALESCE(rfid_tag, '') ILIKE $1`,
		pattern)
	return products, err
}
