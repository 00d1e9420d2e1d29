package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements PriceSource against Postgres.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a pricing repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// SupplierPriceCents looks up the supplier-specific price on record.
func (r *Repository) SupplierPriceCents(ctx context.Context, supplierID uuid.UUID, partNumber string) (int64, bool, error) {
	var cents int64
	err := r.db.QueryRow(ctx, `
		SELECT unit_price_cents
		FROM supplier_part_prices
		WHERE supplier_id = $1 AND part_number = $2
		ORDER BY updated_at DESC
		LIMIT 1`,
		supplierID, partNumber,
	).Scan(&cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query supplier price: %w", err)
	}
	return cents, true, nil
}

// OrgAveragePriceCents averages the organization's accepted quote prices for
// the part across all suppliers over the trailing 180 days. Zero and negative
// prices are excluded from the average.
func (r *Repository) OrgAveragePriceCents(ctx context.Context, orgID uuid.UUID, partNumber string) (int64, bool, error) {
	var cents *int64
	err := r.db.QueryRow(ctx, `
		SELECT CAST(AVG(unit_price_cents) AS BIGINT)
		FROM quote_item_history
		WHERE organization_id = $1
		  AND part_number = $2
		  AND unit_price_cents > 0
		  AND quoted_at > now() - INTERVAL '180 days'`,
		orgID, partNumber,
	).Scan(&cents)
	if err != nil {
		return 0, false, fmt.Errorf("query historical average: %w", err)
	}
	if cents == nil {
		return 0, false, nil
	}
	return *cents, true, nil
}

// CatalogPriceCents looks up the organization's generic catalog price.
func (r *Repository) CatalogPriceCents(ctx context.Context, orgID uuid.UUID, partNumber string) (int64, bool, error) {
	var cents *int64
	err := r.db.QueryRow(ctx, `
		SELECT unit_price_cents
		FROM catalog_parts
		WHERE organization_id = $1 AND part_number = $2`,
		orgID, partNumber,
	).Scan(&cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query catalog price: %w", err)
	}
	if cents == nil {
		return 0, false, nil
	}
	return *cents, true, nil
}
