package postgres

import (
	"context"
	"fmt"

	"vsrepair/booking-service/internal/catalog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// CatalogRepo reads the catalog tables written by the seed migration.
type CatalogRepo struct {
	db *sqlx.DB
}

func NewCatalogRepo(db *sqlx.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// NewCatalogRepoFromPool shares the pgx pool through database/sql.
func NewCatalogRepoFromPool(pool *pgxpool.Pool) *CatalogRepo {
	return NewCatalogRepo(sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"))
}

type applianceBrandRow struct {
	ApplianceID int64 `db:"appliance_id"`
	BrandID     int64 `db:"brand_id"`
}

func (r *CatalogRepo) Load(ctx context.Context) (catalog.Data, error) {
	var data catalog.Data

	if err := r.db.SelectContext(ctx, &data.Appliances, `SELECT id, name FROM appliances ORDER BY id`); err != nil {
		return catalog.Data{}, fmt.Errorf("loading appliances: %w", classify(err))
	}
	if err := r.db.SelectContext(ctx, &data.Brands, `SELECT id, name FROM brands ORDER BY id`); err != nil {
		return catalog.Data{}, fmt.Errorf("loading brands: %w", classify(err))
	}
	if err := r.db.SelectContext(ctx, &data.Products, `
		SELECT id, name, brand_id, price::float8 AS price, appliance_id
		FROM products
		ORDER BY id
	`); err != nil {
		return catalog.Data{}, fmt.Errorf("loading products: %w", classify(err))
	}

	var links []applianceBrandRow
	if err := r.db.SelectContext(ctx, &links, `
		SELECT appliance_id, brand_id
		FROM appliance_brands
		ORDER BY appliance_id, brand_id
	`); err != nil {
		return catalog.Data{}, fmt.Errorf("loading appliance brands: %w", classify(err))
	}

	index := make(map[int64]int, len(data.Appliances))
	for i := range data.Appliances {
		data.Appliances[i].BrandIDs = []int64{}
		index[data.Appliances[i].ID] = i
	}
	for _, link := range links {
		i, ok := index[link.ApplianceID]
		if !ok {
			continue
		}
		data.Appliances[i].BrandIDs = append(data.Appliances[i].BrandIDs, link.BrandID)
	}
	return data, nil
}

// LoadCatalog loads and indexes the catalog in one step.
func (r *CatalogRepo) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	data, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.New(data)
}

func (r *CatalogRepo) Close() error {
	return r.db.Close()
}
