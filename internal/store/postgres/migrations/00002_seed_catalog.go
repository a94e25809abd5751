package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"vsrepair/booking-service/internal/catalog"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upSeedCatalog, downSeedCatalog)
}

func upSeedCatalog(ctx context.Context, tx *sql.Tx) error {
	data, err := catalog.SeedData()
	if err != nil {
		return fmt.Errorf("reading catalog seed: %w", err)
	}
	// refuse to write a catalog that would not load
	if _, err := catalog.New(data); err != nil {
		return fmt.Errorf("checking catalog seed: %w", err)
	}

	for _, brand := range data.Brands {
		if _, err := tx.ExecContext(ctx, `INSERT INTO brands (id, name) VALUES ($1, $2)`, brand.ID, brand.Name); err != nil {
			return fmt.Errorf("inserting brand %d: %w", brand.ID, err)
		}
	}
	for _, appliance := range data.Appliances {
		if _, err := tx.ExecContext(ctx, `INSERT INTO appliances (id, name) VALUES ($1, $2)`, appliance.ID, appliance.Name); err != nil {
			return fmt.Errorf("inserting appliance %d: %w", appliance.ID, err)
		}
		for _, brandID := range appliance.BrandIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO appliance_brands (appliance_id, brand_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, appliance.ID, brandID); err != nil {
				return fmt.Errorf("linking appliance %d to brand %d: %w", appliance.ID, brandID, err)
			}
		}
	}
	for _, product := range data.Products {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, brand_id, price, appliance_id) VALUES ($1, $2, $3, $4, $5)
		`, product.ID, product.Name, product.BrandID, product.Price, product.ApplianceID); err != nil {
			return fmt.Errorf("inserting product %d: %w", product.ID, err)
		}
	}
	return nil
}

func downSeedCatalog(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"products", "appliance_brands", "appliances", "brands"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}
