// Package catalog serves the static appliance, brand and product data.
// The index is built once and never mutated, so lookups need no locking.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"vsrepair/booking-service/internal/models"
)

var ErrInconsistent = errors.New("catalog is inconsistent")

// Data is the raw catalog as read from the seed or the database.
type Data struct {
	Appliances []models.Appliance `json:"appliances"`
	Brands     []models.Brand     `json:"brands"`
	Products   []models.Product   `json:"products"`
}

type Catalog struct {
	appliances []models.Appliance
	brands     []models.Brand
	products   []models.Product

	applianceByID map[int64]models.Appliance
	brandByID     map[int64]models.Brand
	productByID   map[int64]models.Product
}

// SearchFilter narrows SearchProducts. Empty sets and a nil MaxPrice do not filter.
type SearchFilter struct {
	ApplianceIDs []int64
	BrandIDs     []int64
	MaxPrice     *float64
}

// New indexes data after checking that ids are unique and every reference
// points at an existing record.
func New(data Data) (*Catalog, error) {
	c := &Catalog{
		applianceByID: make(map[int64]models.Appliance, len(data.Appliances)),
		brandByID:     make(map[int64]models.Brand, len(data.Brands)),
		productByID:   make(map[int64]models.Product, len(data.Products)),
	}

	for _, brand := range data.Brands {
		if _, ok := c.brandByID[brand.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate brand id %d", ErrInconsistent, brand.ID)
		}
		c.brandByID[brand.ID] = brand
		c.brands = append(c.brands, brand)
	}

	for _, appliance := range data.Appliances {
		if _, ok := c.applianceByID[appliance.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate appliance id %d", ErrInconsistent, appliance.ID)
		}
		brandIDs := make([]int64, 0, len(appliance.BrandIDs))
		seen := make(map[int64]struct{}, len(appliance.BrandIDs))
		for _, brandID := range appliance.BrandIDs {
			if _, ok := c.brandByID[brandID]; !ok {
				return nil, fmt.Errorf("%w: appliance %d references unknown brand %d", ErrInconsistent, appliance.ID, brandID)
			}
			if _, dup := seen[brandID]; dup {
				continue
			}
			seen[brandID] = struct{}{}
			brandIDs = append(brandIDs, brandID)
		}
		appliance.BrandIDs = brandIDs
		c.applianceByID[appliance.ID] = appliance
		c.appliances = append(c.appliances, appliance)
	}

	for _, product := range data.Products {
		if _, ok := c.productByID[product.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate product id %d", ErrInconsistent, product.ID)
		}
		if _, ok := c.applianceByID[product.ApplianceID]; !ok {
			return nil, fmt.Errorf("%w: product %d references unknown appliance %d", ErrInconsistent, product.ID, product.ApplianceID)
		}
		if _, ok := c.brandByID[product.BrandID]; !ok {
			return nil, fmt.Errorf("%w: product %d references unknown brand %d", ErrInconsistent, product.ID, product.BrandID)
		}
		c.productByID[product.ID] = product
		c.products = append(c.products, product)
	}

	sort.Slice(c.appliances, func(i, j int) bool { return c.appliances[i].ID < c.appliances[j].ID })
	sort.Slice(c.brands, func(i, j int) bool { return c.brands[i].ID < c.brands[j].ID })
	sort.Slice(c.products, func(i, j int) bool { return c.products[i].ID < c.products[j].ID })
	return c, nil
}

func (c *Catalog) Appliances() []models.Appliance {
	out := make([]models.Appliance, len(c.appliances))
	for i, appliance := range c.appliances {
		appliance.BrandIDs = append([]int64(nil), appliance.BrandIDs...)
		out[i] = appliance
	}
	return out
}

func (c *Catalog) Brands() []models.Brand {
	return append([]models.Brand(nil), c.brands...)
}

// BrandsForAppliance returns the brands serviced for an appliance. The bool
// is false when the appliance does not exist.
func (c *Catalog) BrandsForAppliance(applianceID int64) ([]models.Brand, bool) {
	appliance, ok := c.applianceByID[applianceID]
	if !ok {
		return nil, false
	}
	brands := make([]models.Brand, 0, len(appliance.BrandIDs))
	for _, brandID := range appliance.BrandIDs {
		brands = append(brands, c.brandByID[brandID])
	}
	return brands, true
}

// ProductsByIDs keeps the order of ids. Unknown ids are skipped and repeats collapse.
func (c *Catalog) ProductsByIDs(ids []int64) []models.Product {
	products := make([]models.Product, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if product, ok := c.productByID[id]; ok {
			products = append(products, product)
		}
	}
	return products
}

func (c *Catalog) SearchProducts(filter SearchFilter) ([]models.Product, int) {
	appliances := toSet(filter.ApplianceIDs)
	brands := toSet(filter.BrandIDs)

	products := make([]models.Product, 0, len(c.products))
	for _, product := range c.products {
		if len(appliances) > 0 {
			if _, ok := appliances[product.ApplianceID]; !ok {
				continue
			}
		}
		if len(brands) > 0 {
			if _, ok := brands[product.BrandID]; !ok {
				continue
			}
		}
		if filter.MaxPrice != nil && product.Price > *filter.MaxPrice {
			continue
		}
		products = append(products, product)
	}
	return products, len(products)
}

func toSet(ids []int64) map[int64]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
