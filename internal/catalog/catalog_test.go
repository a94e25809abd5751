package catalog

import (
	"errors"
	"testing"

	"vsrepair/booking-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData() Data {
	return Data{
		Appliances: []models.Appliance{
			{ID: 2, Name: "Refrigerator", BrandIDs: []int64{1, 2, 1}},
			{ID: 1, Name: "AC", BrandIDs: []int64{1}},
			{ID: 3, Name: "Other"},
		},
		Brands: []models.Brand{
			{ID: 2, Name: "Samsung"},
			{ID: 1, Name: "LG"},
		},
		Products: []models.Product{
			{ID: 10, Name: "Compressor", BrandID: 1, Price: 4200, ApplianceID: 1},
			{ID: 11, Name: "Capacitor", BrandID: 1, Price: 450, ApplianceID: 1},
			{ID: 12, Name: "Gasket", BrandID: 2, Price: 500, ApplianceID: 2},
			{ID: 13, Name: "Remote", BrandID: 2, Price: 300, ApplianceID: 1},
		},
	}
}

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(testData())
	require.NoError(t, err)
	return c
}

func TestNewRejectsInconsistentData(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Data)
	}{
		{"duplicate brand", func(d *Data) { d.Brands = append(d.Brands, models.Brand{ID: 1, Name: "Dup"}) }},
		{"duplicate appliance", func(d *Data) { d.Appliances = append(d.Appliances, models.Appliance{ID: 1, Name: "Dup"}) }},
		{"duplicate product", func(d *Data) { d.Products = append(d.Products, d.Products[0]) }},
		{"appliance unknown brand", func(d *Data) { d.Appliances[0].BrandIDs = []int64{99} }},
		{"product unknown appliance", func(d *Data) { d.Products[0].ApplianceID = 99 }},
		{"product unknown brand", func(d *Data) { d.Products[0].BrandID = 99 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := testData()
			tc.mutate(&data)
			_, err := New(data)
			if !errors.Is(err, ErrInconsistent) {
				t.Fatalf("expected ErrInconsistent, got %v", err)
			}
		})
	}
}

func TestListsAreOrderedByID(t *testing.T) {
	c := mustCatalog(t)

	appliances := c.Appliances()
	require.Len(t, appliances, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{appliances[0].ID, appliances[1].ID, appliances[2].ID})
	assert.Equal(t, []int64{1, 2}, appliances[1].BrandIDs)

	brands := c.Brands()
	assert.Equal(t, []models.Brand{{ID: 1, Name: "LG"}, {ID: 2, Name: "Samsung"}}, brands)
}

func TestBrandsForAppliance(t *testing.T) {
	c := mustCatalog(t)

	brands, ok := c.BrandsForAppliance(2)
	require.True(t, ok)
	assert.Equal(t, []models.Brand{{ID: 1, Name: "LG"}, {ID: 2, Name: "Samsung"}}, brands)

	brands, ok = c.BrandsForAppliance(3)
	require.True(t, ok)
	assert.Empty(t, brands)

	_, ok = c.BrandsForAppliance(42)
	assert.False(t, ok)
}

func TestProductsByIDs(t *testing.T) {
	c := mustCatalog(t)

	products := c.ProductsByIDs([]int64{12, 99, 10, 12})
	require.Len(t, products, 2)
	assert.Equal(t, int64(12), products[0].ID)
	assert.Equal(t, int64(10), products[1].ID)

	assert.Empty(t, c.ProductsByIDs(nil))
}

func TestSearchProducts(t *testing.T) {
	c := mustCatalog(t)
	maxPrice := 500.0

	all, count := c.SearchProducts(SearchFilter{})
	assert.Equal(t, 4, count)
	assert.Len(t, all, 4)

	filtered, count := c.SearchProducts(SearchFilter{ApplianceIDs: []int64{1}, MaxPrice: &maxPrice})
	require.Equal(t, 2, count)
	for _, product := range filtered {
		assert.Equal(t, int64(1), product.ApplianceID)
		assert.LessOrEqual(t, product.Price, maxPrice)
	}

	byBrand, count := c.SearchProducts(SearchFilter{BrandIDs: []int64{2}})
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(12), byBrand[0].ID)
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	c := mustCatalog(t)
	appliances := c.Appliances()
	appliances[1].BrandIDs[0] = 99

	brands, ok := c.BrandsForAppliance(2)
	require.True(t, ok)
	assert.Equal(t, int64(1), brands[0].ID)
}
