package models

type Appliance struct {
	ID       int64   `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	BrandIDs []int64 `json:"brand_ids" db:"-"`
}

type Brand struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Product struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	BrandID     int64   `json:"brand_id" db:"brand_id"`
	Price       float64 `json:"price" db:"price"`
	ApplianceID int64   `json:"appliance_id" db:"appliance_id"`
}
