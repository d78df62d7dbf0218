package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductLineStatus is the admin review state of a product line
type ProductLineStatus string

const (
	LinePending  ProductLineStatus = "pending"
	LineApproved ProductLineStatus = "approved"
	LineRejected ProductLineStatus = "rejected"
)

// ProductLine is a registered batch a farmer sells products under
type ProductLine struct {
	ID                  string            `json:"id" db:"id"`
	Name                string            `json:"name" db:"name"`
	FarmerID            string            `json:"farmer" db:"farmer_id"`
	Location            string            `json:"location,omitempty" db:"location"`
	CultivationProcess  string            `json:"cultivationProcess,omitempty" db:"cultivation_process"`
	PackagingUnit       string            `json:"packagingUnit,omitempty" db:"packaging_unit"`
	Certifications      string            `json:"certifications,omitempty" db:"certifications"`
	HarvestDate         *time.Time        `json:"harvestDate,omitempty" db:"harvest_date"`
	BatchID             string            `json:"batchId" db:"batch_id"`
	TransportationRoute string            `json:"transportationRoute,omitempty" db:"transportation_route"`
	Description         string            `json:"description,omitempty" db:"description"`
	Image               string            `json:"image,omitempty" db:"image"`
	QRCode              string            `json:"qrCode,omitempty" db:"qr_code"`
	Status              ProductLineStatus `json:"status" db:"status"`
	CreatedAt           time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time         `json:"updatedAt" db:"updated_at"`
}

// Product is a sellable stock-keeping record. Quantity is the available stock.
type Product struct {
	ID            string          `json:"id" db:"id"`
	ProductLineID string          `json:"productLine" db:"product_line_id"`
	FarmerID      string          `json:"farmer" db:"farmer_id"`
	Name          string          `json:"name" db:"name"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Quantity      int             `json:"quantity" db:"quantity"`
	Unit          string          `json:"unit" db:"unit"`
	Image         string          `json:"image,omitempty" db:"image"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// ProductFilter narrows product listings. Empty fields match everything.
type ProductFilter struct {
	Keyword       string
	FarmerID      string
	ProductLineID string
	// ApprovedOnly hides products whose line is not approved, as the shop does
	ApprovedOnly bool
}

// CreateProductLineRequest represents a request to register a product line
type CreateProductLineRequest struct {
	Name                string     `json:"name"`
	Farmer              string     `json:"farmer"`
	Location            string     `json:"location"`
	CultivationProcess  string     `json:"cultivationProcess"`
	PackagingUnit       string     `json:"packagingUnit"`
	Certifications      string     `json:"certifications"`
	HarvestDate         *time.Time `json:"harvestDate"`
	BatchID             string     `json:"batchId"`
	TransportationRoute string     `json:"transportationRoute"`
	Description         string     `json:"description"`
	Image               string     `json:"image"`
}

// CreateProductRequest represents a request to add a product to an approved line
type CreateProductRequest struct {
	ProductLine string          `json:"productLine"`
	Farmer      string          `json:"farmer"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Unit        string          `json:"unit"`
	Image       string          `json:"image"`
}

// ProductLineDetail is a product line together with the products sold under it
type ProductLineDetail struct {
	ProductLine *ProductLine `json:"productLine"`
	Products    []Product    `json:"products"`
}
