package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gender narrows which section of the store a product belongs to.
type Gender string

const (
	GenderMen    Gender = "men"
	GenderWomen  Gender = "women"
	GenderUnisex Gender = "unisex"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
)

// Product is a sellable item in the catalog. Stock is decremented by the
// order module and never goes negative.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	CategoryID  uuid.UUID       `json:"categoryId"`
	Gender      Gender          `json:"gender"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
	Stock       int             `json:"stock"`
	Featured    bool            `json:"featured"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Category groups products for browsing.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProductFilters enumerates the recognized catalog query filters. Limit and
// Offset shape the returned page only; the reported total ignores them.
type ProductFilters struct {
	Gender     Gender
	CategoryID string
	Featured   *bool
	Limit      int
	Offset     int
}

// ProductPage is one page of products plus the total match count across
// all pages.
type ProductPage struct {
	Data  []*Product `json:"data"`
	Total int        `json:"total"`
}
