package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service defines catalog business logic.
type Service interface {
	CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	FindProducts(ctx context.Context, f ProductFilters) (*ProductPage, error)
	UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, req CreateCategoryRequest) (*Category, error)
	ListCategories(ctx context.Context) ([]*Category, error)
}

// CreateProductRequest holds the data for creating a product.
type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	CategoryID  string          `json:"categoryId"`
	Gender      Gender          `json:"gender"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
	Stock       int             `json:"stock"`
	Featured    bool            `json:"featured"`
}

// UpdateProductRequest carries a partial update; nil fields are untouched.
type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Images      *[]string        `json:"images"`
	CategoryID  *string          `json:"categoryId"`
	Gender      *Gender          `json:"gender"`
	Sizes       *[]string        `json:"sizes"`
	Colors      *[]string        `json:"colors"`
	Stock       *int             `json:"stock"`
	Featured    *bool            `json:"featured"`
}

// CreateCategoryRequest holds the data for creating a category.
type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

type service struct{ repo Repository }

func NewService(repo Repository) Service { return &service{repo: repo} }

func (s *service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("price must not be negative")
	}
	if req.Stock < 0 {
		return nil, fmt.Errorf("stock must not be negative")
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("invalid categoryId: %w", err)
	}

	gender := req.Gender
	if gender == "" {
		gender = GenderUnisex
	}

	p := &Product{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Images:      req.Images,
		CategoryID:  categoryID,
		Gender:      gender,
		Sizes:       req.Sizes,
		Colors:      req.Colors,
		Stock:       req.Stock,
		Featured:    req.Featured,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *service) FindProducts(ctx context.Context, f ProductFilters) (*ProductPage, error) {
	data, total, err := s.repo.FindProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []*Product{}
	}
	return &ProductPage{Data: data, Total: total}, nil
}

// UpdateProduct applies only the fields present in req. The write is a
// single partial UPDATE, so an update touching price or images cannot
// overwrite a stock value changed by a concurrent order.
func (s *service) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*Product, error) {
	if req.Price != nil && req.Price.IsNegative() {
		return nil, fmt.Errorf("price must not be negative")
	}
	if req.Stock != nil && *req.Stock < 0 {
		return nil, fmt.Errorf("stock must not be negative")
	}
	if req.CategoryID != nil {
		if _, err := uuid.Parse(*req.CategoryID); err != nil {
			return nil, fmt.Errorf("invalid categoryId: %w", err)
		}
	}
	return s.repo.UpdateProduct(ctx, id, req)
}

func (s *service) DeleteProduct(ctx context.Context, id string) error {
	return s.repo.DeleteProduct(ctx, id)
}

func (s *service) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*Category, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	c := &Category{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) ListCategories(ctx context.Context) ([]*Category, error) {
	return s.repo.ListCategories(ctx)
}
