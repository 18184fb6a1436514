package catalog

import "context"

// Repository defines the interface for catalog data storage.
type Repository interface {
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	FindProducts(ctx context.Context, f ProductFilters) ([]*Product, int, error)
	// UpdateProduct writes only the fields set in req, in one statement,
	// so concurrent writers to other columns are not overwritten. Returns
	// the updated row, or ErrProductNotFound.
	UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, c *Category) error
	ListCategories(ctx context.Context) ([]*Category, error)
}
