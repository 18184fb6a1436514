package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresRepo struct{ db *sql.DB }

func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

const productColumns = `id, name, description, price, images, category_id, gender, sizes, colors, stock, featured, created_at, updated_at`

func (r *postgresRepo) CreateProduct(ctx context.Context, p *Product) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products
		  (id, name, description, price, images, category_id, gender, sizes, colors, stock, featured)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Price,
		pq.Array(p.Images), p.CategoryID, p.Gender,
		pq.Array(p.Sizes), pq.Array(p.Colors), p.Stock, p.Featured,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return err
}

func scanProduct(scan func(...interface{}) error) (*Product, error) {
	p := &Product{}
	err := scan(&p.ID, &p.Name, &p.Description, &p.Price,
		pq.Array(&p.Images), &p.CategoryID, &p.Gender,
		pq.Array(&p.Sizes), pq.Array(&p.Colors), &p.Stock, &p.Featured,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) GetProduct(ctx context.Context, id string) (*Product, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrProductNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id=$1`, uid)
	p, err := scanProduct(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	return p, err
}

// FindProducts returns one page of products plus the total count of rows
// matching the non-pagination filters.
func (r *postgresRepo) FindProducts(ctx context.Context, f ProductFilters) ([]*Product, int, error) {
	where := ``
	args := []interface{}{}
	n := 1
	if f.Gender != "" {
		where += fmt.Sprintf(` AND gender=$%d`, n)
		args = append(args, f.Gender)
		n++
	}
	if f.CategoryID != "" {
		where += fmt.Sprintf(` AND category_id=$%d`, n)
		args = append(args, f.CategoryID)
		n++
	}
	if f.Featured != nil {
		where += fmt.Sprintf(` AND featured=$%d`, n)
		args = append(args, *f.Featured)
		n++
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE 1=1`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1` + where +
		` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, n)
		args = append(args, f.Limit)
		n++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, n)
		args = append(args, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *postgresRepo) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*Product, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrProductNotFound
	}

	set := []string{"updated_at=NOW()"}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if req.Name != nil {
		add("name", *req.Name)
	}
	if req.Description != nil {
		add("description", *req.Description)
	}
	if req.Price != nil {
		add("price", *req.Price)
	}
	if req.Images != nil {
		add("images", pq.Array(*req.Images))
	}
	if req.CategoryID != nil {
		add("category_id", *req.CategoryID)
	}
	if req.Gender != nil {
		add("gender", *req.Gender)
	}
	if req.Sizes != nil {
		add("sizes", pq.Array(*req.Sizes))
	}
	if req.Colors != nil {
		add("colors", pq.Array(*req.Colors))
	}
	if req.Stock != nil {
		add("stock", *req.Stock)
	}
	if req.Featured != nil {
		add("featured", *req.Featured)
	}

	args = append(args, uid)
	query := fmt.Sprintf(`UPDATE products SET %s WHERE id=$%d RETURNING %s`,
		strings.Join(set, ", "), len(args), productColumns)

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	return p, err
}

func (r *postgresRepo) DeleteProduct(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrProductNotFound
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id=$1`, uid)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *postgresRepo) CreateCategory(ctx context.Context, c *Category) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, description, image_url)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		c.ID, c.Name, c.Description, c.ImageURL,
	).Scan(&c.CreatedAt)
}

func (r *postgresRepo) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, image_url, created_at
		FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		c := &Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
