package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/catalog_api/internal/models"
)

const productColumns = `id, name, category, sub_category, price, mrp, image, gallery, stock, colors, specs, description, brand, age_range, tags, is_featured, is_new, created_at, updated_at`

// ProductRepository handles data access for remote products and their tombstones.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ProductFilter holds filters for product queries. A zero Limit returns every
// matching row.
type ProductFilter struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

// List returns remote products in creation order together with the total
// number of matching rows.
func (r *ProductRepository) List(ctx context.Context, filter ProductFilter) ([]models.Product, int, error) {
	where := `WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, filter.Category)
		argIdx++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR id ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(1) FROM products `+where, args...); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + productColumns + ` FROM products ` + where + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		if filter.Page <= 0 {
			filter.Page = 1
		}
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	}

	products := []models.Product{}
	if err := r.db.SelectContext(ctx, &products, q, args...); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// ListDeletedIDs returns every tombstoned product id.
func (r *ProductRepository) ListDeletedIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM deleted_products ORDER BY deleted_at, id`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetByID returns a single remote product. It returns sql.ErrNoRows when the
// product does not exist in the remote store.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	var p models.Product
	if err := r.db.GetContext(ctx, &p, q, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a product and clears any tombstone for its id.
func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM deleted_products WHERE id = $1`, p.ID); err != nil {
		return err
	}

	const q = `
        INSERT INTO products (id, name, category, sub_category, price, mrp, image, gallery, stock,
            colors, specs, description, brand, age_range, tags, is_featured, is_new)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        RETURNING created_at, updated_at`
	if err := tx.QueryRowxContext(ctx, q,
		p.ID, p.Name, p.Category, p.SubCategory, p.Price, p.MRP, p.Image, p.Gallery, p.Stock,
		p.Colors, p.Specs, p.Description, p.Brand, p.AgeRange, p.Tags, p.IsFeatured, p.IsNew,
	).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

// Update replaces every mutable field of a remote product. It returns
// sql.ErrNoRows when the product does not exist.
func (r *ProductRepository) Update(ctx context.Context, p *models.Product) error {
	const q = `
        UPDATE products
        SET name = $2, category = $3, sub_category = $4, price = $5, mrp = $6, image = $7,
            gallery = $8, stock = $9, colors = $10, specs = $11, description = $12, brand = $13,
            age_range = $14, tags = $15, is_featured = $16, is_new = $17, updated_at = NOW()
        WHERE id = $1
        RETURNING created_at, updated_at`
	return r.db.QueryRowxContext(ctx, q,
		p.ID, p.Name, p.Category, p.SubCategory, p.Price, p.MRP, p.Image, p.Gallery, p.Stock,
		p.Colors, p.Specs, p.Description, p.Brand, p.AgeRange, p.Tags, p.IsFeatured, p.IsNew,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// Delete removes the remote row (if any) and records a tombstone in one
// transaction. The tombstone also hides a baseline product with the same id.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return err
	}
	const q = `
        INSERT INTO deleted_products (id, deleted_at) VALUES ($1, NOW())
        ON CONFLICT (id) DO UPDATE SET deleted_at = EXCLUDED.deleted_at`
	if _, err := tx.ExecContext(ctx, q, id); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendImages adds urls to a product. When the product has no primary image
// the first url becomes the primary image and the rest go to the gallery. It
// reports whether the product exists.
func (r *ProductRepository) AppendImages(ctx context.Context, id string, urls []string) (bool, error) {
	if len(urls) == 0 {
		return false, nil
	}
	all, err := json.Marshal(urls)
	if err != nil {
		return false, err
	}
	rest, err := json.Marshal(urls[1:])
	if err != nil {
		return false, err
	}

	const q = `
        UPDATE products
        SET gallery = gallery || (CASE WHEN image = '' THEN $4 ELSE $2 END)::jsonb,
            image = CASE WHEN image = '' THEN $3 ELSE image END,
            updated_at = NOW()
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, string(all), urls[0], string(rest))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Exists reports whether a remote row with id exists.
func (r *ProductRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return exists, err
}
