package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace-api/internal/models"
	"marketplace-api/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

const productColumns = "id, name, description, price, category, stock, images, created_at, updated_at"

type ProductService struct {
	db     *sql.DB
	images storage.ImageStore
	logger zerolog.Logger
	now    func() time.Time
}

func NewProductService(db *sql.DB, images storage.ImageStore, logger zerolog.Logger) *ProductService {
	return &ProductService{
		db:     db,
		images: images,
		logger: logger,
		now:    time.Now,
	}
}

func (s *ProductService) CreateProduct(ctx context.Context, in *models.ProductInput, files []storage.File) (*models.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, validationError("price must not be negative")
	}

	images, err := s.saveImages(ctx, files)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	product := &models.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(2),
		Category:    strings.TrimSpace(in.Category),
		Stock:       in.Stock,
		Images:      images,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	imagesJSON, err := json.Marshal(product.Images)
	if err != nil {
		s.discardImages(ctx, images)
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO products (id, name, description, price, category, stock, images, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		product.ID, product.Name, product.Description, product.Price, product.Category, product.Stock, string(imagesJSON), product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		s.discardImages(ctx, images)
		s.logger.Error().Err(err).Msg("Error creating product")
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info().Str("product_id", product.ID).Int("images", len(images)).Msg("Product created")
	return product, nil
}

// NormalizeFilter applies the listing defaults: page and limit below 1 fall
// back to 1 and 10, and limit is capped.
func NormalizeFilter(f models.ProductFilter) models.ProductFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (s *ProductService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error) {
	filter = NormalizeFilter(filter)

	query := "SELECT " + productColumns + " FROM products"
	var conds []string
	var args []interface{}

	if filter.Search != "" {
		conds = append(conds, "LOWER(name) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Search))+"%")
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error listing products")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0, filter.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			s.logger.Error().Err(err).Msg("Error scanning product")
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("Product not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", id).Msg("Error fetching product")
		return nil, fmt.Errorf("database error: %w", err)
	}
	return p, nil
}

// UpdateProduct changes only the supplied fields. New files replace the image
// list; without files the existing images stay.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, upd *models.ProductUpdate, files []storage.File) (*models.Product, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		upd.Name = &trimmed
	}
	if err := validateStruct(upd); err != nil {
		return nil, err
	}
	if upd.Price != nil && upd.Price.IsNegative() {
		return nil, validationError("price must not be negative")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting product update transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	product, err := scanProduct(tx.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("Product not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", id).Msg("Error fetching product")
		return nil, fmt.Errorf("database error: %w", err)
	}

	if upd.Name != nil {
		product.Name = *upd.Name
	}
	if upd.Description != nil {
		product.Description = *upd.Description
	}
	if upd.Price != nil {
		product.Price = upd.Price.Round(2)
	}
	if upd.Category != nil {
		product.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.Stock != nil {
		product.Stock = *upd.Stock
	}

	var replaced []string
	var added []string
	if len(files) > 0 {
		added, err = s.saveImages(ctx, files)
		if err != nil {
			return nil, err
		}
		replaced = product.Images
		product.Images = added
	}
	product.UpdatedAt = s.now().UTC()

	imagesJSON, err := json.Marshal(product.Images)
	if err != nil {
		s.discardImages(ctx, added)
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET name = ?, description = ?, price = ?, category = ?, stock = ?, images = ?, updated_at = ? WHERE id = ?",
		product.Name, product.Description, product.Price, product.Category, product.Stock, string(imagesJSON), product.UpdatedAt, product.ID,
	)
	if err != nil {
		s.discardImages(ctx, added)
		s.logger.Error().Err(err).Str("product_id", id).Msg("Error updating product")
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.discardImages(ctx, added)
		s.logger.Error().Err(err).Str("product_id", id).Msg("Error committing product update")
		return nil, fmt.Errorf("failed to commit product update: %w", err)
	}

	s.discardImages(ctx, replaced)
	s.logger.Info().Str("product_id", id).Msg("Product updated")
	return product, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", id).Msg("Error deleting product")
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return notFound("Product not found")
	}

	s.discardImages(ctx, product.Images)
	s.logger.Info().Str("product_id", id).Msg("Product deleted")
	return nil
}

func (s *ProductService) saveImages(ctx context.Context, files []storage.File) ([]string, error) {
	images := make([]string, 0, len(files))
	for _, f := range files {
		ref, err := s.images.Save(ctx, f)
		if err != nil {
			s.discardImages(ctx, images)
			s.logger.Error().Err(err).Str("file", f.Name).Msg("Error storing product image")
			return nil, fmt.Errorf("failed to store image %s: %w", f.Name, err)
		}
		images = append(images, ref)
	}
	return images, nil
}

func (s *ProductService) discardImages(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.images.Delete(context.WithoutCancel(ctx), ref); err != nil {
			s.logger.Warn().Err(err).Str("image", ref).Msg("Failed to delete image (non-critical)")
		}
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var images []byte
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Stock, &images, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Images, err = decodeImages(images)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeImages(raw []byte) ([]string, error) {
	images := []string{}
	if len(raw) == 0 {
		return images, nil
	}
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil, fmt.Errorf("invalid images column: %w", err)
	}
	if images == nil {
		images = []string{}
	}
	return images, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
