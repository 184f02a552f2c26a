package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace-api/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type CartService struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewCartService(db *sql.DB, logger zerolog.Logger) *CartService {
	return &CartService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// GetCart returns the user's cart, creating an empty one on first access.
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// AddItem adds quantity of a product, merging with an existing line. A zero
// quantity means one unit.
func (s *CartService) AddItem(ctx context.Context, userID string, req *models.CartItemRequest) (*models.Cart, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM products WHERE id = ?", req.ProductID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("Product not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", req.ProductID).Msg("Error checking product")
		return nil, fmt.Errorf("database error: %w", err)
	}

	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)",
		cart.ID, req.ProductID, req.Quantity,
	)
	if isMySQLError(err, mysqlErrNoReferencedRow) {
		return nil, notFound("Product not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("cart_id", cart.ID).Msg("Error adding cart item")
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("product_id", req.ProductID).
		Int("quantity", req.Quantity).
		Msg("Item added to cart")

	if err := s.loadItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) UpdateItemQuantity(ctx context.Context, userID string, req *models.CartItemRequest) (*models.Cart, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	cart, err := s.findCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = ? WHERE cart_id = ? AND product_id = ?",
		req.Quantity, cart.ID, req.ProductID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("cart_id", cart.ID).Msg("Error updating cart item")
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return nil, notFound("Item not found in cart")
	}

	if err := s.loadItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem drops a product from the cart. Removing a product that is not in
// the cart is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*models.Cart, error) {
	cart, err := s.findCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?", cart.ID, productID)
	if err != nil {
		s.logger.Error().Err(err).Str("cart_id", cart.ID).Msg("Error removing cart item")
		return nil, fmt.Errorf("failed to remove cart item: %w", err)
	}

	if err := s.loadItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) ensureCart(ctx context.Context, userID string) (*models.Cart, error) {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT IGNORE INTO carts (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)",
		uuid.NewString(), userID, now, now,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Error initializing cart")
		return nil, fmt.Errorf("failed to initialize cart: %w", err)
	}

	cart, err := s.selectCart(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Error fetching cart")
		return nil, fmt.Errorf("database error: %w", err)
	}
	return cart, nil
}

func (s *CartService) findCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.selectCart(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("Cart not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Error fetching cart")
		return nil, fmt.Errorf("database error: %w", err)
	}
	return cart, nil
}

func (s *CartService) selectCart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?", userID,
	).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *CartService) loadItems(ctx context.Context, cart *models.Cart) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.product_id, ci.quantity, p.name, p.price, p.stock, p.images
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ?
		ORDER BY ci.id`, cart.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("cart_id", cart.ID).Msg("Error fetching cart items")
		return fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		var product models.CartProduct
		var images []byte
		if err := rows.Scan(&item.ProductID, &item.Quantity, &product.Name, &product.Price, &product.Stock, &images); err != nil {
			return fmt.Errorf("failed to scan cart item: %w", err)
		}
		if product.Images, err = decodeImages(images); err != nil {
			return err
		}
		product.ID = item.ProductID
		item.Product = &product
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating cart items: %w", err)
	}

	cart.Items = items
	return nil
}
