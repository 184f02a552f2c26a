package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"marketplace-api/internal/events"
	"marketplace-api/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const orderColumns = "id, user_id, total_amount, status, payment_status, payment_intent_id, shipping_info, created_at, updated_at"

type OrderService struct {
	db        *sql.DB
	publisher events.Publisher
	logger    zerolog.Logger
	mu        sync.Map
	now       func() time.Time
}

func NewOrderService(db *sql.DB, publisher events.Publisher, logger zerolog.Logger) *OrderService {
	return &OrderService{
		db:        db,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *OrderService) getMutex(userID string) *sync.Mutex {
	mu, _ := s.mu.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

type cartLine struct {
	productID string
	name      string
	price     decimal.Decimal
	stock     int
	quantity  int
}

// PlaceOrder turns the user's cart into an order in one transaction: stock is
// checked and decremented, the order and its lines are written and the cart is
// emptied. Either all of it happens or none of it does.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, req *models.PlaceOrderRequest) (*models.Order, error) {
	mu := s.getMutex(userID)
	mu.Lock()
	defer mu.Unlock()

	shipping := req.ShippingInfo
	if shipping == nil {
		shipping = map[string]interface{}{}
	}
	shippingJSON, err := json.Marshal(shipping)
	if err != nil {
		return nil, validationError("shippingInfo must be a JSON object")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting order transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var cartID string
	err = tx.QueryRowContext(ctx, "SELECT id FROM carts WHERE user_id = ? FOR UPDATE", userID).Scan(&cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newError(ErrEmptyCart, "Cart is empty")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Error locking cart")
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}

	lines, err := s.lockCartLines(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, newError(ErrEmptyCart, "Cart is empty")
	}

	var short []string
	total := decimal.Zero
	for _, l := range lines {
		if l.stock < l.quantity {
			short = append(short, l.name)
			continue
		}
		total = total.Add(l.price.Mul(decimal.NewFromInt(int64(l.quantity))))
	}
	if len(short) > 0 {
		s.logger.Warn().Str("user_id", userID).Strs("products", short).Msg("Order rejected for insufficient stock")
		return nil, &StockError{Products: short}
	}

	for _, l := range lines {
		if err := s.decrementStockInTx(ctx, tx, l); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		Items:         make([]models.OrderItem, 0, len(lines)),
		TotalAmount:   total,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		ShippingInfo:  shipping,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO orders (id, user_id, total_amount, status, payment_status, shipping_info, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		order.ID, order.UserID, order.TotalAmount, string(order.Status), string(order.PaymentStatus), string(shippingJSON), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Error creating order")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, l := range lines {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, name, unit_price, quantity) VALUES (?, ?, ?, ?, ?)",
			order.ID, l.productID, l.name, l.price, l.quantity,
		)
		if err != nil {
			s.logger.Error().Err(err).Str("order_id", order.ID).Msg("Error creating order item")
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID: l.productID,
			Name:      l.name,
			UnitPrice: l.price,
			Quantity:  l.quantity,
		})
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = ?", cartID); err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("Error clearing cart")
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("Error committing order")
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	s.logger.Info().
		Str("order_id", order.ID).
		Str("user_id", userID).
		Str("total_amount", order.TotalAmount.StringFixed(2)).
		Int("items", len(order.Items)).
		Msg("Order placed")

	s.publish(ctx, events.OrderEvent{
		Type:          events.TypeOrderPlaced,
		OrderID:       order.ID,
		UserID:        userID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalAmount:   &order.TotalAmount,
		OccurredAt:    now,
	})

	return order, nil
}

func (s *OrderService) lockCartLines(ctx context.Context, tx *sql.Tx, cartID string) ([]cartLine, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT p.id, p.name, p.price, p.stock, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ?
		ORDER BY ci.id
		FOR UPDATE`, cartID)
	if err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("Error loading cart lines")
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	defer rows.Close()

	var lines []cartLine
	for rows.Next() {
		var l cartLine
		if err := rows.Scan(&l.productID, &l.name, &l.price, &l.stock, &l.quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart lines: %w", err)
	}
	return lines, nil
}

// decrementStockInTx only succeeds while enough stock remains, so stock can
// never go negative even if the row changed after it was read.
func (s *OrderService) decrementStockInTx(ctx context.Context, tx *sql.Tx, l cartLine) error {
	result, err := tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?",
		l.quantity, l.productID, l.quantity,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", l.productID).Msg("Error decrementing stock")
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &StockError{Products: []string{l.name}}
	}
	return nil
}

func (s *OrderService) ListMyOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Error listing orders")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	orders := []*models.Order{}
	byID := make(map[string]*models.Order)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}
	if err := s.loadOrderItems(ctx, byID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("Order not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("Error fetching order")
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.loadOrderItems(ctx, map[string]*models.Order{o.ID: o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderService) loadOrderItems(ctx context.Context, byID map[string]*models.Order) error {
	ids := make([]interface{}, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")

	rows, err := s.db.QueryContext(ctx,
		"SELECT order_id, product_id, name, unit_price, quantity FROM order_items WHERE order_id IN ("+placeholders+") ORDER BY id",
		ids...,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error loading order items")
		return fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var item models.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

// UpdateOrderStatus sets the fulfilment status and, when given, the payment
// status. Transitions are not constrained.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	req.Status = strings.TrimSpace(req.Status)
	req.PaymentStatus = strings.TrimSpace(req.PaymentStatus)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	query := "UPDATE orders SET status = ?, updated_at = ? WHERE id = ?"
	args := []interface{}{req.Status, s.now().UTC(), orderID}
	if req.PaymentStatus != "" {
		query = "UPDATE orders SET status = ?, payment_status = ?, updated_at = ? WHERE id = ?"
		args = []interface{}{req.Status, req.PaymentStatus, s.now().UTC(), orderID}
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("Error updating order status")
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return nil, notFound("Order not found")
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.OrderEvent{
		Type:          events.TypeOrderStatusChanged,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		OccurredAt:    order.UpdatedAt,
	})
	return order, nil
}

// MarkOrderPaid records a successful payment for an order.
func (s *OrderService) MarkOrderPaid(ctx context.Context, orderID, paymentIntentID string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = ?, payment_intent_id = ?, updated_at = ? WHERE id = ?",
		string(models.PaymentStatusPaid), paymentIntentID, s.now().UTC(), orderID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("Error marking order paid")
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound("Order not found")
	}

	s.logger.Info().Str("order_id", orderID).Str("payment_intent_id", paymentIntentID).Msg("Order marked paid")
	s.publish(ctx, events.OrderEvent{
		Type:          events.TypeOrderPaid,
		OrderID:       orderID,
		PaymentStatus: string(models.PaymentStatusPaid),
		OccurredAt:    s.now().UTC(),
	})
	return nil
}

func (s *OrderService) publish(ctx context.Context, event events.OrderEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("order_id", event.OrderID).Str("event", event.Type).Msg("Failed to publish order event (non-critical)")
	}
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var status, paymentStatus string
	var intentID sql.NullString
	var shipping []byte
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status, &paymentStatus, &intentID, &shipping, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.Status = models.OrderStatus(status)
	o.PaymentStatus = models.PaymentStatus(paymentStatus)
	o.PaymentIntentID = intentID.String
	o.Items = []models.OrderItem{}
	o.ShippingInfo = map[string]interface{}{}
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &o.ShippingInfo); err != nil {
			return nil, fmt.Errorf("invalid shipping_info column: %w", err)
		}
		if o.ShippingInfo == nil {
			o.ShippingInfo = map[string]interface{}{}
		}
	}
	return &o, nil
}
