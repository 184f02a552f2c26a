package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"marketplace-api/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

func cartRow(id, userID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}).AddRow(id, userID, now, now)
}

func cartItemRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"product_id", "quantity", "name", "price", "stock", "images"})
}

func TestCartService_GetCartCreatesLazily(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewCartService(db, zerolog.Nop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO carts")).
		WithArgs(sqlmock.AnyArg(), "u-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE user_id = ?")).
		WithArgs("u-1").
		WillReturnRows(cartRow("c-1", "u-1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items ci")).
		WithArgs("c-1").
		WillReturnRows(cartItemRows())

	cart, err := svc.GetCart(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if cart.ID != "c-1" || cart.UserID != "u-1" {
		t.Fatalf("unexpected cart %+v", cart)
	}
	if cart.Items == nil || len(cart.Items) != 0 {
		t.Fatalf("expected empty item list, got %v", cart.Items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCartService_AddItemMergesQuantity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewCartService(db, zerolog.Nop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM products WHERE id = ?")).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO carts")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE user_id = ?")).
		WillReturnRows(cartRow("c-1", "u-1"))
	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)")).
		WithArgs("c-1", "p-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items ci")).
		WithArgs("c-1").
		WillReturnRows(cartItemRows().AddRow("p-1", 3, "Shoe", "10.00", 7, `["a.png"]`))

	cart, err := svc.AddItem(context.Background(), "u-1", &models.CartItemRequest{ProductID: "p-1", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected a single merged line, got %d", len(cart.Items))
	}
	item := cart.Items[0]
	if item.ProductID != "p-1" || item.Quantity != 3 || item.Product == nil || item.Product.Name != "Shoe" {
		t.Fatalf("unexpected item %+v", item)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCartService_AddItemDefaultsToOneUnit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewCartService(db, zerolog.Nop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM products")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO carts")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE user_id = ?")).
		WillReturnRows(cartRow("c-1", "u-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cart_items")).
		WithArgs("c-1", "p-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items ci")).
		WillReturnRows(cartItemRows().AddRow("p-1", 1, "Shoe", "10.00", 7, `[]`))

	if _, err := svc.AddItem(context.Background(), "u-1", &models.CartItemRequest{ProductID: "p-1"}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCartService_AddItemUnknownProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewCartService(db, zerolog.Nop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM products WHERE id = ?")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	_, err = svc.AddItem(context.Background(), "u-1", &models.CartItemRequest{ProductID: "ghost", Quantity: 1})
	if !errors.Is(err, ErrNotFound) || err.Error() != "Product not found" {
		t.Fatalf("expected Product not found, got %v", err)
	}
}

func TestCartService_AddItemProductDeletedConcurrently(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewCartService(db, zerolog.Nop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM products")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO carts")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE user_id = ?")).
		WillReturnRows(cartRow("c-1", "u-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cart_items")).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "foreign key constraint fails"})

	_, err = svc.AddItem(context.Background(), "u-1", &models.CartItemRequest{ProductID: "p-1", Quantity: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCartService_QuantityValidation(t *testing.T) {
	svc := NewCartService(nil, zerolog.Nop())

	_, err := svc.AddItem(context.Background(), "u-1", &models.CartItemRequest{ProductID: "p-1", Quantity: -2})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for negative add, got %v", err)
	}

	_, err = svc.UpdateItemQuantity(context.Background(), "u-1", &models.CartItemRequest{ProductID: "p-1", Quantity: 0})
	if !errors.Is(err, ErrValidation) || err.Error() != "quantity must be at least 1" {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}

	_, err = svc.AddItem(context.Background(), "u-1", &models.CartItemRequest{Quantity: 1})
	if !errors.Is(err, ErrValidation) || err.Error() != "productId is required" {
		t.Fatalf("expected productId is required, got %v", err)
	}
}

func TestCartService_UpdateItemQuantity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewCartService(db, zerolog.Nop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE user_id = ?")).
		WithArgs("u-1").
		WillReturnRows(cartRow("c-1", "u-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_items SET quantity = ? WHERE cart_id = ? AND product_id = ?")).
		WithArgs(5, "c-1", "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items ci")).
		WillReturnRows(cartItemRows().AddRow("p-1", 5, "Shoe", "10.00", 7, `[]`))

	cart, err := svc.UpdateItemQuantity(context.Background(), "u-1", &models.CartItemRequest{ProductID: "p-1", Quantity: 5})
	if err != nil {
		t.Fatalf("UpdateItemQuantity failed: %v", err)
	}
	if cart.Items[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", cart.Items[0].Quantity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCartService_UpdateMissingCartAndItem(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewCartService(db, zerolog.Nop())
	req := &models.CartItemRequest{ProductID: "p-1", Quantity: 1}

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE user_id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}))

	_, err = svc.UpdateItemQuantity(context.Background(), "u-1", req)
	if !errors.Is(err, ErrNotFound) || err.Error() != "Cart not found" {
		t.Fatalf("expected Cart not found, got %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE user_id = ?")).
		WillReturnRows(cartRow("c-1", "u-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_items")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = svc.UpdateItemQuantity(context.Background(), "u-1", req)
	if !errors.Is(err, ErrNotFound) || err.Error() != "Item not found in cart" {
		t.Fatalf("expected Item not found in cart, got %v", err)
	}
}

func TestCartService_RemoveItem(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewCartService(db, zerolog.Nop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE user_id = ?")).
		WillReturnRows(cartRow("c-1", "u-1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?")).
		WithArgs("c-1", "absent").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items ci")).
		WillReturnRows(cartItemRows().AddRow("p-1", 2, "Shoe", "10.00", 7, `[]`))

	cart, err := svc.RemoveItem(context.Background(), "u-1", "absent")
	if err != nil {
		t.Fatalf("removing an absent product should be a no-op, got %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected untouched cart, got %+v", cart.Items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
