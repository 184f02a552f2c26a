package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUpstream          = errors.New("upstream failure")
	ErrUnavailable       = errors.New("unavailable")
)

// Error pairs one of the sentinel kinds above with a client-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func validationError(message string) *Error { return newError(ErrValidation, message) }

func notFound(message string) *Error { return newError(ErrNotFound, message) }

// StockError lists every product that could not cover the requested quantity.
type StockError struct {
	Products []string
}

func (e *StockError) Error() string {
	return "Not enough stock for " + strings.Join(e.Products, ", ")
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrNoReferencedRow = 1452
)

func isMySQLError(err error, number uint16) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == number
}
