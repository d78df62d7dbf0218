// Package apperr defines the error kinds shared by stores, services and handlers.
//
// Every error produced below the HTTP layer wraps exactly one of the sentinels
// declared here, so handlers can pick a status code with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCartEmpty         = errors.New("please add products to cart")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrStorage           = errors.New("storage error")
)

// StockError reports a checkout line that asks for more than is available.
type StockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = "Unknown"
	}
	return fmt.Sprintf("Not enough quantity for: %s (requested %d, available %d)", name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// NotFound builds an error for a missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// Validation builds an error for malformed or missing input.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// Conflict builds an error for a uniqueness violation.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Storage wraps a driver error. Errors that already carry a kind pass through.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// IsKnown reports whether err already wraps one of the declared kinds.
func IsKnown(err error) bool {
	for _, kind := range []error{
		ErrNotFound, ErrInsufficientStock, ErrCartEmpty, ErrValidation,
		ErrConflict, ErrUnauthorized, ErrForbidden, ErrStorage,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
