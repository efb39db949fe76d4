// Package pricing derives transaction amounts from announcement terms.
//
// The amount of a trade is always recomputed server-side as
// quantityAsked * valuePerItem; any amount-like field supplied by a caller is
// ignored. Keeping the arithmetic here, behind validation, means no handler
// can construct a mispriced transaction.
//
// All monetary values use shopspring/decimal — never float64 for money.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidQuantity is returned when quantity is zero or negative.
	ErrInvalidQuantity = errors.New("pricing: quantity must be positive")

	// ErrInvalidUnitPrice is returned when the unit price is not positive.
	ErrInvalidUnitPrice = errors.New("pricing: unit price must be positive")

	// ErrQuantityTooLarge is returned when a single trade asks for more than
	// MaxQuantityPerTrade items.
	ErrQuantityTooLarge = errors.New("pricing: quantity exceeds per-trade maximum")

	// MaxQuantityPerTrade caps how many items one transaction may move.
	// Oversized asks are split by the caller into multiple trades.
	MaxQuantityPerTrade int64 = 1_000_000

	// AmountScale is the number of decimal places amounts are rounded to.
	AmountScale int32 = 2
)

// Amount computes the total price of quantity items at valuePerItem, rounded
// to AmountScale places.
func Amount(valuePerItem decimal.Decimal, quantity int64) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	if quantity > MaxQuantityPerTrade {
		return decimal.Zero, ErrQuantityTooLarge
	}
	if valuePerItem.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidUnitPrice
	}
	return valuePerItem.Mul(decimal.NewFromInt(quantity)).Round(AmountScale), nil
}

// ValidateOffer checks the terms of a new announcement: positive unit price
// and positive quantity within the per-trade maximum.
func ValidateOffer(valuePerItem decimal.Decimal, quantity int64) error {
	if valuePerItem.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidUnitPrice
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > MaxQuantityPerTrade {
		return ErrQuantityTooLarge
	}
	return nil
}
