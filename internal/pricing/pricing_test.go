package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAmount(t *testing.T) {
	cases := []struct {
		name     string
		price    string
		quantity int64
		want     string
		err      error
	}{
		{"whole numbers", "10", 3, "30", nil},
		{"single item", "42.5", 1, "42.5", nil},
		{"fractional price rounds to cents", "0.333", 3, "1", nil},
		{"rounding half up", "1.005", 1, "1.01", nil},
		{"zero quantity", "10", 0, "", ErrInvalidQuantity},
		{"negative quantity", "10", -1, "", ErrInvalidQuantity},
		{"zero price", "0", 3, "", ErrInvalidUnitPrice},
		{"negative price", "-5", 3, "", ErrInvalidUnitPrice},
		{"quantity over per-trade maximum", "1", MaxQuantityPerTrade + 1, "", ErrQuantityTooLarge},
		{"quantity at per-trade maximum", "1", MaxQuantityPerTrade, "1000000", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price, _ := decimal.NewFromString(tc.price)
			got, err := Amount(price, tc.quantity)
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected err %v, got %v", tc.err, err)
			}
			if tc.err != nil {
				return
			}
			want, _ := decimal.NewFromString(tc.want)
			if !got.Equal(want) {
				t.Errorf("expected %s, got %s", want, got)
			}
		})
	}
}

func TestValidateOffer(t *testing.T) {
	cases := []struct {
		name     string
		price    string
		quantity int64
		err      error
	}{
		{"valid", "10", 5, nil},
		{"zero price", "0", 5, ErrInvalidUnitPrice},
		{"negative price", "-1", 5, ErrInvalidUnitPrice},
		{"zero quantity", "10", 0, ErrInvalidQuantity},
		{"oversized quantity", "10", MaxQuantityPerTrade + 1, ErrQuantityTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price, _ := decimal.NewFromString(tc.price)
			if err := ValidateOffer(price, tc.quantity); !errors.Is(err, tc.err) {
				t.Errorf("expected %v, got %v", tc.err, err)
			}
		})
	}
}
