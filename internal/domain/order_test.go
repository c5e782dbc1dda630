package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderSpecValidate_Market(t *testing.T) {
	valid := OrderSpec{Security: "BTCUSDT", Side: Buy, Price: decimal.Zero, Volume: dec("1"), Type: Market}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid market spec, got %v", err)
	}

	withPrice := OrderSpec{Security: "BTCUSDT", Side: Buy, Price: dec("1"), Volume: dec("1"), Type: Market}
	if err := withPrice.Validate(); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal for priced market order, got %v", err)
	}
}

func TestOrderSpecValidate_Limit(t *testing.T) {
	valid := OrderSpec{Security: "BTCUSDT", Side: Sell, Price: dec("100"), Volume: dec("1"), Type: Limit}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid limit spec, got %v", err)
	}

	zeroPrice := OrderSpec{Security: "BTCUSDT", Side: Sell, Price: decimal.Zero, Volume: dec("1"), Type: Limit}
	if err := zeroPrice.Validate(); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal for zero-price limit order, got %v", err)
	}
}

func TestOrderSpecValidate_NonPositiveVolume(t *testing.T) {
	spec := OrderSpec{Security: "BTCUSDT", Side: Buy, Price: dec("100"), Volume: decimal.Zero, Type: Limit}
	if err := spec.Validate(); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal for zero volume, got %v", err)
	}
}

func TestIsFullyFilled(t *testing.T) {
	o := Order{Balance: decimal.Zero}
	if !o.IsFullyFilled() {
		t.Fatal("expected zero-balance order to be fully filled")
	}
	o.Balance = dec("0.5")
	if o.IsFullyFilled() {
		t.Fatal("expected non-zero balance order to not be fully filled")
	}
}

func TestSideOpposite(t *testing.T) {
	if Buy.Opposite() != Sell {
		t.Fatal("expected Buy.Opposite() == Sell")
	}
	if Sell.Opposite() != Buy {
		t.Fatal("expected Sell.Opposite() == Buy")
	}
}
