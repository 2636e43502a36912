package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
)

func TestCalculateDiscountClampsFixedAmounts(t *testing.T) {
	subtotal := decimal.NewFromInt(200)

	got, err := calculateDiscount(subtotal, domain.DiscountTypeAmount, decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(subtotal) {
		t.Fatalf("expected discount clamped to subtotal, got %s", got)
	}

	got, err = calculateDiscount(subtotal, domain.DiscountTypeAmount, decimal.NewFromInt(-50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("expected negative discount to clamp to zero, got %s", got)
	}
}

func TestCalculateDiscountPercentageRoundsHalfUp(t *testing.T) {
	// 12.5% of 333 = 41.625, rounds to 41.63.
	got, err := calculateDiscount(decimal.NewFromInt(333), domain.DiscountTypePercentage, decimal.NewFromFloat(12.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromFloat(41.63)) {
		t.Fatalf("expected 41.63, got %s", got)
	}

	if _, err := calculateDiscount(decimal.NewFromInt(100), domain.DiscountTypePercentage, decimal.NewFromInt(150)); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for percentage above 100, got %v", err)
	}
}

func TestCalculateDiscountRejectsUnknownType(t *testing.T) {
	if _, err := calculateDiscount(decimal.NewFromInt(100), "loyalty", decimal.NewFromInt(10)); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown type, got %v", err)
	}
}

func TestCalculateFinancialsValidatesManufacturedLines(t *testing.T) {
	_, _, _, _, err := calculateFinancials([]domain.InvoiceItemInput{
		{
			MaterialType:  domain.MaterialNBR,
			InnerDiameter: 30,
			OuterDiameter: 20,
			Height:        5,
			Quantity:      1,
			UnitPrice:     decimal.NewFromInt(10),
		},
	}, "", decimal.Zero)
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for inverted diameters, got %v", err)
	}

	_, _, _, _, err = calculateFinancials(nil, "", decimal.Zero)
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty items, got %v", err)
	}
}

func TestResolveAccountFailsClosed(t *testing.T) {
	if _, _, err := resolveAccount("paypal"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected unknown method to be rejected, got %v", err)
	}

	accountID, deferred, err := resolveAccount(domain.AccountDeferred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accountID != domain.AccountDeferred || !deferred {
		t.Fatalf("expected deferred pseudo-account, got %s deferred=%v", accountID, deferred)
	}

	accountID, deferred, err = resolveAccount(domain.AccountInstapay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accountID != domain.AccountInstapay || deferred {
		t.Fatalf("expected instapay settlement account, got %s deferred=%v", accountID, deferred)
	}
}

func TestPiecesNeededIncludesWasteAllowance(t *testing.T) {
	item := domain.InvoiceItem{
		MaterialType:  domain.MaterialNBR,
		InnerDiameter: 20,
		OuterDiameter: 30,
		Height:        6,
		Quantity:      10,
	}
	if got := piecesNeeded(item); got != 80 {
		t.Fatalf("expected 80 pieces, got %g", got)
	}
}
