package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
)

var percentBase = decimal.NewFromInt(100)

// calculateFinancials derives line totals, subtotal, discount and final total
// from the raw item inputs. Pure computation, no I/O.
func calculateFinancials(inputs []domain.InvoiceItemInput, discountType string, discountValue decimal.Decimal) ([]domain.InvoiceItem, decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: invoice requires at least one item", store.ErrValidation)
	}

	items := make([]domain.InvoiceItem, 0, len(inputs))
	subtotal := decimal.Zero
	for i, input := range inputs {
		if input.Quantity <= 0 {
			return nil, decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: item %d quantity must be positive", store.ErrValidation, i)
		}
		if input.UnitPrice.IsNegative() {
			return nil, decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: item %d unit price must not be negative", store.ErrValidation, i)
		}
		if input.MaterialType != "" {
			if input.Height <= 0 {
				return nil, decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: item %d height must be positive", store.ErrValidation, i)
			}
			if input.InnerDiameter <= 0 || input.OuterDiameter <= input.InnerDiameter {
				return nil, decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: item %d diameters are invalid", store.ErrValidation, i)
			}
		}

		lineTotal := input.UnitPrice.Mul(decimal.NewFromInt(int64(input.Quantity)))
		items = append(items, domain.InvoiceItem{
			Description:   input.Description,
			MaterialType:  input.MaterialType,
			InnerDiameter: input.InnerDiameter,
			OuterDiameter: input.OuterDiameter,
			Height:        input.Height,
			Quantity:      input.Quantity,
			UnitPrice:     input.UnitPrice,
			LineTotal:     lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	discount, err := calculateDiscount(subtotal, discountType, discountValue)
	if err != nil {
		return nil, decimal.Zero, decimal.Zero, decimal.Zero, err
	}

	total := subtotal.Sub(discount)
	return items, subtotal, discount, total, nil
}

// calculateDiscount resolves the effective discount amount. Fixed amounts are
// clamped to [0, subtotal]; percentages must be within [0, 100] and round
// half-up to two decimal places.
func calculateDiscount(subtotal decimal.Decimal, discountType string, discountValue decimal.Decimal) (decimal.Decimal, error) {
	switch discountType {
	case "", domain.DiscountTypeAmount:
		discount := discountValue
		if discount.IsNegative() {
			discount = decimal.Zero
		}
		if discount.GreaterThan(subtotal) {
			discount = subtotal
		}
		return discount, nil
	case domain.DiscountTypePercentage:
		if discountValue.IsNegative() || discountValue.GreaterThan(percentBase) {
			return decimal.Zero, fmt.Errorf("%w: percentage discount must be within 0..100", store.ErrValidation)
		}
		return subtotal.Mul(discountValue).Div(percentBase).Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown discount type %q", store.ErrValidation, discountType)
	}
}

// resolveAccount maps a payment method to its treasury account. The set is
// closed: anything outside it is rejected rather than passed through, so a
// typo can never mint a new account.
func resolveAccount(paymentMethod string) (accountID string, deferred bool, err error) {
	switch paymentMethod {
	case domain.AccountCash,
		domain.AccountVodafoneElsawy,
		domain.AccountVodafoneWael,
		domain.AccountInstapay,
		domain.AccountYadElsawy:
		return paymentMethod, false, nil
	case domain.AccountDeferred:
		return domain.AccountDeferred, true, nil
	default:
		return "", false, fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, paymentMethod)
	}
}
