// Package billing implements the invoice arithmetic pipeline: line items
// to subtotal, per-line tax, discount, coin redemption and the final
// total. Every function is pure and safe for concurrent use; callers
// rebuild the summary from scratch on every edit.
package billing

import "github.com/shopspring/decimal"

// DiscountType selects how a discount value is interpreted.
type DiscountType string

const (
	// DiscountPercentage applies the value as a percent of the subtotal.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixed applies the value as an absolute currency amount.
	DiscountFixed DiscountType = "FIXED"
)

// PayState describes how much of an invoice total has been settled.
type PayState string

const (
	// Unpaid means no payment has been recorded yet.
	Unpaid PayState = "UNPAID"
	// PartiallyPaid means payments cover part of the total.
	PartiallyPaid PayState = "PARTIALLY_PAID"
	// Paid means payments cover the total in full.
	Paid PayState = "PAID"
)

// LineItem is one billable row. Zero values stand in for missing
// fields, so an incomplete row quietly contributes nothing.
type LineItem struct {
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	TaxRatePercent decimal.Decimal
}

// DiscountSpec describes an invoice-level discount.
type DiscountSpec struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Input carries everything needed to derive an invoice summary.
type Input struct {
	Items         []LineItem
	Discount      DiscountSpec
	CoinsRedeemed decimal.Decimal
}

// Summary is the fully derived snapshot read back by callers.
// BeforeTax and AfterDiscount are raw intermediates and may be
// negative; only Total is floored at zero.
type Summary struct {
	Subtotal      decimal.Decimal
	TotalTax      decimal.Decimal
	Discount      decimal.Decimal
	CoinsRedeemed decimal.Decimal
	AfterDiscount decimal.Decimal
	BeforeTax     decimal.Decimal
	Total         decimal.Decimal
}

// LineTotal returns quantity times unit price for a single row.
func LineTotal(item LineItem) decimal.Decimal {
	return item.Quantity.Mul(item.UnitPrice)
}

// LineTax returns the tax owed on a single row. Rates apply per line
// and are never compounded across lines.
func LineTax(item LineItem) decimal.Decimal {
	return LineTotal(item).Mul(item.TaxRatePercent.Shift(-2))
}

// Subtotal sums the line totals. An empty slice yields zero.
func Subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(LineTotal(item))
	}
	return total
}

// TotalTax sums the per-line taxes. An empty slice yields zero.
func TotalTax(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(LineTax(item))
	}
	return total
}

// DiscountAmount resolves a discount spec against the subtotal. The
// result is not clamped to [0, subtotal]; validation is the caller's
// job, one layer up.
func DiscountAmount(subtotal decimal.Decimal, spec DiscountSpec) decimal.Decimal {
	switch spec.Type {
	case DiscountPercentage:
		return subtotal.Mul(spec.Value.Shift(-2))
	case DiscountFixed:
		return spec.Value
	default:
		return decimal.Zero
	}
}

// Compute derives the invoice summary from the provided input. The
// final total is floored at zero even when discount plus coins exceed
// subtotal plus tax.
func Compute(in Input) Summary {
	subtotal := Subtotal(in.Items)
	tax := TotalTax(in.Items)
	discount := DiscountAmount(subtotal, in.Discount)
	afterDiscount := subtotal.Sub(discount)
	beforeTax := afterDiscount.Sub(in.CoinsRedeemed)
	total := subtotal.Add(tax).Sub(discount).Sub(in.CoinsRedeemed)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Summary{
		Subtotal:      subtotal,
		TotalTax:      tax,
		Discount:      discount,
		CoinsRedeemed: in.CoinsRedeemed,
		AfterDiscount: afterDiscount,
		BeforeTax:     beforeTax,
		Total:         total,
	}
}

// BalanceDue returns the remaining unpaid amount, floored at zero.
func BalanceDue(total, amountPaid decimal.Decimal) decimal.Decimal {
	due := total.Sub(amountPaid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// PaymentState classifies how settled an invoice is. A zero paid
// amount always reports Unpaid, even for a zero total.
func PaymentState(total, amountPaid decimal.Decimal) PayState {
	if amountPaid.IsZero() {
		return Unpaid
	}
	if amountPaid.GreaterThanOrEqual(total) {
		return Paid
	}
	return PartiallyPaid
}
