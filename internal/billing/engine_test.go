package billing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func item(qty, price, tax string) LineItem {
	return LineItem{Quantity: dec(qty), UnitPrice: dec(price), TaxRatePercent: dec(tax)}
}

func TestComputeReferenceScenario(t *testing.T) {
	summary := Compute(Input{
		Items: []LineItem{
			item("2", "500", "18"),
			item("1", "1000", "18"),
		},
		Discount:      DiscountSpec{Type: DiscountPercentage, Value: dec("10")},
		CoinsRedeemed: dec("100"),
	})
	if !summary.Subtotal.Equal(dec("2000")) {
		t.Fatalf("subtotal = %s, want 2000", summary.Subtotal)
	}
	if !summary.TotalTax.Equal(dec("360")) {
		t.Fatalf("total tax = %s, want 360", summary.TotalTax)
	}
	if !summary.Discount.Equal(dec("200")) {
		t.Fatalf("discount = %s, want 200", summary.Discount)
	}
	if !summary.Total.Equal(dec("2060")) {
		t.Fatalf("total = %s, want 2060", summary.Total)
	}
	if !summary.AfterDiscount.Equal(dec("1800")) {
		t.Fatalf("after discount = %s, want 1800", summary.AfterDiscount)
	}
	if !summary.BeforeTax.Equal(dec("1700")) {
		t.Fatalf("before tax = %s, want 1700", summary.BeforeTax)
	}
}

func TestComputeEmptyInput(t *testing.T) {
	summary := Compute(Input{})
	if !summary.Total.IsZero() {
		t.Fatalf("empty input total = %s, want 0", summary.Total)
	}
	if !summary.Subtotal.IsZero() || !summary.TotalTax.IsZero() {
		t.Fatalf("empty input subtotal/tax = %s/%s, want 0/0", summary.Subtotal, summary.TotalTax)
	}
}

func TestComputeTotalFlooredAtZero(t *testing.T) {
	summary := Compute(Input{
		Items:         []LineItem{item("1", "100", "0")},
		Discount:      DiscountSpec{Type: DiscountFixed, Value: dec("90")},
		CoinsRedeemed: dec("50"),
	})
	if !summary.Total.IsZero() {
		t.Fatalf("total = %s, want 0", summary.Total)
	}
	// The raw intermediates intentionally stay negative.
	if !summary.BeforeTax.Equal(dec("-40")) {
		t.Fatalf("before tax = %s, want -40", summary.BeforeTax)
	}
}

func TestComputeMissingFieldsTreatedAsZero(t *testing.T) {
	summary := Compute(Input{Items: []LineItem{
		{UnitPrice: dec("500")}, // no quantity
		{Quantity: dec("3")},    // no price
		{Quantity: dec("2"), UnitPrice: dec("100")}, // no tax rate
	}})
	if !summary.Subtotal.Equal(dec("200")) {
		t.Fatalf("subtotal = %s, want 200", summary.Subtotal)
	}
	if !summary.TotalTax.IsZero() {
		t.Fatalf("total tax = %s, want 0", summary.TotalTax)
	}
}

func TestDiscountAmountDoesNotClamp(t *testing.T) {
	over := DiscountAmount(dec("100"), DiscountSpec{Type: DiscountFixed, Value: dec("250")})
	if !over.Equal(dec("250")) {
		t.Fatalf("fixed discount = %s, want 250 (no clamping)", over)
	}
	negative := DiscountAmount(dec("100"), DiscountSpec{Type: DiscountPercentage, Value: dec("-10")})
	if !negative.Equal(dec("-10")) {
		t.Fatalf("negative percent discount = %s, want -10 (no clamping)", negative)
	}
	unknown := DiscountAmount(dec("100"), DiscountSpec{Type: "GIFT", Value: dec("40")})
	if !unknown.IsZero() {
		t.Fatalf("unknown discount type = %s, want 0", unknown)
	}
}

func TestFractionalTaxRate(t *testing.T) {
	got := LineTax(item("1", "200", "7.5"))
	if !got.Equal(dec("15")) {
		t.Fatalf("line tax = %s, want 15", got)
	}
}

func TestBalanceDue(t *testing.T) {
	if got := BalanceDue(dec("2060"), dec("1000")); !got.Equal(dec("1060")) {
		t.Fatalf("balance due = %s, want 1060", got)
	}
	if got := BalanceDue(dec("2060"), dec("3000")); !got.IsZero() {
		t.Fatalf("overpaid balance due = %s, want 0", got)
	}
}

func TestPaymentState(t *testing.T) {
	cases := []struct {
		total, paid string
		want        PayState
	}{
		{"2060", "0", Unpaid},
		{"2060", "1000", PartiallyPaid},
		{"2060", "2060", Paid},
		{"2060", "2500", Paid},
		{"0", "0", Unpaid},
	}
	for _, tc := range cases {
		if got := PaymentState(dec(tc.total), dec(tc.paid)); got != tc.want {
			t.Fatalf("PaymentState(%s, %s) = %s, want %s", tc.total, tc.paid, got, tc.want)
		}
	}
}
