package billing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeCoinAmount is returned when a redemption request is below zero.
	ErrNegativeCoinAmount = errors.New("coin amount cannot be negative")
	// ErrInsufficientCoinBalance is returned when the request exceeds the wallet balance.
	ErrInsufficientCoinBalance = errors.New("insufficient coin balance")
	// ErrExceedsRedemptionCap is returned when the request exceeds the policy cap.
	ErrExceedsRedemptionCap = errors.New("coin redemption exceeds allowed maximum")
)

// CoinPolicy bounds how many wallet coins may offset an invoice.
// CapRatio limits redemption to a share of the post-discount subtotal
// so an invoice can never be funded entirely by coins; CoinValue is
// the currency worth of a single coin.
type CoinPolicy struct {
	CapRatio  decimal.Decimal
	CoinValue decimal.Decimal
}

// DefaultCoinPolicy returns the stock policy: half the post-discount
// liability, one currency unit per coin.
func DefaultCoinPolicy() CoinPolicy {
	return CoinPolicy{
		CapRatio:  decimal.NewFromFloat(0.5),
		CoinValue: decimal.NewFromInt(1),
	}
}

func (p CoinPolicy) capRatio() decimal.Decimal {
	if p.CapRatio.IsZero() {
		return decimal.NewFromFloat(0.5)
	}
	return p.CapRatio
}

func (p CoinPolicy) coinValue() decimal.Decimal {
	if p.CoinValue.IsZero() {
		return decimal.NewFromInt(1)
	}
	return p.CoinValue
}

// MaxRedeemable returns the largest coin amount a customer may redeem
// given their wallet balance and the invoice's post-discount subtotal.
// The cap is floored to whole coins.
func (p CoinPolicy) MaxRedeemable(walletBalance, subtotal, discount decimal.Decimal) decimal.Decimal {
	afterDiscount := subtotal.Sub(discount)
	if afterDiscount.IsNegative() {
		afterDiscount = decimal.Zero
	}
	cap := afterDiscount.Mul(p.capRatio()).Div(p.coinValue()).Floor()
	if walletBalance.LessThan(cap) {
		return walletBalance
	}
	return cap
}

// CurrencyValue converts a coin amount into its currency worth.
func (p CoinPolicy) CurrencyValue(coins decimal.Decimal) decimal.Decimal {
	return coins.Mul(p.coinValue())
}

// ValidateRedemption checks a proposed redemption against the wallet
// balance and the computed cap. Check order is fixed: a request over
// both limits surfaces the balance error first. A nil result means the
// redemption is allowed; error strings are shown to users verbatim.
func ValidateRedemption(requested, maxAllowed, walletBalance decimal.Decimal) error {
	if requested.IsNegative() {
		return ErrNegativeCoinAmount
	}
	if requested.GreaterThan(walletBalance) {
		return ErrInsufficientCoinBalance
	}
	if requested.GreaterThan(maxAllowed) {
		return ErrExceedsRedemptionCap
	}
	return nil
}
